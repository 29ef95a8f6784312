package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"sentinel/internal/fingerprint"
	"sentinel/internal/hook"
)

// registeredHook is one handler mounted at a trigger, kept sorted by
// priority so multiple collaborators at the same trigger (were this
// standalone daemon ever to host more than this orchestrator) would run in
// the host's documented priority order.
type registeredHook struct {
	priority int
	handler  hook.HookFunc
}

// httpCoordinator is a minimal, in-process implementation of hook.Coordinator
// for standalone operation: each mounted trigger becomes a POST endpoint a
// host process (or a curl/test script) can call directly with a JSON event
// body, so the orchestrator can be exercised without embedding it inside a
// larger agent runtime.
type httpCoordinator struct {
	mu    sync.Mutex
	hooks map[string][]registeredHook
	mux   *http.ServeMux
}

func newHTTPCoordinator() *httpCoordinator {
	c := &httpCoordinator{hooks: map[string][]registeredHook{}, mux: http.NewServeMux()}
	c.mux.HandleFunc("/healthz", c.handleHealth)
	return c
}

func (c *httpCoordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mux.ServeHTTP(w, r)
}

func (c *httpCoordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RegisterHook implements hook.Coordinator. The first registration of a
// given trigger also wires its HTTP route.
func (c *httpCoordinator) RegisterHook(trigger string, priority int, handler hook.HookFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, existed := c.hooks[trigger]
	c.hooks[trigger] = append(c.hooks[trigger], registeredHook{priority: priority, handler: handler})
	sort.SliceStable(c.hooks[trigger], func(i, j int) bool {
		return c.hooks[trigger][i].priority < c.hooks[trigger][j].priority
	})

	if !existed {
		path := "/hooks/" + trigger
		c.mux.HandleFunc(path, c.makeTriggerHandler(trigger))
		log.Info().Str("trigger", trigger).Int("priority", priority).Str("path", path).Msg("hook_mounted")
	}
	return nil
}

// triggerRequest is the JSON body a caller posts to fire a trigger: the
// host-fired event, carrying whatever conversation messages are in scope.
type triggerRequest struct {
	Messages []fingerprint.ConversationMessage `json:"messages"`
}

func (c *httpCoordinator) makeTriggerHandler(trigger string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req triggerRequest
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
				http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
				return
			}
		}

		c.mu.Lock()
		handlers := append([]registeredHook(nil), c.hooks[trigger]...)
		c.mu.Unlock()

		event := hook.Event{Messages: req.Messages}
		var last hook.Result = hook.ResultContinue
		for _, rh := range handlers {
			res, err := rh.handler(r.Context(), trigger, event)
			if err != nil {
				log.Error().Err(err).Str("trigger", trigger).Msg("hook_handler_failed")
				continue
			}
			if res.Action != "continue" {
				last = res
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(last)
	}
}

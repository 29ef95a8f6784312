package hook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sentinel/internal/config"
	"sentinel/internal/dedupe"
	"sentinel/internal/llm"
	"sentinel/internal/model"
	"sentinel/internal/store"
)

// stubProvider dispatches Complete calls to a test-supplied handler and
// counts how many times it was invoked, so tests can assert the gate
// actually skipped a call (S2) rather than just observing store state.
type stubProvider struct {
	calls   int32
	handler func(ctx context.Context, req model.ChatRequest) (model.Response, error)
}

func (p *stubProvider) Complete(ctx context.Context, req model.ChatRequest) (model.Response, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.handler(ctx, req)
}

func (p *stubProvider) callCount() int { return int(atomic.LoadInt32(&p.calls)) }

func textResponse(text string) (model.Response, error) {
	return model.Response{Content: []model.Block{{Text: &text}}}, nil
}

func jsonResponse(text string) func(ctx context.Context, req model.ChatRequest) (model.Response, error) {
	return func(ctx context.Context, req model.ChatRequest) (model.Response, error) {
		return textResponse("```json\n" + text + "\n```")
	}
}

func baseConfig(maxConcurrent, timeoutPerObserver int, onTimeout config.OnTimeoutPolicy) *config.Config {
	return &config.Config{
		Hooks: []config.HookConfig{{Trigger: "orchestrator:complete", Priority: 5}},
		Execution: config.ExecutionConfig{
			Mode:               "parallel_sync",
			MaxConcurrent:      maxConcurrent,
			TimeoutPerObserver: timeoutPerObserver,
			OnTimeout:          onTimeout,
		},
	}
}

func newOrchestrator(t *testing.T, cfg *config.Config, provider llm.Provider, st store.Store, baseDir string) *Orchestrator {
	t.Helper()
	registry := llm.NewRegistry()
	registry.Register("stub", provider)
	return New(cfg, registry, st, baseDir)
}

// --- S1: First run produces observations. ---

func TestOnEventFirstRunProducesObservation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.py"), []byte("eval(x)\n"), 0o644))

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Observers = []config.ObserverConfig{{
		Name: "Sec", Model: "m", Timeout: 5,
		Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dir, "src", "**", "*.py")}}},
	}}

	provider := &stubProvider{handler: jsonResponse(
		`{"observations":[{"content":"eval of user input","severity":"critical","source_ref":"src/a.py:1","metadata":{"category":"security"}}],"resolved":[]}`,
	)}
	st := store.NewMemoryStore()
	orch := newOrchestrator(t, cfg, provider, st, dir)

	res, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, "continue", res.Action)
	require.Equal(t, 1, provider.callCount())

	listed, err := st.List(context.Background(), store.ListOptions{Filters: store.ListFilters{Status: model.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, listed.Observations, 1)
	o := listed.Observations[0]
	require.Equal(t, "Sec", o.Observer)
	require.Equal(t, model.SeverityCritical, o.Severity)
	require.Equal(t, "src/a.py:1", o.SourceRef)
	require.NotEmpty(t, o.ID)
	require.Equal(t, "Sec:file:src/a.py:1:critical", dedupe.Key(o))
}

// --- S2: No-change skip. ---

func TestOnEventNoChangeSkipsProviderAndStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("eval(x)\n"), 0o644))

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Observers = []config.ObserverConfig{{
		Name: "Sec", Model: "m", Timeout: 5,
		Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dir, "*.py")}}},
	}}

	provider := &stubProvider{handler: jsonResponse(`{"observations":[],"resolved":[]}`)}
	st := store.NewMemoryStore()
	orch := newOrchestrator(t, cfg, provider, st, dir)

	_, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount())

	_, err = orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount(), "unchanged fingerprint must skip the scheduler run entirely")
}

// --- S3: Dedup across runs (mtime changes, content equivalent). ---

func TestOnEventDedupAcrossRunsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("eval(x)\n"), 0o644))

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Observers = []config.ObserverConfig{{
		Name: "Sec", Model: "m", Timeout: 5,
		Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dir, "*.py")}}},
	}}

	sameObservation := `{"observations":[{"content":"eval of user input","severity":"critical","source_ref":"a.py:1","metadata":{"category":"security"}}],"resolved":[]}`
	provider := &stubProvider{handler: jsonResponse(sameObservation)}
	st := store.NewMemoryStore()
	orch := newOrchestrator(t, cfg, provider, st, dir)

	_, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount())

	// Bump mtime without changing content.
	future := time.Now().Add(1 * time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	_, err = orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, 2, provider.callCount(), "mtime change must still trigger a provider call")

	listed, err := st.List(context.Background(), store.ListOptions{Filters: store.ListFilters{Status: model.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, listed.Observations, 1, "pre-write dedup must drop the duplicate observation")
}

// --- S4: Resolution. ---

func TestOnEventAutoResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("eval(x)\n"), 0o644))

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Observers = []config.ObserverConfig{{
		Name: "Sec", Model: "m", Timeout: 5,
		Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dir, "*.py")}}},
	}}

	provider := &stubProvider{handler: jsonResponse(
		`{"observations":[{"content":"eval of user input","severity":"critical","source_ref":"a.py:1","metadata":{"category":"security"}}],"resolved":[]}`,
	)}
	st := store.NewMemoryStore()
	orch := newOrchestrator(t, cfg, provider, st, dir)

	_, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)

	listed, err := st.List(context.Background(), store.ListOptions{Filters: store.ListFilters{Status: model.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, listed.Observations, 1)
	prevID := listed.Observations[0].ID

	// Content change (mtime bump) so the gate runs again; this time the
	// observer reports the issue resolved instead of re-finding it.
	future := time.Now().Add(1 * time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	provider.handler = jsonResponse(fmt.Sprintf(
		`{"observations":[],"resolved":[{"id":%q,"reason":"replaced with ast.literal_eval"}]}`, prevID,
	))

	_, err = orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)

	resolved, err := st.Get(context.Background(), prevID)
	require.NoError(t, err)
	require.Equal(t, model.StatusResolved, resolved.Status)
	require.Equal(t, "Auto-resolved: replaced with ast.literal_eval", resolved.ResolutionNote)
	require.NotNil(t, resolved.ResolvedAt)
}

// --- S5: Partial failure / timeout isolation. ---

func TestOnEventPartialFailureIsolation(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "a.py"), []byte("slow\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dirB, "b.py"), []byte("fast\n"), 0o644))

	cfg := baseConfig(2, 1, config.OnTimeoutSkip) // 1s per-observer timeout, 2s global deadline
	cfg.Observers = []config.ObserverConfig{
		{
			Name: "A", Model: "slow-model", Timeout: 1,
			Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dirA, "*.py")}}},
		},
		{
			Name: "B", Model: "fast-model", Timeout: 1,
			Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dirB, "*.py")}}},
		},
	}

	provider := &stubProvider{handler: func(ctx context.Context, req model.ChatRequest) (model.Response, error) {
		if req.Model == "slow-model" {
			<-ctx.Done()
			return model.Response{}, ctx.Err()
		}
		return textResponse(`{"observations":[{"content":"B finding","severity":"medium"}],"resolved":[]}`)
	}}
	st := store.NewMemoryStore()
	orch := newOrchestrator(t, cfg, provider, st, dirA)

	_, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err, "one observer timing out must not fail the batch")

	listed, err := st.List(context.Background(), store.ListOptions{Filters: store.ListFilters{Status: model.StatusOpen}})
	require.NoError(t, err)
	require.Len(t, listed.Observations, 1)
	require.Equal(t, "B", listed.Observations[0].Observer)
}

// --- Gate stability / sensitivity (property 1, 2). ---

func TestOnEventGateStableAcrossRepeatedCallsWithoutChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Observers = []config.ObserverConfig{{
		Name: "Sec", Model: "m", Timeout: 5,
		Watch: []model.WatchSpec{{Kind: model.WatchFiles, Paths: []string{filepath.Join(dir, "*.py")}}},
	}}
	provider := &stubProvider{handler: jsonResponse(`{"observations":[],"resolved":[]}`)}
	orch := newOrchestrator(t, cfg, provider, store.NewMemoryStore(), dir)

	for i := 0; i < 3; i++ {
		_, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
		require.NoError(t, err)
	}
	require.Equal(t, 1, provider.callCount())
}

func TestOnEventNoEnabledBindingsContinues(t *testing.T) {
	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	disabled := false
	cfg.Observers = []config.ObserverConfig{{Name: "Sec", Model: "m", Enabled: &disabled}}
	provider := &stubProvider{handler: jsonResponse(`{"observations":[],"resolved":[]}`)}
	orch := newOrchestrator(t, cfg, provider, store.NewMemoryStore(), t.TempDir())

	res, err := orch.OnEvent(context.Background(), "orchestrator:complete", Event{})
	require.NoError(t, err)
	require.Equal(t, "continue", res.Action)
	require.Equal(t, 0, provider.callCount())
}

// --- S6: Injection. ---

func TestOnNextTurnInjectsSummary(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	_, err := st.CreateBatch(ctx, []model.Observation{
		{Observer: "X", Content: "high severity thing", Severity: model.SeverityHigh, Status: model.StatusOpen, SourceType: model.SourceTypeMixed, Metadata: map[string]any{}},
		{Observer: "X", Content: "low severity thing", Severity: model.SeverityLow, Status: model.StatusOpen, SourceType: model.SourceTypeMixed, Metadata: map[string]any{}},
	})
	require.NoError(t, err)

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	orch := newOrchestrator(t, cfg, &stubProvider{handler: jsonResponse(`{}`)}, st, t.TempDir())

	res, err := orch.OnNextTurn(ctx, "prompt:submit", Event{})
	require.NoError(t, err)
	require.Equal(t, "inject_context", res.Action)
	require.Equal(t, "system", res.ContextInjectionRole)
	require.Contains(t, res.ContextInjection, "Active Observations: 2 open")
	require.Contains(t, res.ContextInjection, "high: 1")
	require.Contains(t, res.ContextInjection, "low: 1")
	require.Contains(t, res.ContextInjection, "**X** (2 observations):")
	require.Contains(t, res.ContextInjection, `<system-reminder source="observers">`)
}

func TestOnNextTurnContinuesWhenNoOpenObservations(t *testing.T) {
	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	orch := newOrchestrator(t, cfg, &stubProvider{handler: jsonResponse(`{}`)}, store.NewMemoryStore(), t.TempDir())

	res, err := orch.OnNextTurn(context.Background(), "prompt:submit", Event{})
	require.NoError(t, err)
	require.Equal(t, "continue", res.Action)
}

func TestOnNextTurnSummaryBoundsItemsAndTruncatesContent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	long := ""
	for i := 0; i < 150; i++ {
		long += "x"
	}
	var batch []model.Observation
	for i := 0; i < 5; i++ {
		batch = append(batch, model.Observation{
			Observer: "Y", Content: long, Severity: model.SeverityInfo, Status: model.StatusOpen, SourceType: model.SourceTypeMixed, Metadata: map[string]any{},
		})
	}
	_, err := st.CreateBatch(ctx, batch)
	require.NoError(t, err)

	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	orch := newOrchestrator(t, cfg, &stubProvider{handler: jsonResponse(`{}`)}, st, t.TempDir())

	res, err := orch.OnNextTurn(ctx, "prompt:submit", Event{})
	require.NoError(t, err)
	require.Contains(t, res.ContextInjection, "… and 2 more")
	require.NotContains(t, res.ContextInjection, long, "content must be truncated, not shown in full")
}

// --- Mount wiring. ---

type fakeCoordinator struct {
	registered map[string]int
}

func (f *fakeCoordinator) RegisterHook(trigger string, priority int, handler HookFunc) error {
	if f.registered == nil {
		f.registered = map[string]int{}
	}
	f.registered[trigger] = priority
	return nil
}

func TestMountRegistersEventAndNextTurnHooks(t *testing.T) {
	cfg := baseConfig(2, 5, config.OnTimeoutSkip)
	cfg.Hooks = []config.HookConfig{{Trigger: "orchestrator:complete", Priority: 7}}
	orch := newOrchestrator(t, cfg, &stubProvider{handler: jsonResponse(`{}`)}, store.NewMemoryStore(), t.TempDir())

	coord := &fakeCoordinator{}
	require.NoError(t, orch.Mount(coord, cfg))
	require.Equal(t, 7, coord.registered["orchestrator:complete"])
	require.Equal(t, 10, coord.registered["prompt:submit"])
}

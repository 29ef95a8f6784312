package hook

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel/internal/collector"
	"sentinel/internal/config"
	"sentinel/internal/dedupe"
	"sentinel/internal/fingerprint"
	"sentinel/internal/llm"
	"sentinel/internal/model"
	"sentinel/internal/observerdef"
	"sentinel/internal/parser"
	"sentinel/internal/runner"
	"sentinel/internal/scheduler"
	"sentinel/internal/store"
)

const nextTurnTrigger = "prompt:submit"
const nextTurnPriority = 10

// Orchestrator holds the single per-host-session mutable field
// (last_fingerprint) plus every collaborator needed to run a batch: the
// fingerprinter/collector for gating and payload assembly, the runner and
// scheduler for dispatch, the deduper for identity, and the store for
// persistence. See SPEC_FULL.md §4.7, §5.
type Orchestrator struct {
	cfg         *config.Config
	bindings    []model.ObserverBinding
	baseDir     string
	fingerprint *fingerprint.Fingerprinter
	collector   *collector.Collector
	runner      *runner.Runner
	scheduler   *scheduler.Scheduler
	store       store.Store
	loader      *observerdef.Loader

	mu              sync.Mutex
	lastFingerprint string
}

// New constructs an Orchestrator wiring the configured observer bindings,
// LLM provider registry, and observations store together.
func New(cfg *config.Config, providers *llm.Registry, st store.Store, baseDir string) *Orchestrator {
	loader := observerdef.NewLoader()
	o := &Orchestrator{
		cfg:         cfg,
		baseDir:     baseDir,
		fingerprint: fingerprint.New(),
		collector:   collector.New(),
		runner:      runner.New(providers, cfg.Execution.OnTimeout),
		scheduler:   scheduler.New(cfg.Execution.MaxConcurrent, time.Duration(cfg.Execution.TimeoutPerObserver)*time.Second),
		store:       st,
		loader:      loader,
	}
	o.bindings = o.buildBindings(cfg.Observers)
	return o
}

func (o *Orchestrator) buildBindings(configs []config.ObserverConfig) []model.ObserverBinding {
	bindings := make([]model.ObserverBinding, 0, len(configs))
	for _, oc := range configs {
		if oc.Observer.Ref != "" {
			def, err := o.loader.Load(o.baseDir, oc.Observer.Ref)
			if err != nil {
				log.Warn().Err(err).Str("ref", oc.Observer.Ref).Msg("observer_definition_load_failed")
				continue
			}
			binding := def.ToBinding(oc.Watch)
			if oc.Model != "" {
				binding.Model = oc.Model
			}
			if oc.Timeout > 0 {
				binding.Timeout = oc.Timeout
			}
			binding.Enabled = oc.IsEnabled()
			bindings = append(bindings, binding)
			continue
		}
		bindings = append(bindings, model.ObserverBinding{
			Name:    oc.Name,
			Role:    oc.Role,
			Focus:   oc.Focus,
			Model:   oc.Model,
			Timeout: oc.Timeout,
			Enabled: oc.IsEnabled(),
			Watch:   oc.Watch,
			Kind:    model.ObserverSimple,
		})
	}
	return bindings
}

// Mount registers OnEvent at every configured trigger/priority and
// OnNextTurn at "prompt:submit" priority 10, per SPEC_FULL.md §6.
func (o *Orchestrator) Mount(coordinator Coordinator, cfg *config.Config) error {
	for _, h := range cfg.Hooks {
		if err := coordinator.RegisterHook(h.Trigger, h.Priority, o.OnEvent); err != nil {
			return fmt.Errorf("mount on_event at %q: %w", h.Trigger, err)
		}
	}
	if err := coordinator.RegisterHook(nextTurnTrigger, nextTurnPriority, o.OnNextTurn); err != nil {
		return fmt.Errorf("mount on_next_turn: %w", err)
	}
	return nil
}

// OnEvent is "run observers now": gate on the fingerprint, dispatch the
// batch, aggregate and persist results. Every error above the scheduler
// boundary is caught, logged, and converted to continue — observer
// orchestration never fails the host turn.
func (o *Orchestrator) OnEvent(ctx context.Context, eventName string, event Event) (Result, error) {
	enabled := enabledBindings(o.bindings)
	if len(enabled) == 0 {
		return ResultContinue, nil
	}

	digest, err := o.fingerprint.Compute(enabled, event.Messages)
	if err != nil {
		log.Error().Err(err).Msg("fingerprint_compute_failed")
		return ResultContinue, nil
	}

	o.mu.Lock()
	unchanged := digest == o.lastFingerprint
	o.mu.Unlock()
	if unchanged {
		return ResultContinue, nil
	}

	open, err := o.listOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("store_list_failed")
		open = nil
	}

	tasks := make([]scheduler.Task, len(enabled))
	for i, binding := range enabled {
		binding := binding
		tasks[i] = func(taskCtx context.Context) (parser.Result, error) {
			content := o.collector.Build(binding.Watch, event.Messages)
			return o.runner.Run(taskCtx, binding, content, open)
		}
	}

	results, err := o.scheduler.RunBatch(ctx, enabled, tasks)
	if err != nil {
		log.Warn().Err(err).Str("event", eventName).Msg("observer_batch_incomplete")
		if results == nil {
			// Global timeout: no partial results, fingerprint not advanced.
			return ResultContinue, nil
		}
	}

	newObservations, resolved := dedupe.Aggregate(results)

	if len(newObservations) > 0 {
		current, err := o.listOpen(ctx)
		if err != nil {
			log.Error().Err(err).Msg("store_list_failed")
			current = open
		}
		toWrite := dedupe.FilterOpen(newObservations, current)
		if len(toWrite) > 0 {
			if _, err := o.store.CreateBatch(ctx, toWrite); err != nil {
				log.Error().Err(err).Msg("store_create_batch_failed")
			}
		}
	}

	for _, r := range resolved {
		if r.ID == "" {
			continue
		}
		note := "Auto-resolved: " + r.Reason
		if err := o.store.Resolve(ctx, r.ID, note); err != nil {
			log.Error().Err(err).Str("observation_id", r.ID).Msg("store_resolve_failed")
		}
	}

	o.mu.Lock()
	o.lastFingerprint = digest
	o.mu.Unlock()

	return ResultContinue, nil
}

// OnNextTurn is "inject summary": read open observations and, if any exist,
// wrap a bounded summary in a system-reminder context injection.
func (o *Orchestrator) OnNextTurn(ctx context.Context, eventName string, event Event) (Result, error) {
	open, err := o.listOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("store_list_failed")
		return ResultContinue, nil
	}
	if len(open) == 0 {
		return ResultContinue, nil
	}

	summary := formatSummary(open)
	body := fmt.Sprintf("<system-reminder source=\"observers\">\n%s\n\nPlease review and address these observations in your response.\n</system-reminder>", summary)

	return Result{
		Action:               "inject_context",
		ContextInjection:     body,
		ContextInjectionRole: "system",
	}, nil
}

func (o *Orchestrator) listOpen(ctx context.Context) ([]model.Observation, error) {
	res, err := o.store.List(ctx, store.ListOptions{Filters: store.ListFilters{Status: model.StatusOpen}})
	if err != nil {
		return nil, err
	}
	return res.Observations, nil
}

func enabledBindings(bindings []model.ObserverBinding) []model.ObserverBinding {
	out := make([]model.ObserverBinding, 0, len(bindings))
	for _, b := range bindings {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// severityOrder is the fixed display order for the per-severity breakdown.
var severityOrder = []model.Severity{
	model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow, model.SeverityInfo,
}

const maxItemsPerObserver = 3
const maxContentChars = 100

// formatSummary builds the bounded, per-observer-grouped summary body
// injected on the next turn, per SPEC_FULL.md §6/§8 property 9.
func formatSummary(open []model.Observation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Active Observations: %d open\n", len(open))

	counts := map[model.Severity]int{}
	for _, o := range open {
		counts[o.Severity]++
	}
	var sevParts []string
	for _, sev := range severityOrder {
		if n := counts[sev]; n > 0 {
			sevParts = append(sevParts, fmt.Sprintf("%s: %d", sev, n))
		}
	}
	fmt.Fprintf(&b, "By Severity: %s\n", strings.Join(sevParts, ", "))

	byObserver := map[string][]model.Observation{}
	var order []string
	for _, o := range open {
		if _, ok := byObserver[o.Observer]; !ok {
			order = append(order, o.Observer)
		}
		byObserver[o.Observer] = append(byObserver[o.Observer], o)
	}
	sort.Strings(order)

	for _, observer := range order {
		items := byObserver[observer]
		fmt.Fprintf(&b, "**%s** (%d observations):\n", observer, len(items))
		shown := items
		if len(shown) > maxItemsPerObserver {
			shown = shown[:maxItemsPerObserver]
		}
		for _, it := range shown {
			content := it.Content
			if len(content) > maxContentChars {
				content = content[:maxContentChars]
			}
			fmt.Fprintf(&b, "  [%s] %s\n", it.Severity, content)
		}
		if extra := len(items) - len(shown); extra > 0 {
			fmt.Fprintf(&b, "  … and %d more\n", extra)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

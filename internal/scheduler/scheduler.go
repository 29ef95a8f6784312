// Package scheduler fans out bounded-parallel observer dispatch: a counting
// semaphore for max_concurrent, a global deadline of 2x the per-observer
// timeout, and partial-result tolerance so one failing observer never
// cancels its peers. Grounded directly on the teacher's
// internal/tools/multitool/parallel.go channel-semaphore pattern, the
// single closest file in the whole example pack to this component. See
// SPEC_FULL.md §4.6.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel/internal/model"
	"sentinel/internal/parser"
)

// Task is one observer invocation to run as part of a batch. Implementations
// (internal/runner.Runner.Run, bound to one binding/content pair) are
// expected to already fold per-observer errors into an empty parser.Result
// per SPEC_FULL.md §7, except for the on_timeout=="fail" escalation, which
// this scheduler lets bubble out of RunBatch.
type Task func(ctx context.Context) (parser.Result, error)

// Scheduler bounds concurrency and enforces the batch-wide deadline.
type Scheduler struct {
	MaxConcurrent      int
	TimeoutPerObserver time.Duration
}

// New returns a Scheduler configured from execution policy values.
func New(maxConcurrent int, timeoutPerObserver time.Duration) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Scheduler{MaxConcurrent: maxConcurrent, TimeoutPerObserver: timeoutPerObserver}
}

// RunBatch runs each task with at most MaxConcurrent executing concurrently,
// under a global deadline of 2x TimeoutPerObserver. On global timeout, no
// partial results are returned (per SPEC_FULL.md §4.6, the caller must then
// avoid advancing the fingerprint). A task returning a non-nil error
// (on_timeout=="fail" escalation, or any other exception) is dropped from
// results but does not cancel its peers; the first such error is returned
// alongside whatever partial results the batch did collect, for logging —
// callers that care about failure isolation (SPEC_FULL.md §8 property 6)
// should still use the returned results.
func (s *Scheduler) RunBatch(ctx context.Context, bindings []model.ObserverBinding, tasks []Task) ([]parser.Result, error) {
	globalDeadline := 2 * s.TimeoutPerObserver
	batchCtx, cancel := context.WithTimeout(ctx, globalDeadline)
	defer cancel()

	results := make([]parser.Result, len(tasks))
	ok := make([]bool, len(tasks))

	sem := make(chan struct{}, s.MaxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task, name string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-batchCtx.Done():
				return
			}
			defer func() { <-sem }()

			res, err := task(batchCtx)
			if err != nil {
				log.Error().Err(err).Str("observer", name).Msg("observer_task_failed")
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			results[i] = res
			ok[i] = true
			mu.Unlock()
		}(i, task, bindingName(bindings, i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-batchCtx.Done():
		log.Warn().Dur("deadline", globalDeadline).Msg("scheduler_global_timeout_exceeded")
		return nil, context.DeadlineExceeded
	}

	out := make([]parser.Result, 0, len(results))
	for i, r := range results {
		if ok[i] {
			out = append(out, r)
		}
	}
	return out, firstErr
}

func bindingName(bindings []model.ObserverBinding, i int) string {
	if i < len(bindings) {
		return bindings[i].Name
	}
	return "unknown"
}

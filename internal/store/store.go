// Package store defines the opaque observations store the orchestrator
// consumes (SPEC_FULL.md §6), plus two concrete implementations: an
// in-process MemoryStore (default, used by tests) and a Redis-backed
// RedisStore for hosts that want observations to survive a process
// restart. Neither implementation is "the" store; any conforming
// implementation may be substituted.
package store

import (
	"context"

	"sentinel/internal/model"
)

// ListFilters narrows a List call.
type ListFilters struct {
	Status   model.Status
	Severity model.Severity
	Observer string
}

// ListOptions controls a List call.
type ListOptions struct {
	Filters ListFilters
	SortBy  string
	Limit   int
}

// ListResult is the result of a List call.
type ListResult struct {
	Observations []model.Observation
	Count        int
	Total        int
}

// Store is the opaque observations store the core depends on. Its exact
// CRUD shape is the one spec §6 names (create_batch, list, get,
// acknowledge, resolve, clear_resolved, create), expressed here as typed Go
// methods rather than an operation-dispatch string, since the host
// language's single opaque "tool.execute(op)" call has no structural
// counterpart worth reproducing in a statically typed surface.
type Store interface {
	CreateBatch(ctx context.Context, observations []model.Observation) ([]model.Observation, error)
	Create(ctx context.Context, observation model.Observation) (model.Observation, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, id string) (model.Observation, error)
	Acknowledge(ctx context.Context, id string) error
	Resolve(ctx context.Context, id, resolutionNote string) error
	ClearResolved(ctx context.Context) (int, error)
}

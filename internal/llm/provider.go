// Package llm defines the opaque provider surface the observer runner
// depends on, plus the optional spawn capability used by observers that
// list tools. See SPEC_FULL.md §6.
package llm

import (
	"context"

	"sentinel/internal/model"
)

// Provider is the opaque LLM collaborator. Complete is the only call the
// core dispatch path requires; Spawn is optional and only consulted when a
// binding lists tools.
type Provider interface {
	Complete(ctx context.Context, req model.ChatRequest) (model.Response, error)
}

// ToolSpawner is implemented by providers that can run an instruction with
// tool access, letting an observer read files itself rather than being
// fed a pre-collected payload.
type ToolSpawner interface {
	Spawn(ctx context.Context, instruction, system, model string, tools []string) (string, error)
}

// Registry holds the set of providers configured for this process, keyed by
// name ("anthropic", "openai", "google"). The runner dispatches against the
// first registered provider, per SPEC_FULL.md §4.3.
type Registry struct {
	order     []string
	providers map[string]Provider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds a provider under name, preserving registration order.
func (r *Registry) Register(name string, p Provider) {
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = p
}

// First returns the first registered provider, or nil if none is
// registered (the provider_missing error condition).
func (r *Registry) First() Provider {
	if len(r.order) == 0 {
		return nil
	}
	return r.providers[r.order[0]]
}

// Get returns the provider registered under name, or nil.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Package hook wires every other component into the two host-facing entry
// points: on_event ("run observers now") and on_next_turn ("inject
// summary"). See SPEC_FULL.md §4.7.
package hook

import (
	"context"

	"sentinel/internal/fingerprint"
)

// Event is the host-fired payload an Orchestrator handler receives. Only the
// conversation transcript is modeled; hosts that fire events with richer
// payloads can be adapted by wrapping Orchestrator.
type Event struct {
	Messages []fingerprint.ConversationMessage
}

// Result is what a handler returns to the host.
type Result struct {
	Action               string // "continue" | "inject_context"
	ContextInjection     string
	ContextInjectionRole string
}

// ResultContinue is the zero-effort result every handler returns when it has
// nothing to contribute this turn.
var ResultContinue = Result{Action: "continue"}

// HookFunc is the shape every mounted handler has.
type HookFunc func(ctx context.Context, eventName string, event Event) (Result, error)

// Coordinator is the host's hook registry. Mount registers this
// orchestrator's two handlers against it.
type Coordinator interface {
	RegisterHook(trigger string, priority int, handler HookFunc) error
}

package model

// WatchKind selects whether a WatchSpec covers a file tree or the
// conversation transcript.
type WatchKind string

const (
	WatchFiles        WatchKind = "files"
	WatchConversation WatchKind = "conversation"
)

// WatchSpec declares one thing an observer watches for changes. Files specs
// require Paths; conversation specs ignore them.
type WatchSpec struct {
	Kind WatchKind `yaml:"kind" json:"kind"`
	// Paths is a list of globs, expanded recursively, for Kind == WatchFiles.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	// IncludeToolCalls, when false, drops role=="tool" messages from the
	// conversation payload. Only meaningful for Kind == WatchConversation.
	IncludeToolCalls bool `yaml:"include_tool_calls" json:"include_tool_calls"`
	// IncludeReasoning is reserved. The source declares it but never acts on
	// it; kept as a no-op field until host semantics are defined (see
	// SPEC_FULL.md §9, open question (a)).
	IncludeReasoning bool `yaml:"include_reasoning" json:"include_reasoning"`
}

// ObserverKind distinguishes a plain role/focus observer from one loaded
// from a markdown+frontmatter definition. Modeled as a tagged variant rather
// than an interface hierarchy: the runner only ever calls FullInstruction.
type ObserverKind string

const (
	ObserverSimple ObserverKind = "simple"
	ObserverLoaded ObserverKind = "loaded"
)

// ObserverBinding is the orchestrator's in-memory representation of one
// configured observer, ready for dispatch.
type ObserverBinding struct {
	Name    string
	Role    string
	Focus   string
	Model   string
	Timeout int // seconds
	Enabled bool
	Watch   []WatchSpec

	Kind ObserverKind

	// Instruction and Tools are populated only when Kind == ObserverLoaded.
	Instruction string
	Tools       []string
}

// FullInstruction returns the system-prompt text for this binding,
// regardless of whether it was declared inline (Simple) or loaded from a
// markdown definition (Loaded). This is the common surface the runner
// depends on.
func (b ObserverBinding) FullInstruction() string {
	if b.Kind == ObserverLoaded && b.Instruction != "" {
		return b.Instruction
	}
	role := b.Role
	if role == "" {
		role = "reviewer"
	}
	focus := b.Focus
	if focus == "" {
		return "You are " + role + "."
	}
	return "You are " + role + ". Focus: " + focus + "."
}

// HasTools reports whether this binding should be dispatched through the
// host's spawn capability rather than a direct complete call.
func (b ObserverBinding) HasTools() bool {
	return len(b.Tools) > 0
}

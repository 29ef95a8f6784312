// Package runner executes one observer against its collected payload:
// prompt assembly, invocation-path selection (direct complete vs spawn),
// per-observer timeout, and response-text extraction. See SPEC_FULL.md §4.3.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel/internal/config"
	"sentinel/internal/llm"
	"sentinel/internal/model"
	"sentinel/internal/parser"
)

const outputProtocol = `Respond with a JSON object with exactly two top-level arrays:
{
  "observations": [{"content": "...", "severity": "critical|high|medium|low|info", "source_ref": "...", "metadata": {"category": "...", "suggestion": "..."}}],
  "resolved": [{"id": "...", "reason": "..."}]
}
If there is nothing to report, respond with an empty observations array, or the text "No issues found."`

const existingObservationsPlaceholder = "{{existing_observations}}"

// Runner executes one ObserverBinding against its content payload.
type Runner struct {
	Providers *llm.Registry
	OnTimeout config.OnTimeoutPolicy
}

// New returns a Runner dispatching against the given provider registry.
func New(providers *llm.Registry, onTimeout config.OnTimeoutPolicy) *Runner {
	return &Runner{Providers: providers, OnTimeout: onTimeout}
}

// Run executes binding against content, with openObservations supplying the
// "Previously Reported Issues" context, and returns the parsed result. It
// never returns an error for per-observer failures — those are folded into
// an empty parser.Result per SPEC_FULL.md §7, except when OnTimeout=="fail",
// in which case a timeout is returned as an error to the caller (the
// scheduler), which treats it like any other per-observer exception.
func (r *Runner) Run(ctx context.Context, binding model.ObserverBinding, content string, openObservations []model.Observation) (parser.Result, error) {
	prompt := buildPrompt(binding, content, openObservations)

	timeout := time.Duration(binding.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := r.invoke(callCtx, binding, prompt)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			log.Warn().Str("observer", binding.Name).Msg("observer_run_timeout")
			if r.OnTimeout == config.OnTimeoutFail {
				return parser.Result{}, fmt.Errorf("observer %q timed out: %w", binding.Name, err)
			}
			return parser.Result{}, nil
		}
		log.Error().Err(err).Str("observer", binding.Name).Msg("observer_run_exception")
		return parser.Result{}, nil
	}

	result := parser.Parse(binding.Name, text)
	refineSourceType(result, binding)
	return result, nil
}

// refineSourceType narrows the parser's blanket source_type="mixed" default
// to "file" or "conversation" when a binding watches only one kind of
// source, so the Deduper's file-tier key selection (SPEC_FULL.md §4.5) can
// fire for single-source-kind observers. Parse-failure fallback
// observations (source_type="unknown") are left untouched, per SPEC_FULL.md
// §9(b). A binding watching both kinds keeps the parser's "mixed" default,
// since no single answer is correct there.
func refineSourceType(result parser.Result, binding model.ObserverBinding) {
	srcType, ok := singleWatchKind(binding)
	if !ok {
		return
	}
	for i := range result.Observations {
		if result.Observations[i].ParseError() {
			continue
		}
		result.Observations[i].SourceType = srcType
	}
}

func singleWatchKind(binding model.ObserverBinding) (model.SourceType, bool) {
	hasFiles, hasConversation := false, false
	for _, w := range binding.Watch {
		switch w.Kind {
		case model.WatchFiles:
			hasFiles = true
		case model.WatchConversation:
			hasConversation = true
		}
	}
	switch {
	case hasFiles && !hasConversation:
		return model.SourceTypeFile, true
	case hasConversation && !hasFiles:
		return model.SourceTypeConversation, true
	default:
		return "", false
	}
}

// buildPrompt assembles the three-part prompt: content, previous-issues
// block (appended or substituted into a {{existing_observations}}
// placeholder), and the output-format protocol.
func buildPrompt(binding model.ObserverBinding, content string, open []model.Observation) string {
	issues := formatPreviousIssues(open)

	instruction := binding.FullInstruction()
	if strings.Contains(instruction, existingObservationsPlaceholder) {
		instruction = strings.ReplaceAll(instruction, existingObservationsPlaceholder, issues)
		return strings.Join([]string{instruction, content, outputProtocol}, "\n\n")
	}

	parts := []string{content}
	if issues != "" {
		parts = append(parts, issues)
	}
	parts = append(parts, outputProtocol)
	return strings.Join(parts, "\n\n")
}

func formatPreviousIssues(open []model.Observation) string {
	if len(open) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previously Reported Issues:\n")
	for _, o := range open {
		prefix := o.Content
		if len(prefix) > 100 {
			prefix = prefix[:100]
		}
		fmt.Fprintf(&b, "id=%s [%s] %s: %s\n", o.ID, o.Severity, o.SourceRef, prefix)
	}
	return strings.TrimRight(b.String(), "\n")
}

// invoke picks the spawn path (binding lists tools) or the direct complete
// path, and extracts response text per SPEC_FULL.md §4.3.
func (r *Runner) invoke(ctx context.Context, binding model.ObserverBinding, prompt string) (string, error) {
	if binding.HasTools() {
		spawner, ok := providerAsSpawner(r.Providers)
		if !ok {
			log.Warn().Str("observer", binding.Name).Msg("observer_provider_missing_spawn")
			return "", nil
		}
		return spawner.Spawn(ctx, prompt, binding.FullInstruction(), binding.Model, binding.Tools)
	}

	p := r.Providers.First()
	if p == nil {
		log.Warn().Str("observer", binding.Name).Msg("observer_provider_missing")
		return "", nil
	}
	resp, err := p.Complete(ctx, model.ChatRequest{
		Messages: []model.Message{
			{Role: "system", Content: binding.FullInstruction()},
			{Role: "user", Content: prompt},
		},
		Model: binding.Model,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func providerAsSpawner(r *llm.Registry) (llm.ToolSpawner, bool) {
	p := r.First()
	if p == nil {
		return nil, false
	}
	s, ok := p.(llm.ToolSpawner)
	return s, ok
}

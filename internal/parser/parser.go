// Package parser tolerantly extracts {observations, resolved} from
// arbitrary LLM text, absorbing the noise of free-form model output rather
// than treating it as strictly schema'd JSON. See SPEC_FULL.md §4.4, §9.
package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"sentinel/internal/model"
)

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n?```")
	fencedAnyBlock  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*\\n(.*?)\\n?```")
	embeddedObject  = regexp.MustCompile(`(?s)\{[^{}]*"observations"[^{}]*\[.*?\].*?\}`)
)

// rawObservation mirrors the wire shape an observer is asked to emit,
// before the parser fills in the fields the core is responsible for.
type rawObservation struct {
	Content   string         `json:"content"`
	Severity  string         `json:"severity"`
	SourceRef string         `json:"source_ref"`
	Metadata  map[string]any `json:"metadata"`
}

type rawResult struct {
	Observations []rawObservation `json:"observations"`
	Resolved     []model.Resolved `json:"resolved"`
}

// Result is the parser's output for one observer run.
type Result struct {
	Observations []model.Observation
	Resolved     []model.Resolved
}

// Parse extracts a Result from raw observer output text for the named
// observer, following the fenced-block / regex / fallback cascade.
func Parse(observer, text string) Result {
	trimmed := strings.TrimSpace(text)

	candidate := extractCandidate(trimmed)

	var raw rawResult
	if candidate != "" && json.Unmarshal([]byte(candidate), &raw) == nil {
		return toResult(observer, raw)
	}

	// Decode failure: fall back to a single info observation iff the text
	// is substantive, per SPEC_FULL.md §4.4.
	if len(trimmed) > 50 && !strings.HasPrefix(trimmed, "No issues") {
		excerpt := trimmed
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		return Result{
			Observations: []model.Observation{
				{
					Observer:   observer,
					Content:    excerpt,
					Severity:   model.SeverityInfo,
					Status:     model.StatusOpen,
					SourceType: model.SourceTypeUnknown,
					Metadata:   map[string]any{"parse_error": true},
				},
			},
		}
	}
	return Result{}
}

// extractCandidate applies the fenced-block / regex cascade (steps 1-3 of
// SPEC_FULL.md §4.4) and returns the JSON text to attempt decoding, or the
// original trimmed text if none of the patterns fired.
func extractCandidate(trimmed string) string {
	if m := fencedJSONBlock.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyBlock.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(trimmed, "{") {
		if m := embeddedObject.FindString(trimmed); m != "" {
			return m
		}
	}
	return trimmed
}

func toResult(observer string, raw rawResult) Result {
	observations := make([]model.Observation, 0, len(raw.Observations))
	for _, ro := range raw.Observations {
		meta := ro.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		observations = append(observations, model.Observation{
			Observer:   observer,
			Content:    ro.Content,
			Severity:   model.Severity(ro.Severity),
			Status:     model.StatusOpen,
			SourceType: model.SourceTypeMixed,
			SourceRef:  ro.SourceRef,
			Metadata:   meta,
		})
	}
	resolved := raw.Resolved
	if resolved == nil {
		resolved = []model.Resolved{}
	}
	return Result{Observations: observations, Resolved: resolved}
}

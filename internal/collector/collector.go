// Package collector assembles the bounded text payload an observer
// reviews: file contents up to a hard character cap, or a truncated
// conversation transcript. See SPEC_FULL.md §4.2.
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sentinel/internal/fingerprint"
	"sentinel/internal/globutil"
	"sentinel/internal/model"
)

const (
	// MaxFileBytes is the hard cap on total files content, in characters.
	MaxFileBytes = 50_000
	// MaxConversationMessages is the number of trailing messages considered.
	MaxConversationMessages = 20
	// MaxMessageChars is the per-message truncation length.
	MaxMessageChars = 2_000

	truncationMarker = "\n...[truncated]"
)

// Globber expands a glob pattern into matching file paths, in the same
// order a host filesystem would yield them.
type Globber func(pattern string) ([]string, error)

// Collector builds review payloads for one or more WatchSpecs.
type Collector struct {
	Glob Globber
}

// New returns a Collector backed by the real filesystem.
func New() *Collector {
	return &Collector{Glob: defaultGlob}
}

// Build assembles the full payload for a binding's watch list, joining
// per-watch sections with "---".
func (c *Collector) Build(watches []model.WatchSpec, messages []fingerprint.ConversationMessage) string {
	var sections []string
	for _, w := range watches {
		switch w.Kind {
		case model.WatchFiles:
			if s := c.buildFiles(w.Paths); s != "" {
				sections = append(sections, s)
			}
		case model.WatchConversation:
			if s := c.buildConversation(w, messages); s != "" {
				sections = append(sections, s)
			}
		}
	}
	return strings.Join(sections, "\n---\n")
}

// buildFiles reads matching files in glob order, accumulating content until
// the 50,000 character cap, truncating the file that would exceed it and
// reading no further files.
func (c *Collector) buildFiles(patterns []string) string {
	var b strings.Builder
	budget := MaxFileBytes
	seen := map[string]bool{}

	for _, pattern := range patterns {
		if budget <= 0 {
			break
		}
		matches, err := c.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if budget <= 0 {
				break
			}
			if seen[path] {
				continue
			}
			seen[path] = true

			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			content := string(data)
			truncated := false
			if len(content) > budget {
				content = content[:budget]
				truncated = true
			}
			budget -= len(content)

			fmt.Fprintf(&b, "### %s\n```\n%s\n```\n", path, content)
			if truncated {
				b.WriteString("[truncated: character cap reached]\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildConversation takes the last 20 messages, then drops tool messages
// from that window when the watch excludes them, truncating each surviving
// message to 2,000 characters. The window is taken before filtering so a
// watch with include_tool_calls=false still reflects the true last 20
// messages rather than backfilling further into history.
func (c *Collector) buildConversation(w model.WatchSpec, messages []fingerprint.ConversationMessage) string {
	window := messages
	if len(window) > MaxConversationMessages {
		window = window[len(window)-MaxConversationMessages:]
	}

	filtered := make([]fingerprint.ConversationMessage, 0, len(window))
	for _, m := range window {
		if m.Role == "tool" && !w.IncludeToolCalls {
			continue
		}
		filtered = append(filtered, m)
	}

	var b strings.Builder
	for i, m := range filtered {
		content := m.Content
		if len(content) > MaxMessageChars {
			content = content[:MaxMessageChars] + truncationMarker
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "**%s**: %s", m.Role, content)
	}
	return b.String()
}

func defaultGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") {
		return globutil.GlobDoubleStar(pattern)
	}
	return filepath.Glob(pattern)
}

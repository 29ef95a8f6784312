// Package fingerprint computes the StateFingerprint used by the
// orchestrator to decide whether a watched source has changed since the
// last run. See SPEC_FULL.md §4.1.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"sentinel/internal/globutil"
	"sentinel/internal/model"
)

// fileRecord is the (path, mtime, size) tuple recorded for one watched file.
type fileRecord struct {
	Path  string `json:"path"`
	Mtime int64  `json:"mtime"`
	Size  int64  `json:"size"`
}

// ConversationMessage is the minimal shape the fingerprinter needs from a
// host-fired event's message list.
type ConversationMessage struct {
	Role    string
	Content string
}

// StatFunc abstracts filesystem access so tests can fake mtimes/sizes
// without touching disk. Globber abstracts recursive glob expansion.
type StatFunc func(path string) (mtime int64, size int64, ok bool)
type Globber func(pattern string) ([]string, error)

// Fingerprinter computes StateFingerprints over a set of enabled bindings.
type Fingerprinter struct {
	Glob Globber
	Stat StatFunc
}

// New returns a Fingerprinter backed by the real filesystem.
func New() *Fingerprinter {
	return &Fingerprinter{
		Glob: defaultGlob,
		Stat: globutil.DefaultStat,
	}
}

// Compute hashes every enabled binding's watch specs into one composite
// StateFingerprint (a 128-bit hex digest), per SPEC_FULL.md §4.1.
func (f *Fingerprinter) Compute(bindings []model.ObserverBinding, messages []ConversationMessage) (string, error) {
	var digests []string
	for _, b := range bindings {
		if !b.Enabled {
			continue
		}
		for _, w := range b.Watch {
			var d string
			var err error
			switch w.Kind {
			case model.WatchFiles:
				d, err = f.hashFiles(w.Paths)
			case model.WatchConversation:
				d = f.hashConversation(messages)
			default:
				continue
			}
			if err != nil {
				return "", fmt.Errorf("fingerprint watch %q: %w", w.Kind, err)
			}
			digests = append(digests, d)
		}
	}
	composite := strings.Join(digests, "|")
	sum := md5.Sum([]byte(composite))
	return hex.EncodeToString(sum[:]), nil
}

// hashFiles expands every glob recursively, records (path, mtime, size) for
// each existing regular file, sorts lexicographically, and hashes the
// serialized list. Unreadable files are silently skipped — intentional, so
// a single unreadable file doesn't force a run on every tick.
func (f *Fingerprinter) hashFiles(patterns []string) (string, error) {
	var records []fileRecord
	seen := map[string]bool{}
	for _, pattern := range patterns {
		matches, err := f.Glob(pattern)
		if err != nil {
			continue // unreadable/invalid glob: skip silently, same policy as unreadable files
		}
		for _, path := range matches {
			if seen[path] {
				continue
			}
			seen[path] = true
			mtime, size, ok := f.Stat(path)
			if !ok {
				continue
			}
			records = append(records, fileRecord{Path: path, Mtime: mtime, Size: size})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	b, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// hashConversation keeps only {user, assistant, tool} roles, truncates each
// content to the first 500 bytes, serializes with stable key order, hashes.
func (f *Fingerprinter) hashConversation(messages []ConversationMessage) string {
	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var entries []entry
	for _, m := range messages {
		switch m.Role {
		case "user", "assistant", "tool":
		default:
			continue
		}
		content := m.Content
		if len(content) > 500 {
			content = content[:500]
		}
		entries = append(entries, entry{Role: m.Role, Content: content})
	}
	b, _ := json.Marshal(entries)
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func defaultGlob(pattern string) ([]string, error) {
	// filepath.Glob does not recurse through "**"; expand the directory
	// portion with WalkDir when the pattern contains it.
	if strings.Contains(pattern, "**") {
		return globutil.GlobDoubleStar(pattern)
	}
	return filepath.Glob(pattern)
}

// Package dedupe computes stable ObservationKeys and filters duplicate
// observations across batches and across runs. See SPEC_FULL.md §4.5.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"sentinel/internal/model"
	"sentinel/internal/parser"
)

// Key computes the stable ObservationKey for one observation, following the
// three-tier selection order: file source_ref, then metadata.category, then
// a content hash.
func Key(o model.Observation) string {
	if o.SourceRef != "" && o.SourceType == model.SourceTypeFile {
		return fmt.Sprintf("%s:file:%s:%s", o.Observer, o.SourceRef, o.Severity)
	}
	if category := categoryOf(o); category != "" {
		return fmt.Sprintf("%s:%s:%s:%s", o.Observer, category, o.Severity, o.SourceRef)
	}
	return fmt.Sprintf("%s:%s:%s", o.Observer, o.Severity, contentHash(o.Content))
}

// categoryOf probes metadata.category out of a loosely-typed map via gjson,
// which tolerates the map holding already-marshaled JSON (as it does when an
// observation round-trips through the store) as well as native Go values.
func categoryOf(o model.Observation) string {
	if o.Metadata == nil {
		return ""
	}
	if v, ok := o.Metadata["category"].(string); ok {
		return v
	}
	raw, err := json.Marshal(o.Metadata)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(raw, "category").String()
}

// normalize lowercases and collapses whitespace (strings.Fields joined by
// single spaces) for stable text comparison.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

func contentHash(content string) string {
	n := normalize(content)
	if len(n) > 100 {
		n = n[:100]
	}
	sum := sha256.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])[:8]
}

// Aggregate merges results from multiple observer runs in order, keeping the
// first-seen key for observations and the first-seen id for resolved items.
// Non-result entries (exception sentinels) are represented as zero-value
// parser.Result and contribute nothing.
func Aggregate(results []parser.Result) (observations []model.Observation, resolved []model.Resolved) {
	seenKeys := map[string]bool{}
	seenIDs := map[string]bool{}

	for _, r := range results {
		for _, o := range r.Observations {
			k := Key(o)
			if seenKeys[k] {
				continue
			}
			seenKeys[k] = true
			observations = append(observations, o)
		}
		for _, res := range r.Resolved {
			if res.ID == "" || seenIDs[res.ID] {
				continue
			}
			seenIDs[res.ID] = true
			resolved = append(resolved, res)
		}
	}
	return observations, resolved
}

// FilterOpen drops any incoming observation whose key already exists among
// currently open observations, making writes idempotent across runs.
func FilterOpen(incoming []model.Observation, currentlyOpen []model.Observation) []model.Observation {
	existing := map[string]bool{}
	for _, o := range currentlyOpen {
		existing[Key(o)] = true
	}
	out := make([]model.Observation, 0, len(incoming))
	for _, o := range incoming {
		if existing[Key(o)] {
			continue
		}
		out = append(out, o)
	}
	return out
}

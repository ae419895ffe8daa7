// ABOUTME: Deterministic two-way merge for conflicting record versions
// ABOUTME: Boolean-OR on the reviewed flag, last-writer-wins for everything else
package sync

import (
	"github.com/harperreed/trendscope/models"
)

// Reconcile merges two versions of the same keyword. The reviewed flag is
// OR-combined so a review is never lost; every other field, the ID included,
// is taken wholesale from the side with the larger timestamp. Ties keep the
// existing record.
//
// The rule is idempotent and associative: Reconcile(X, X) == X, and folding
// any number of versions yields the same result in any order.
func Reconcile(existing, incoming models.TrendsRecord) models.TrendsRecord {
	merged := existing
	if incoming.Timestamp > existing.Timestamp {
		merged = incoming
	}
	merged.Reviewed = existing.Reviewed || incoming.Reviewed
	return merged
}

// Dedupe collapses records sharing a target keyword via Reconcile,
// preserving first-seen order. Lookups go through a keyword map rather than
// repeated scans.
func Dedupe(records []models.TrendsRecord) []models.TrendsRecord {
	index := make(map[string]int, len(records))
	out := make([]models.TrendsRecord, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.TargetKeyword]; ok {
			out[i] = Reconcile(out[i], r)
			continue
		}
		index[r.TargetKeyword] = len(out)
		out = append(out, r)
	}
	return out
}

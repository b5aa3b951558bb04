package matcher

import (
	"time"

	"property-reconciliation-engine/internal/models"
)

// TruthEntry is one indexed truth record with its matching text
// precomputed. The folded payee and token set are derived once at index
// build time so scoring does not re-fold strings per candidate pair.
type TruthEntry struct {
	Record *models.TruthRecord

	ord    int
	folded string
	tokens []string
}

// TruthIndex provides day-bucketed lookups over one truth snapshot.
// Buckets preserve export order, which keeps candidate lists and therefore
// match outcomes deterministic.
type TruthIndex struct {
	byDay   map[int][]*TruthEntry
	entries []*TruthEntry
}

// NewTruthIndex indexes the given truth records for candidate lookup.
// Records marked excluded are left out entirely: they can neither match
// nor count as extra.
func NewTruthIndex(records []*models.TruthRecord) *TruthIndex {
	index := &TruthIndex{
		byDay: make(map[int][]*TruthEntry),
	}
	for _, record := range records {
		if record.Excluded {
			continue
		}
		entry := &TruthEntry{
			Record: record,
			ord:    len(index.entries),
			folded: models.FoldPayee(record.Payee),
			tokens: models.PayeeTokens(record.Payee),
		}
		index.entries = append(index.entries, entry)
		key := dayKey(record.Date)
		index.byDay[key] = append(index.byDay[key], entry)
	}
	return index
}

// Size returns the number of matchable records in the index
func (ti *TruthIndex) Size() int {
	return len(ti.entries)
}

// Entries returns all matchable records in export order
func (ti *TruthIndex) Entries() []*TruthEntry {
	return ti.entries
}

// WindowCandidates returns the entries dated within toleranceDays of the
// given date, earliest day first and in export order within a day
func (ti *TruthIndex) WindowCandidates(date time.Time, toleranceDays int) []*TruthEntry {
	center := dayKey(date)
	var candidates []*TruthEntry
	for day := center - toleranceDays; day <= center+toleranceDays; day++ {
		candidates = append(candidates, ti.byDay[day]...)
	}
	return candidates
}

// dayKey converts a date to a whole-day number. Dates are normalized to
// midnight UTC first, so the division is exact.
func dayKey(t time.Time) int {
	return int(models.DayOf(t).Unix() / 86400)
}

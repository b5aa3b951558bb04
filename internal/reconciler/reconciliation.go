// Package reconciler turns one matching pass over a reporting window into
// a reconciliation report.
//
// The engine is a pure function of its inputs: the raw records, the truth
// records, the rejected rows carried along for visibility, and the matching
// configuration. It reads no clock, generates no identifiers, and never
// writes back to the truth side. Running it twice over the same inputs
// produces identical reports, which is what makes a report reproducible
// from the run history.
package reconciler

import (
	"sort"
	"time"

	"property-reconciliation-engine/internal/matcher"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
)

// Input carries everything one reconciliation pass works on
type Input struct {
	// Raw are the latest-version raw records inside the window, across
	// all ingested sources
	Raw []*models.RawRecord
	// Truth are the current snapshot's records inside the window
	Truth []*models.TruthRecord
	// Rejected are the rows that failed normalization for the
	// participating sources; they bypass matching and appear in the
	// report verbatim
	Rejected []models.RejectedRow
	// WindowStart and WindowEnd bound the reporting period
	WindowStart time.Time
	WindowEnd   time.Time
	// SnapshotID identifies the truth snapshot the records came from
	SnapshotID string
}

// Validate checks the input for structural problems
func (in *Input) Validate() error {
	if !in.WindowStart.IsZero() && !in.WindowEnd.IsZero() && in.WindowStart.After(in.WindowEnd) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reporting window",
			in.WindowStart.Format("2006-01-02")+".."+in.WindowEnd.Format("2006-01-02"), nil).
			WithSuggestion("the window start must not be after the window end")
	}
	return nil
}

// Reconcile matches the input's raw records against its truth records and
// assembles the outcome into a report: results grouped by classification,
// chronological within each group, with summary counts and the rejected
// rows appended. The truth side is only read, never modified.
func Reconcile(input Input, config *matcher.MatchingConfig) (*Report, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	m, err := matcher.NewMatcher(config)
	if err != nil {
		return nil, err
	}

	outcome := m.Match(input.Raw, input.Truth)

	report := &Report{
		WindowStart: input.WindowStart,
		WindowEnd:   input.WindowEnd,
		SnapshotID:  input.SnapshotID,
		Config:      m.Config(),
		Rejected:    input.Rejected,
		Summary:     buildSummary(input, outcome),
	}
	for _, classification := range GroupOrder {
		group := Group{Classification: classification}
		for _, result := range outcome.Results {
			if result.Classification == classification {
				group.Results = append(group.Results, result)
			}
		}
		sortChronologically(group.Results)
		report.Groups = append(report.Groups, group)
	}
	return report, nil
}

// buildSummary computes the aggregate figures for the report header
func buildSummary(input Input, outcome *matcher.MatchOutcome) Summary {
	summary := Summary{
		RawCount:         outcome.Stats.RawCount,
		TruthCount:       outcome.Stats.TruthCount,
		Matched:          outcome.Stats.Matched,
		AmountMismatches: outcome.Stats.AmountMismatches,
		MissingFromTruth: outcome.Stats.MissingFromTruth,
		ExtraInTruth:     outcome.Stats.ExtraInTruth,
		RejectedRows:     len(input.Rejected),
	}
	for _, record := range input.Raw {
		summary.NetRawCents += record.AmountCents
	}
	for _, record := range input.Truth {
		if record.Excluded {
			continue
		}
		summary.NetTruthCents += record.AmountCents
	}
	summary.NetDifferenceCents = summary.NetRawCents - summary.NetTruthCents
	if summary.RawCount > 0 {
		summary.MatchRate = float64(summary.Matched) / float64(summary.RawCount)
	}
	return summary
}

// sortChronologically orders results by date, breaking ties by raw
// ingestion order and then truth export order so the report is stable
func sortChronologically(results []*models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		da, db := a.ResultDate(), b.ResultDate()
		if !da.Equal(db) {
			return da.Before(db)
		}
		if ra, rb := rawID(a), rawID(b); ra != rb {
			return ra < rb
		}
		return truthPosition(a) < truthPosition(b)
	})
}

func rawID(result *models.MatchResult) uint {
	if result.Raw == nil {
		return 0
	}
	return result.Raw.ID
}

func truthPosition(result *models.MatchResult) int {
	if result.Truth == nil {
		return -1
	}
	return result.Truth.Position
}

package reconciler

import (
	"encoding/json"
	"time"

	"property-reconciliation-engine/internal/matcher"
	"property-reconciliation-engine/internal/models"
)

// GroupOrder fixes the order classifications appear in every report:
// confirmations first, then the discrepancies in decreasing actionability
var GroupOrder = []models.Classification{
	models.ClassificationMatched,
	models.ClassificationAmountMismatch,
	models.ClassificationMissingFromTruth,
	models.ClassificationExtraInTruth,
}

// Report contains the complete results of one reconciliation pass
type Report struct {
	// Window and snapshot identify what was reconciled
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`

	// Config echoes the matching parameters the pass ran with
	Config *matcher.MatchingConfig `json:"config,omitempty"`

	// Summary information
	Summary Summary `json:"summary"`

	// Groups hold the results in GroupOrder, chronological within each
	Groups []Group `json:"groups"`

	// Rejected are the rows that never entered matching
	Rejected []models.RejectedRow `json:"rejected_rows,omitempty"`
}

// Group collects the results sharing one classification
type Group struct {
	Classification models.Classification `json:"classification"`
	Results        []*models.MatchResult `json:"results,omitempty"`
}

// Summary provides a high-level overview of the reconciliation results
type Summary struct {
	// Record counts
	RawCount     int `json:"raw_count"`
	TruthCount   int `json:"truth_count"`
	RejectedRows int `json:"rejected_rows"`

	// Classification breakdown
	Matched          int `json:"matched"`
	AmountMismatches int `json:"amount_mismatches"`
	MissingFromTruth int `json:"missing_from_truth"`
	ExtraInTruth     int `json:"extra_in_truth"`

	// MatchRate is the share of raw records that found a truth partner
	MatchRate float64 `json:"match_rate"`

	// Financial summary, in signed cents. The difference is raw minus
	// truth, so a positive figure means the sources carry more money
	// than the platform of record.
	NetRawCents        int64 `json:"net_raw_cents"`
	NetTruthCents      int64 `json:"net_truth_cents"`
	NetDifferenceCents int64 `json:"net_difference_cents"`
}

// Discrepancies returns the number of results needing manual attention
func (s Summary) Discrepancies() int {
	return s.AmountMismatches + s.MissingFromTruth + s.ExtraInTruth
}

// ResultsFor returns the results carrying the given classification
func (r *Report) ResultsFor(classification models.Classification) []*models.MatchResult {
	for _, group := range r.Groups {
		if group.Classification == classification {
			return group.Results
		}
	}
	return nil
}

// RunRecords converts the report into its persisted form: one run row
// plus one match row per result, all stamped with the given run id. The
// matching configuration is serialized along so the pass can be replayed.
func (r *Report) RunRecords(runID string, startedAt, completedAt time.Time) (*models.ReconcileRun, []*models.MatchRecord) {
	run := &models.ReconcileRun{
		RunID:         runID,
		WindowStart:   r.WindowStart,
		WindowEnd:     r.WindowEnd,
		SnapshotID:    r.SnapshotID,
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
		MatchedCount:  r.Summary.Matched,
		MismatchCount: r.Summary.AmountMismatches,
		MissingCount:  r.Summary.MissingFromTruth,
		ExtraCount:    r.Summary.ExtraInTruth,
		RejectedCount: r.Summary.RejectedRows,
	}
	if r.Config != nil {
		data, _ := json.Marshal(r.Config)
		run.ConfigJSON = string(data)
	}

	var records []*models.MatchRecord
	for _, group := range r.Groups {
		for _, result := range group.Results {
			records = append(records, result.Record(runID))
		}
	}
	return run, records
}

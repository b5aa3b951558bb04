// Package adapters maps raw source export rows to canonical transactions.
//
// One adapter exists per source kind: bank statements (with per-bank format
// variants), the property manager's transaction export, and the truth
// platform's ledger export. Adapters are pure functions over their input
// rows; they never touch persistence. Rows that cannot be normalized are
// collected as rejections rather than aborting the batch, and rows excluded
// by policy are reported alongside the produced transactions.
package adapters

import (
	"property-reconciliation-engine/internal/csvio"
	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
)

// Adapter converts raw export rows into canonical transactions
type Adapter interface {
	// Source returns the adapter's source kind
	Source() models.SourceKind
	// Produce maps the given rows to canonical transactions. Unparseable
	// rows are reported in the result, never as an error; an error means
	// the input as a whole could not be processed.
	Produce(rows []csvio.Row) (*ProduceResult, error)
}

// ExcludedRow describes a row removed or sidelined by adapter policy.
// The bank and property-manager adapters drop excluded rows from
// Transactions entirely; the truth adapter keeps them in Transactions and
// the store marks them as excluded from matching.
type ExcludedRow struct {
	Line        int    `json:"line"`
	ExternalRef string `json:"external_ref,omitempty"`
	Payee       string `json:"payee,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// ProduceStats summarizes one adapter pass
type ProduceStats struct {
	RowsSeen        int `json:"rows_seen"`
	Produced        int `json:"produced"`
	Rejected        int `json:"rejected"`
	Excluded        int `json:"excluded"`
	CompositeSplits int `json:"composite_splits"`
}

// ProduceResult holds everything one adapter pass yields
type ProduceResult struct {
	Transactions []*models.CanonicalTransaction `json:"transactions"`
	Rejected     []models.RejectedRow           `json:"rejected,omitempty"`
	Excluded     []ExcludedRow                  `json:"excluded,omitempty"`
	Stats        ProduceStats                   `json:"stats"`
}

// rejectionFor converts a normalization failure into a rejected-row record,
// pulling field and value context out of the structured error when present
func rejectionFor(sourceID string, line int, err error) models.RejectedRow {
	rej := models.RejectedRow{
		SourceID: sourceID,
		Line:     line,
		Reason:   err.Error(),
	}
	if engineErr, ok := errors.AsEngineError(err); ok {
		rej.Reason = engineErr.Message
		if field, ok := engineErr.Context["field"].(string); ok {
			rej.Field = field
		}
		if value, ok := engineErr.Context["value"].(string); ok {
			rej.Value = value
		}
	}
	return rej
}

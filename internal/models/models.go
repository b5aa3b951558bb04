// Package models defines the canonical transaction shape that every source
// adapter produces, the persisted raw and truth record types with their
// provenance fields, and the match result emitted by a reconciliation run.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the canonical date representation used in reports and keys
const DateLayout = "2006-01-02"

// SourceKind identifies which adapter family produced a record
type SourceKind string

const (
	// KindBankStatement covers rows extracted from bank mortgage statements
	KindBankStatement SourceKind = "bank-statement"
	// KindPropertyManager covers the property manager's transaction export
	KindPropertyManager SourceKind = "property-manager"
	// KindTruthPlatform covers the authoritative platform-of-record ledger
	KindTruthPlatform SourceKind = "truth-platform"
)

// String returns the string representation of SourceKind
func (k SourceKind) String() string {
	return string(k)
}

// IsValid checks if the source kind is one of the known adapter families
func (k SourceKind) IsValid() bool {
	return k == KindBankStatement || k == KindPropertyManager || k == KindTruthPlatform
}

// ParseSourceKind parses and validates a source kind from string
func ParseSourceKind(s string) (SourceKind, error) {
	kind := SourceKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown source kind '%s': must be %s, %s or %s",
			s, KindBankStatement, KindPropertyManager, KindTruthPlatform)
	}
	return kind, nil
}

// Classification labels the outcome of pairing a raw record with truth
type Classification string

const (
	// ClassificationMatched means paired with amount equal within tolerance
	ClassificationMatched Classification = "matched"
	// ClassificationAmountMismatch means paired on date/payee but the amount
	// differs beyond tolerance; always reported, never auto-corrected
	ClassificationAmountMismatch Classification = "amount-mismatch"
	// ClassificationMissingFromTruth means a raw record has no truth
	// counterpart; the platform of record needs a manual entry
	ClassificationMissingFromTruth Classification = "missing-from-truth"
	// ClassificationExtraInTruth means a truth record has no supporting
	// source document
	ClassificationExtraInTruth Classification = "extra-in-truth"
)

// String returns the string representation of Classification
func (c Classification) String() string {
	return string(c)
}

// CanonicalTransaction is the unit of work throughout the engine. Every
// source row is normalized into this shape before anything downstream sees it.
type CanonicalTransaction struct {
	SourceID    string    `json:"source_id"`
	ExternalRef string    `json:"external_ref"`
	Date        time.Time `json:"-"`
	AmountCents int64     `json:"amount_cents"` // minor units, avoids float drift
	Payee       string    `json:"payee"`        // trimmed, original casing preserved
	Category    string    `json:"category,omitempty"`
	Memo        string    `json:"memo,omitempty"`
}

// Validate performs structural validation only. Business rules such as sign
// conventions or amount ranges are deliberately not checked here.
func (c *CanonicalTransaction) Validate() error {
	if c.SourceID == "" {
		return fmt.Errorf("source ID cannot be empty")
	}
	if c.ExternalRef == "" {
		return fmt.Errorf("external reference cannot be empty")
	}
	if c.Date.IsZero() {
		return fmt.Errorf("date cannot be zero")
	}
	return nil
}

// String returns a string representation of the CanonicalTransaction
func (c *CanonicalTransaction) String() string {
	return fmt.Sprintf("Transaction{Source: %s, Ref: %s, Date: %s, Amount: %s, Payee: %s}",
		c.SourceID, c.ExternalRef, c.Date.Format(DateLayout), FormatCents(c.AmountCents), c.Payee)
}

// ContentEquals compares the business content of two transactions. Identity
// fields are ignored; this is the equality used for duplicate detection on
// re-ingestion.
func (c *CanonicalTransaction) ContentEquals(other *CanonicalTransaction) bool {
	if other == nil {
		return false
	}
	return c.Date.Equal(other.Date) &&
		c.AmountCents == other.AmountCents &&
		c.Payee == other.Payee &&
		c.Category == other.Category &&
		c.Memo == other.Memo
}

// MarshalJSON implements custom JSON marshaling for CanonicalTransaction
func (c *CanonicalTransaction) MarshalJSON() ([]byte, error) {
	type Alias CanonicalTransaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   c.Date.Format(DateLayout),
		Amount: FormatCents(c.AmountCents),
		Alias:  (*Alias)(c),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for CanonicalTransaction
func (c *CanonicalTransaction) UnmarshalJSON(data []byte) error {
	type Alias CanonicalTransaction
	aux := &struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Date != "" {
		date, err := time.Parse(DateLayout, aux.Date)
		if err != nil {
			return fmt.Errorf("invalid date format: %w", err)
		}
		c.Date = date.UTC()
	}

	return nil
}

// RawRecord is a persisted CanonicalTransaction from a non-authoritative
// source, tagged with ingestion provenance. Raw records are never deleted;
// re-ingestion with changed content creates a new version instead of
// overwriting, so any past batch remains reproducible.
type RawRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SourceID    string    `gorm:"size:64;not null;index:idx_raw_identity" json:"source_id"`
	ExternalRef string    `gorm:"size:128;not null;index:idx_raw_identity" json:"external_ref"`
	Version     int       `gorm:"not null;default:1" json:"version"`
	Date        time.Time `gorm:"index;not null" json:"date"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	Payee       string    `gorm:"size:256" json:"payee"`
	Category    string    `gorm:"size:128" json:"category,omitempty"`
	Memo        string    `gorm:"size:1024" json:"memo,omitempty"`
	BatchID     string    `gorm:"size:36;not null;index" json:"batch_id"`
	IngestedAt  time.Time `gorm:"not null" json:"ingested_at"`
}

// NewRawRecord wraps a canonical transaction with ingestion provenance
func NewRawRecord(tx *CanonicalTransaction, batchID string, ingestedAt time.Time) *RawRecord {
	return &RawRecord{
		SourceID:    tx.SourceID,
		ExternalRef: tx.ExternalRef,
		Version:     1,
		Date:        tx.Date,
		AmountCents: tx.AmountCents,
		Payee:       tx.Payee,
		Category:    tx.Category,
		Memo:        tx.Memo,
		BatchID:     batchID,
		IngestedAt:  ingestedAt,
	}
}

// Canonical converts the stored record back to its canonical form
func (r *RawRecord) Canonical() *CanonicalTransaction {
	return &CanonicalTransaction{
		SourceID:    r.SourceID,
		ExternalRef: r.ExternalRef,
		Date:        r.Date,
		AmountCents: r.AmountCents,
		Payee:       r.Payee,
		Category:    r.Category,
		Memo:        r.Memo,
	}
}

// String returns a string representation of the RawRecord
func (r *RawRecord) String() string {
	return fmt.Sprintf("RawRecord{ID: %d, Source: %s, Ref: %s, v%d, Date: %s, Amount: %s}",
		r.ID, r.SourceID, r.ExternalRef, r.Version, r.Date.Format(DateLayout), FormatCents(r.AmountCents))
}

// TruthRecord is a persisted CanonicalTransaction from the platform of
// record. Truth is loaded as a complete snapshot per load; records from
// superseded snapshots are retained for point-in-time audit.
type TruthRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SnapshotID    string    `gorm:"size:36;not null;index" json:"snapshot_id"`
	Position      int       `gorm:"not null" json:"position"` // stored order within the snapshot
	SourceID      string    `gorm:"size:64;not null" json:"source_id"`
	ExternalRef   string    `gorm:"size:128;not null" json:"external_ref"`
	Date          time.Time `gorm:"index;not null" json:"date"`
	AmountCents   int64     `gorm:"not null" json:"amount_cents"`
	Payee         string    `gorm:"size:256" json:"payee"`
	Category      string    `gorm:"size:128" json:"category,omitempty"`
	Memo          string    `gorm:"size:1024" json:"memo,omitempty"`
	Excluded      bool      `gorm:"not null;default:false" json:"excluded"`
	ExcludeReason string    `gorm:"size:256" json:"exclude_reason,omitempty"`
}

// NewTruthRecord wraps a canonical transaction with snapshot provenance
func NewTruthRecord(tx *CanonicalTransaction, snapshotID string, position int) *TruthRecord {
	return &TruthRecord{
		SnapshotID:  snapshotID,
		Position:    position,
		SourceID:    tx.SourceID,
		ExternalRef: tx.ExternalRef,
		Date:        tx.Date,
		AmountCents: tx.AmountCents,
		Payee:       tx.Payee,
		Category:    tx.Category,
		Memo:        tx.Memo,
	}
}

// Canonical converts the stored record back to its canonical form
func (t *TruthRecord) Canonical() *CanonicalTransaction {
	return &CanonicalTransaction{
		SourceID:    t.SourceID,
		ExternalRef: t.ExternalRef,
		Date:        t.Date,
		AmountCents: t.AmountCents,
		Payee:       t.Payee,
		Category:    t.Category,
		Memo:        t.Memo,
	}
}

// String returns a string representation of the TruthRecord
func (t *TruthRecord) String() string {
	return fmt.Sprintf("TruthRecord{ID: %d, Ref: %s, Date: %s, Amount: %s, Payee: %s}",
		t.ID, t.ExternalRef, t.Date.Format(DateLayout), FormatCents(t.AmountCents), t.Payee)
}

// IngestBatch records one ingestion pass over a source file
type IngestBatch struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	BatchID         string    `gorm:"size:36;not null;uniqueIndex" json:"batch_id"`
	SourceID        string    `gorm:"size:64;not null;index" json:"source_id"`
	FileName        string    `gorm:"size:256" json:"file_name,omitempty"`
	IngestedAt      time.Time `gorm:"not null" json:"ingested_at"`
	RecordCount     int       `gorm:"not null" json:"record_count"`
	DuplicateCount  int       `gorm:"not null" json:"duplicate_count"`
	SupersededCount int       `gorm:"not null" json:"superseded_count"`
	RejectedCount   int       `gorm:"not null" json:"rejected_count"`
}

// TruthSnapshot records one full load of the platform-of-record ledger.
// Exactly one snapshot is current at a time; earlier snapshots are retained.
type TruthSnapshot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SnapshotID  string    `gorm:"size:36;not null;uniqueIndex" json:"snapshot_id"`
	SourceID    string    `gorm:"size:64;not null" json:"source_id"`
	FileName    string    `gorm:"size:256" json:"file_name,omitempty"`
	LoadedAt    time.Time `gorm:"not null" json:"loaded_at"`
	RecordCount int       `gorm:"not null" json:"record_count"`
	Current     bool      `gorm:"not null;default:false;index" json:"current"`
}

// RejectedRow records a source row that could not be normalized. Rejected
// rows are stored per batch so every report can surface what was skipped.
type RejectedRow struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	BatchID  string `gorm:"size:36;not null;index" json:"batch_id"`
	SourceID string `gorm:"size:64;not null" json:"source_id"`
	Line     int    `gorm:"not null" json:"line"`
	Field    string `gorm:"size:64" json:"field,omitempty"`
	Value    string `gorm:"size:256" json:"value,omitempty"`
	Reason   string `gorm:"size:512;not null" json:"reason"`
}

// ReconcileRun records one complete reconciliation pass for audit. The
// matcher configuration is serialized alongside so any past run can be
// reproduced from its inputs.
type ReconcileRun struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RunID         string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	WindowStart   time.Time `gorm:"not null" json:"window_start"`
	WindowEnd     time.Time `gorm:"not null" json:"window_end"`
	SnapshotID    string    `gorm:"size:36" json:"snapshot_id,omitempty"`
	ConfigJSON    string    `gorm:"size:2048" json:"config_json,omitempty"`
	StartedAt     time.Time `gorm:"not null" json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	MatchedCount  int       `gorm:"not null" json:"matched_count"`
	MismatchCount int       `gorm:"not null" json:"mismatch_count"`
	MissingCount  int       `gorm:"not null" json:"missing_count"`
	ExtraCount    int       `gorm:"not null" json:"extra_count"`
	RejectedCount int       `gorm:"not null" json:"rejected_count"`
}

// MatchRecord is the persisted form of a MatchResult, appended per run.
// Match annotations never mutate the raw or truth records they reference.
type MatchRecord struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	RunID          string  `gorm:"size:36;not null;index" json:"run_id"`
	RawRecordID    *uint   `json:"raw_record_id,omitempty"`
	TruthRecordID  *uint   `json:"truth_record_id,omitempty"`
	Confidence     float64 `gorm:"not null" json:"confidence"`
	Classification string  `gorm:"size:32;not null" json:"classification"`
	Note           string  `gorm:"size:256" json:"note,omitempty"`
}

// MatchResult links zero-or-one raw record to zero-or-one truth record with
// a confidence score and classification. A record participates in at most
// one accepted result per run; unmatched records get a nil partner.
type MatchResult struct {
	Raw            *RawRecord     `json:"raw,omitempty"`
	Truth          *TruthRecord   `json:"truth,omitempty"`
	Confidence     float64        `json:"confidence"`
	Classification Classification `json:"classification"`
	Note           string         `json:"note,omitempty"`
	Reasons        []string       `json:"reasons,omitempty"`
}

// ResultDate returns the date used for chronological ordering. Paired
// results order by the raw side; truth-only results by the truth side.
func (m *MatchResult) ResultDate() time.Time {
	if m.Raw != nil {
		return m.Raw.Date
	}
	if m.Truth != nil {
		return m.Truth.Date
	}
	return time.Time{}
}

// String returns a string representation of the MatchResult
func (m *MatchResult) String() string {
	rawRef, truthRef := "-", "-"
	if m.Raw != nil {
		rawRef = m.Raw.ExternalRef
	}
	if m.Truth != nil {
		truthRef = m.Truth.ExternalRef
	}
	return fmt.Sprintf("MatchResult{Raw: %s, Truth: %s, Confidence: %.2f, Classification: %s}",
		rawRef, truthRef, m.Confidence, m.Classification)
}

// Record converts the result to its persisted form for the given run
func (m *MatchResult) Record(runID string) *MatchRecord {
	rec := &MatchRecord{
		RunID:          runID,
		Confidence:     m.Confidence,
		Classification: string(m.Classification),
		Note:           m.Note,
	}
	if m.Raw != nil {
		id := m.Raw.ID
		rec.RawRecordID = &id
	}
	if m.Truth != nil {
		id := m.Truth.ID
		rec.TruthRecordID = &id
	}
	return rec
}

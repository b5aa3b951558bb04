package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// IngestInput carries one batch of canonical transactions into the raw ledger
type IngestInput struct {
	// BatchID identifies the batch. Empty generates a new id.
	BatchID string
	// SourceID is the source the batch came from
	SourceID string
	// FileName is the ingested file, recorded for provenance
	FileName string
	// Transactions are the normalized records, in file order
	Transactions []*models.CanonicalTransaction
	// Rejected are the rows that failed normalization, persisted alongside
	// the batch so reports can surface them
	Rejected []models.RejectedRow
}

// AppendResult summarizes what one ingestion batch did to the ledger
type AppendResult struct {
	BatchID    string
	Inserted   int
	Duplicates int
	Superseded int
	Rejected   int
	// Warnings collects the per-record duplicate notices
	Warnings *errors.ErrorSummary
}

// AppendRaw writes a batch of canonical transactions to the raw ledger.
// The operation is idempotent on (source_id, external_ref): a record whose
// content matches the stored version is skipped with a duplicate warning,
// and a record whose content changed is appended as a new version. Existing
// rows are never updated or deleted. The whole batch commits atomically.
func (s *Store) AppendRaw(ctx context.Context, input IngestInput) (*AppendResult, error) {
	batchID := input.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	now := time.Now().UTC()

	result := &AppendResult{BatchID: batchID}
	var warnings []*errors.EngineError
	tracker := logger.NewProgressTracker(s.logger, "append raw batch", int64(len(input.Transactions)))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range input.Transactions {
			var existing models.RawRecord
			lookErr := tx.
				Where("source_id = ? AND external_ref = ?", record.SourceID, record.ExternalRef).
				Order("version DESC").
				First(&existing).Error

			switch {
			case stderrors.Is(lookErr, gorm.ErrRecordNotFound):
				fresh := models.NewRawRecord(record, batchID, now)
				if err := tx.Create(fresh).Error; err != nil {
					return err
				}
				result.Inserted++

			case lookErr != nil:
				return lookErr

			case existing.Canonical().ContentEquals(record):
				result.Duplicates++
				warnings = append(warnings, errors.DuplicateIngestionWarning(record.SourceID, record.ExternalRef))
				s.logger.WithFields(logger.Fields{
					"source_id":    record.SourceID,
					"external_ref": record.ExternalRef,
				}).Debug("Skipping duplicate record")

			default:
				// content changed since the last ingestion, append a new
				// version and leave the old one in place
				fresh := models.NewRawRecord(record, batchID, now)
				fresh.Version = existing.Version + 1
				if err := tx.Create(fresh).Error; err != nil {
					return err
				}
				result.Superseded++
				s.logger.WithFields(logger.Fields{
					"source_id":    record.SourceID,
					"external_ref": record.ExternalRef,
					"version":      fresh.Version,
				}).Debug("Superseding changed record")
			}
			tracker.Increment()
		}

		for i := range input.Rejected {
			input.Rejected[i].BatchID = batchID
			if err := tx.Create(&input.Rejected[i]).Error; err != nil {
				return err
			}
			result.Rejected++
		}

		batch := &models.IngestBatch{
			BatchID:         batchID,
			SourceID:        input.SourceID,
			FileName:        input.FileName,
			IngestedAt:      now,
			RecordCount:     result.Inserted,
			DuplicateCount:  result.Duplicates,
			SupersededCount: result.Superseded,
			RejectedCount:   result.Rejected,
		}
		return tx.Create(batch).Error
	})
	if err != nil {
		tracker.CompleteWithError(err)
		return nil, errors.StorageError("append raw batch", err)
	}
	result.Warnings = errors.NewErrorSummary(warnings)

	s.logger.WithFields(logger.Fields{
		"batch_id":   batchID,
		"source_id":  input.SourceID,
		"inserted":   result.Inserted,
		"duplicates": result.Duplicates,
		"superseded": result.Superseded,
		"rejected":   result.Rejected,
	}).Info("Raw batch appended")
	return result, nil
}

// ListRaw returns the latest version of every raw record in the date range,
// ordered by date and then by insertion order. An empty sourceID spans all
// sources; a zero from or to leaves that end of the range open.
func (s *Store) ListRaw(ctx context.Context, sourceID string, from, to time.Time) ([]*models.RawRecord, error) {
	query := s.db.WithContext(ctx).
		Where("version = (SELECT MAX(v.version) FROM raw_records v WHERE v.source_id = raw_records.source_id AND v.external_ref = raw_records.external_ref)")
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	if !from.IsZero() {
		query = query.Where("date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("date <= ?", to)
	}

	var records []*models.RawRecord
	if err := query.Order("date ASC, id ASC").Find(&records).Error; err != nil {
		return nil, errors.StorageError("list raw records", err)
	}
	return records, nil
}

// ListBatches returns the ingestion history, newest first. An empty
// sourceID spans all sources.
func (s *Store) ListBatches(ctx context.Context, sourceID string) ([]*models.IngestBatch, error) {
	query := s.db.WithContext(ctx)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}

	var batches []*models.IngestBatch
	if err := query.Order("ingested_at DESC, id DESC").Find(&batches).Error; err != nil {
		return nil, errors.StorageError("list ingest batches", err)
	}
	return batches, nil
}

// ListRejected returns the rejected rows recorded for a source across all
// of its batches, oldest batch first. Rejected rows carry no transaction
// date, so they cannot be narrowed to a reporting window.
func (s *Store) ListRejected(ctx context.Context, sourceID string) ([]models.RejectedRow, error) {
	query := s.db.WithContext(ctx)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}

	var rows []models.RejectedRow
	if err := query.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, errors.StorageError("list rejected rows", err)
	}
	return rows, nil
}

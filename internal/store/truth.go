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

// ReplaceInput carries one full truth export into the store
type ReplaceInput struct {
	// SnapshotID identifies the snapshot. Empty generates a new id.
	SnapshotID string
	// SourceID is the truth platform the export came from
	SourceID string
	// FileName is the loaded file, recorded for provenance
	FileName string
	// Transactions are the normalized records in export order
	Transactions []*models.CanonicalTransaction
	// Exclusions maps external refs to the reason they are kept out of
	// matching. Excluded records stay in the snapshot.
	Exclusions map[string]string
}

// ReplaceResult summarizes a truth snapshot swap
type ReplaceResult struct {
	SnapshotID string
	Records    int
	Excluded   int
	// PreviousSnapshotID is the snapshot that was current before the
	// swap, empty on first load
	PreviousSnapshotID string
}

// ReplaceTruth installs a new truth snapshot and makes it current in a
// single transaction. Earlier snapshots and their records are kept for
// history. If any step fails the transaction rolls back and the previous
// snapshot remains current.
func (s *Store) ReplaceTruth(ctx context.Context, input ReplaceInput) (*ReplaceResult, error) {
	snapshotID := input.SnapshotID
	if snapshotID == "" {
		snapshotID = uuid.NewString()
	}
	now := time.Now().UTC()

	result := &ReplaceResult{SnapshotID: snapshotID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.TruthSnapshot
		err := tx.Where("current = ?", true).First(&current).Error
		switch {
		case err == nil:
			result.PreviousSnapshotID = current.SnapshotID
		case stderrors.Is(err, gorm.ErrRecordNotFound):
			// first load
		default:
			return err
		}

		records := make([]*models.TruthRecord, 0, len(input.Transactions))
		for position, transaction := range input.Transactions {
			record := models.NewTruthRecord(transaction, snapshotID, position)
			if reason, excluded := input.Exclusions[transaction.ExternalRef]; excluded {
				record.Excluded = true
				record.ExcludeReason = reason
				result.Excluded++
			}
			records = append(records, record)
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 100).Error; err != nil {
				return err
			}
		}
		result.Records = len(records)

		if err := tx.Model(&models.TruthSnapshot{}).
			Where("current = ?", true).
			Update("current", false).Error; err != nil {
			return err
		}
		return tx.Create(&models.TruthSnapshot{
			SnapshotID:  snapshotID,
			SourceID:    input.SourceID,
			FileName:    input.FileName,
			LoadedAt:    now,
			RecordCount: len(records),
			Current:     true,
		}).Error
	})
	if err != nil {
		return nil, errors.TruthReplaceError(snapshotID, err)
	}

	s.logger.WithFields(logger.Fields{
		"snapshot_id": snapshotID,
		"source_id":   input.SourceID,
		"records":     result.Records,
		"excluded":    result.Excluded,
		"previous":    result.PreviousSnapshotID,
	}).Info("Truth snapshot installed")
	return result, nil
}

// CurrentSnapshot returns the snapshot that matching runs against, or nil
// when no truth export has been loaded yet
func (s *Store) CurrentSnapshot(ctx context.Context) (*models.TruthSnapshot, error) {
	var snapshot models.TruthSnapshot
	err := s.db.WithContext(ctx).Where("current = ?", true).First(&snapshot).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("load current snapshot", err)
	}
	return &snapshot, nil
}

// ListTruth returns the current snapshot's records in the date range,
// ordered by their position in the export. Excluded records are omitted
// unless includeExcluded is set. An empty sourceID spans all sources; a
// zero from or to leaves that end of the range open.
func (s *Store) ListTruth(ctx context.Context, sourceID string, from, to time.Time, includeExcluded bool) ([]*models.TruthRecord, error) {
	snapshot, err := s.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("snapshot_id = ?", snapshot.SnapshotID)
	if sourceID != "" {
		query = query.Where("source_id = ?", sourceID)
	}
	if !from.IsZero() {
		query = query.Where("date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("date <= ?", to)
	}
	if !includeExcluded {
		query = query.Where("excluded = ?", false)
	}

	var records []*models.TruthRecord
	if err := query.Order("position ASC").Find(&records).Error; err != nil {
		return nil, errors.StorageError("list truth records", err)
	}
	return records, nil
}

// ListSnapshots returns the snapshot history, newest first
func (s *Store) ListSnapshots(ctx context.Context) ([]*models.TruthSnapshot, error) {
	var snapshots []*models.TruthSnapshot
	if err := s.db.WithContext(ctx).Order("loaded_at DESC, id DESC").Find(&snapshots).Error; err != nil {
		return nil, errors.StorageError("list truth snapshots", err)
	}
	return snapshots, nil
}

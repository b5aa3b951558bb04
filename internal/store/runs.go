package store

import (
	"context"

	"gorm.io/gorm"

	"property-reconciliation-engine/internal/models"
	"property-reconciliation-engine/pkg/errors"
	"property-reconciliation-engine/pkg/logger"
)

// SaveRun records a completed reconciliation run together with its match
// outcomes in one transaction
func (s *Store) SaveRun(ctx context.Context, run *models.ReconcileRun, matches []*models.MatchRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for i := range matches {
			matches[i].RunID = run.RunID
		}
		if len(matches) > 0 {
			if err := tx.CreateInBatches(matches, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.StorageError("save reconciliation run", err)
	}

	s.logger.WithFields(logger.Fields{
		"run_id":  run.RunID,
		"matches": len(matches),
	}).Info("Reconciliation run saved")
	return nil
}

// ListRuns returns the run history, newest first. A limit of zero returns
// everything.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*models.ReconcileRun, error) {
	query := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []*models.ReconcileRun
	if err := query.Find(&runs).Error; err != nil {
		return nil, errors.StorageError("list reconciliation runs", err)
	}
	return runs, nil
}

// MatchesForRun returns the stored match outcomes for one run in insertion
// order
func (s *Store) MatchesForRun(ctx context.Context, runID string) ([]*models.MatchRecord, error) {
	var matches []*models.MatchRecord
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&matches).Error; err != nil {
		return nil, errors.StorageError("list run matches", err)
	}
	return matches, nil
}

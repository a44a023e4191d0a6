package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/mediafetch/internal/storage"
	"github.com/italolelis/mediafetch/internal/telemetry"
)

// InstrumentedHistoryRepository wraps HistoryRepository with telemetry.
type InstrumentedHistoryRepository struct {
	repo      *HistoryRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedHistoryRepository creates a new instrumented history repository.
func NewInstrumentedHistoryRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedHistoryRepository {
	return &InstrumentedHistoryRepository{
		repo:      NewHistoryRepository(dbConn),
		telemetry: tel,
	}
}

// Insert records a prepared download with telemetry.
func (r *InstrumentedHistoryRepository) Insert(ctx context.Context, rec storage.HistoryRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "insert_history", func(ctx context.Context) error {
		return r.repo.Insert(ctx, rec)
	})
}

// UpdateStatus updates a history record with telemetry.
func (r *InstrumentedHistoryRepository) UpdateStatus(ctx context.Context, downloadID, status string, totalBytes int64) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_history_status", func(ctx context.Context) error {
		return r.repo.UpdateStatus(ctx, downloadID, status, totalBytes)
	})
}

// List lists history records with telemetry.
func (r *InstrumentedHistoryRepository) List(ctx context.Context, limit int) ([]storage.HistoryRecord, error) {
	var result []storage.HistoryRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_history", func(ctx context.Context) error {
		var listErr error
		result, listErr = r.repo.List(ctx, limit)

		return listErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// PurgeOlderThan purges expired history records with telemetry.
func (r *InstrumentedHistoryRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var result int64

	err := r.telemetry.InstrumentDBOperation(ctx, "purge_history", func(ctx context.Context) error {
		var purgeErr error
		result, purgeErr = r.repo.PurgeOlderThan(ctx, cutoff)

		return purgeErr
	})
	if err != nil {
		return 0, err
	}

	return result, nil
}

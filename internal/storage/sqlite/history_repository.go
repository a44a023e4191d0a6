package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/mediafetch/internal/storage"
)

// HistoryRepository is the SQLite implementation of storage.HistoryRepository.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a repository backed by the given connection.
func NewHistoryRepository(dbConn *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: dbConn}
}

// Insert records a freshly prepared download.
func (r *HistoryRepository) Insert(ctx context.Context, rec storage.HistoryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO download_history
			(download_id, url, title, filename, format, platform, status, total_bytes, prepared_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DownloadID, rec.URL, rec.Title, rec.Filename, rec.Format, rec.Platform,
		rec.Status, rec.TotalBytes,
		rec.PreparedAt.Format(time.RFC3339), rec.PreparedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	return nil
}

// UpdateStatus moves a history record to a new status, recording the total
// bytes transferred when known.
func (r *HistoryRepository) UpdateStatus(ctx context.Context, downloadID, status string, totalBytes int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE download_history
		SET status = ?, total_bytes = ?, updated_at = ?
		WHERE download_id = ?`,
		status, totalBytes, time.Now().Format(time.RFC3339), downloadID,
	)
	if err != nil {
		return fmt.Errorf("failed to update history status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// List returns the most recent history records, newest first.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]storage.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT download_id, url, title, filename, format, platform, status, total_bytes, prepared_at, updated_at
		FROM download_history
		ORDER BY prepared_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}
	defer rows.Close()

	var records []storage.HistoryRecord

	for rows.Next() {
		var rec storage.HistoryRecord

		var preparedAt, updatedAt string

		if err := rows.Scan(
			&rec.DownloadID, &rec.URL, &rec.Title, &rec.Filename, &rec.Format,
			&rec.Platform, &rec.Status, &rec.TotalBytes, &preparedAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		rec.PreparedAt, _ = time.Parse(time.RFC3339, preparedAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// PurgeOlderThan deletes history records last updated before the cutoff.
func (r *HistoryRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE updated_at < ?`,
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history records: %w", err)
	}

	return res.RowsAffected()
}

// Package storage defines the durable download-history contract. The live
// serving path runs entirely off the in-memory registries; history exists
// for the listing API and post-hoc inspection.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a history record does not exist.
var ErrNotFound = errors.New("history record not found")

// HistoryRecord is the durable trace of one prepared download.
type HistoryRecord struct {
	DownloadID string    `json:"downloadId"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Filename   string    `json:"filename"`
	Format     string    `json:"format"`
	Platform   string    `json:"platform"`
	Status     string    `json:"status"`
	TotalBytes int64     `json:"totalBytes"`
	PreparedAt time.Time `json:"preparedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// HistoryRepository persists download history.
type HistoryRepository interface {
	Insert(ctx context.Context, rec HistoryRecord) error
	UpdateStatus(ctx context.Context, downloadID, status string, totalBytes int64) error
	List(ctx context.Context, limit int) ([]HistoryRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

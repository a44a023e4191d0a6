package registry

import (
	"context"
	"sync"
	"time"

	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
)

// DownloadRegistry maps download identifiers to their prepared records.
// Records are evicted a fixed retention after reaching a terminal status,
// whether or not a client ever fetched them. Records stuck in `prepared`
// are never reaped; abandonment is an accepted leak in this design.
type DownloadRegistry struct {
	mu        sync.RWMutex
	records   map[string]*media.DownloadRecord
	retention time.Duration
}

// NewDownloadRegistry creates a registry that retains terminal records for
// the given duration.
func NewDownloadRegistry(retention time.Duration) *DownloadRegistry {
	return &DownloadRegistry{
		records:   make(map[string]*media.DownloadRecord),
		retention: retention,
	}
}

// Put inserts a record. The identifier must not be live already.
func (r *DownloadRegistry) Put(rec media.DownloadRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ID] = &rec
}

// Get returns a copy of the record for the identifier, or NotFoundError.
func (r *DownloadRegistry) Get(id string) (media.DownloadRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return media.DownloadRecord{}, &media.NotFoundError{ID: id}
	}

	return *rec, nil
}

// SetStatus moves a record forward through its lifecycle. Backwards or
// out-of-terminal transitions return InvalidTransitionError.
func (r *DownloadRegistry) SetStatus(id string, next media.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return &media.NotFoundError{ID: id}
	}

	if !rec.Status.CanTransition(next) {
		return &media.InvalidTransitionError{ID: id, From: rec.Status, To: next}
	}

	rec.Status = next
	if next.Terminal() {
		rec.FinishedAt = time.Now()
	}

	return nil
}

// List returns a copy of every live record.
func (r *DownloadRegistry) List() []media.DownloadRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]media.DownloadRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}

	return out
}

// Len returns the number of live records.
func (r *DownloadRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}

// Reap removes records whose terminal status is older than the retention
// window, returning how many were evicted.
func (r *DownloadRegistry) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted int

	for id, rec := range r.records {
		if rec.Status.Terminal() && now.Sub(rec.FinishedAt) > r.retention {
			delete(r.records, id)
			evicted++
		}
	}

	return evicted
}

// StartReaper runs the eviction loop until the context is cancelled.
func (r *DownloadRegistry) StartReaper(ctx context.Context, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("download registry reaper shutting down")

				return
			case <-ticker.C:
				if evicted := r.Reap(time.Now()); evicted > 0 {
					logger.Debug("evicted expired download records", "count", evicted)
				}
			}
		}
	}()
}

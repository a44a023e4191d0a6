// Package orchestrator sequences batches of video requests through the
// preparation pipeline and owns the global cancellation flag.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/platform"
	"github.com/italolelis/mediafetch/internal/prepare"
	"github.com/italolelis/mediafetch/internal/registry"
)

// Orchestrator runs batch preparation sequentially. Batches and videos are
// intentionally not parallelized within a run: preparation is subprocess
// bound, and sequential processing keeps event ordering deterministic and
// bounds load on the external tool.
type Orchestrator struct {
	pipeline  *prepare.Pipeline
	procs     *registry.ProcessRegistry
	notifier  event.Notifier
	cancelled atomic.Bool
	running   atomic.Bool
}

// New creates an orchestrator.
func New(pipeline *prepare.Pipeline, procs *registry.ProcessRegistry, notifier event.Notifier) *Orchestrator {
	return &Orchestrator{
		pipeline: pipeline,
		procs:    procs,
		notifier: notifier,
	}
}

// Cancel sets the global cancellation flag and force-terminates every live
// streaming process. The flag is observed between units of work; an
// in-progress metadata fetch is not interrupted.
func (o *Orchestrator) Cancel(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	o.cancelled.Store(true)

	killed := o.procs.KillAll()
	logger.Info("cancellation requested", "processes_killed", killed)
}

// Cancelled reports the global cancellation flag.
func (o *Orchestrator) Cancelled() bool {
	return o.cancelled.Load()
}

// Running reports whether an orchestration run is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run processes the submitted batches in order and returns every produced
// download identifier. Videos already prepared before a cancellation remain
// valid and are included in the returned list.
func (o *Orchestrator) Run(ctx context.Context, batches []media.BatchRequest) []string {
	logger := logctx.LoggerFromContext(ctx)

	// A new submission clears any previous run's cancellation.
	o.cancelled.Store(false)
	o.running.Store(true)
	defer o.running.Store(false)

	sessionID := uuid.NewString()

	var allIDs []string

	for batchIndex, batch := range batches {
		if o.cancelled.Load() {
			o.notifier.Notify(ctx, event.Log{Type: "error", Message: "Skipping remaining batches due to cancellation."})

			break
		}

		o.notifier.Notify(ctx, event.Log{
			Type: "info",
			Message: fmt.Sprintf("--- Starting Batch %d / %d (Prefix: %s.x, Format: %s) ---",
				batchIndex+1, len(batches), batch.PrefixMajor, batch.Format),
		})
		o.notifier.Notify(ctx, event.NewBatchStarting{
			BatchIndex:  batchIndex,
			TotalVideos: len(batch.Videos),
		})

		allIDs = append(allIDs, o.prepareBatch(ctx, batch, batchIndex)...)
	}

	if !o.cancelled.Load() && len(allIDs) > 0 {
		o.notifier.Notify(ctx, event.AutoDownloadStart{
			DownloadIDs: allIDs,
			SessionID:   sessionID,
		})
	}

	if o.cancelled.Load() {
		o.notifier.Notify(ctx, event.Log{Type: "error", Message: "Download process cancelled."})
	} else {
		o.notifier.Notify(ctx, event.Log{Type: "success", Message: "All downloads prepared and started."})
	}

	o.notifier.Notify(ctx, event.AllBatchesComplete{Cancelled: o.cancelled.Load()})

	logger.Info("orchestration run finished",
		"batches", len(batches),
		"prepared", len(allIDs),
		"cancelled", o.cancelled.Load(),
	)

	return allIDs
}

// prepareBatch processes one batch's videos in submitted order. The minor
// prefix counter increments per submission slot, not per success, so the
// numbering always reflects the slot the user filled in.
func (o *Orchestrator) prepareBatch(ctx context.Context, batch media.BatchRequest, batchIndex int) []string {
	logger := logctx.LoggerFromContext(ctx)

	o.notifier.Notify(ctx, event.Log{
		Type:    "info",
		Message: fmt.Sprintf("Preparing %d videos for download...", len(batch.Videos)),
	})

	minorCounter, err := strconv.Atoi(batch.PrefixMinorStart)
	if err != nil {
		minorCounter = 1
	}

	format := media.ParseFormat(batch.Format)

	var ids []string

	for i, video := range batch.Videos {
		if o.cancelled.Load() {
			o.notifier.Notify(ctx, event.Log{Type: "error", Message: "Skipping remaining videos due to cancellation."})

			break
		}

		prefix := fmt.Sprintf("%s.%d_", batch.PrefixMajor, minorCounter)
		plat := platform.Detect(video.URL)

		o.notifier.Notify(ctx, event.Log{
			Type:    "info",
			Message: fmt.Sprintf("[%d/%d] Detected platform: %s", i+1, len(batch.Videos), plat),
		})

		if canonical := platform.CanonicalURL(video.URL); canonical != video.URL {
			o.notifier.Notify(ctx, event.Log{
				Type:    "info",
				Message: fmt.Sprintf("  Converted: %s -> %s", video.URL, canonical),
			})
			video.URL = canonical
		}

		rec, err := o.pipeline.Prepare(ctx, video, i, len(batch.Videos), prefix, format, plat, batchIndex)
		if err != nil {
			// Per-video failures never abort the batch; the slot's error
			// status has already been pushed by the pipeline.
			logger.Error("failed to prepare video", "url", video.URL, "err", err)
		} else {
			ids = append(ids, rec.ID)
		}

		minorCounter++
	}

	return ids
}

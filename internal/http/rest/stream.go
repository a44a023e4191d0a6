package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/ytdlp"
)

// StreamProcess is one live streaming invocation of the external tool.
type StreamProcess interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
}

// Streamer spawns the external tool for a prepared download.
type Streamer interface {
	StartStream(ctx context.Context, rec media.DownloadRecord) (StreamProcess, error)
}

// StreamerFunc adapts a function to the Streamer interface.
type StreamerFunc func(ctx context.Context, rec media.DownloadRecord) (StreamProcess, error)

func (f StreamerFunc) StartStream(ctx context.Context, rec media.DownloadRecord) (StreamProcess, error) {
	return f(ctx, rec)
}

// HandleDownload streams a prepared download. The tool's stdout is piped
// directly into the response body; nothing is buffered in full. If the
// client drops the connection before the process exits, the process is
// killed and the record ends cancelled.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	id := chi.URLParam(r, "downloadID")

	rec, err := h.downloads.Get(id)
	if err != nil {
		http.Error(w, "Download not found", http.StatusNotFound)

		return
	}

	if err := h.downloads.SetStatus(id, media.StatusDownloading); err != nil {
		logger.Warn("download not in a streamable state", "download_id", id, "status", rec.Status, "err", err)
		http.Error(w, "download already in progress or finished", http.StatusConflict)

		return
	}

	h.updateHistory(ctx, id, media.StatusDownloading, 0)

	logger = logger.With("download_id", id, "filename", rec.Filename)
	logger.Info("starting download stream")

	// Broadcast the start before any byte moves so every subscriber's row
	// flips to downloading together.
	h.hub.Notify(ctx, event.DownloadStarted{DownloadID: id, Index: rec.Index})

	w.Header().Set("Content-Type", rec.Format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.Filename+`"`)

	start := time.Now()

	var totalBytes int64

	streamErr := h.telemetry.InstrumentStream(ctx, func(ctx context.Context) error {
		n, err := h.streamProcess(ctx, w, rec)
		totalBytes = n

		return err
	})

	status := media.StatusCompleted

	switch {
	case streamErr == nil:
	case isClientGone(streamErr):
		status = media.StatusCancelled
	default:
		status = media.StatusFailed
	}

	if err := h.downloads.SetStatus(id, status); err != nil {
		// Global cancellation may have beaten us to a terminal status.
		logger.Debug("record already terminal", "err", err)
	}

	h.updateHistory(ctx, id, status, totalBytes)
	h.telemetry.RecordDownload(string(status), totalBytes, time.Since(start))

	logger.Info("download stream finished",
		"status", status,
		"total_bytes", humanize.Bytes(uint64(totalBytes)),
		"duration", time.Since(start).String(),
	)

	h.hub.Notify(ctx, event.DownloadComplete{
		DownloadID: id,
		Index:      rec.Index,
		Status:     string(status),
		TotalBytes: totalBytes,
	})

	h.notifyWebhook(ctx, rec, status, totalBytes)
}

// streamProcess spawns the tool and copies its stdout into the response,
// returning the bytes transferred. The process registry holds the handle
// for the duration so global cancellation can reach it.
func (h *Handler) streamProcess(ctx context.Context, w http.ResponseWriter, rec media.DownloadRecord) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	proc, err := h.streamer.StartStream(ctx, rec)
	if err != nil {
		logger.Error("failed to spawn streaming process", "err", err)

		return 0, err
	}

	h.procs.Register(rec.ID, proc)
	h.telemetry.IncrementActiveProcesses()

	defer func() {
		h.procs.Unregister(rec.ID)
		h.telemetry.DecrementActiveProcesses()
	}()

	var (
		bytesCopied atomic.Int64
		errMarker   atomic.Bool
		clientGone  atomic.Bool
	)

	// Disconnect watcher: a dropped response is the cancellation path for
	// a single in-flight download.
	watchDone := make(chan struct{})
	defer close(watchDone)

	go func() {
		select {
		case <-ctx.Done():
			clientGone.Store(true)

			logger.Info("client disconnected, killing download process")

			if err := proc.Kill(); err != nil {
				logger.Error("failed to kill process", "err", err)
			}
		case <-watchDone:
		}
	}()

	// Progress scanner: the tool reports percentages on stderr. Regressed
	// percentages are suppressed so client progress bars only move forward.
	scanDone := make(chan struct{})

	go func() {
		defer close(scanDone)

		var lastPercent float64

		ytdlp.ScanStderr(proc.Stderr(), ytdlp.StderrEvents{
			OnPercent: func(percent float64) {
				if percent <= lastPercent {
					return
				}

				lastPercent = percent

				h.hub.Notify(ctx, event.DownloadProgress{
					DownloadID:      rec.ID,
					Index:           rec.Index,
					Percentage:      int(percent),
					BytesDownloaded: bytesCopied.Load(),
				})
			},
			OnError: func(line string) {
				errMarker.Store(true)

				logger.Error("tool reported error", "line", line)
			},
		})
	}()

	counter := &countingWriter{w: w, n: &bytesCopied}
	_, copyErr := io.Copy(counter, proc.Stdout())

	<-scanDone

	waitErr := proc.Wait()
	total := bytesCopied.Load()

	if clientGone.Load() {
		return total, &clientGoneError{id: rec.ID}
	}

	if copyErr != nil {
		return total, &clientGoneError{id: rec.ID}
	}

	if waitErr != nil {
		return total, &media.StreamingError{DownloadID: rec.ID, ExitCode: exitCode(waitErr), Err: waitErr}
	}

	if errMarker.Load() {
		return total, &media.StreamingError{DownloadID: rec.ID, Marker: "tool reported an error"}
	}

	return total, nil
}

func (h *Handler) updateHistory(ctx context.Context, id string, status media.Status, totalBytes int64) {
	if h.history == nil {
		return
	}

	if err := h.history.UpdateStatus(ctx, id, string(status), totalBytes); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to update download history", "download_id", id, "err", err)
	}
}

func (h *Handler) notifyWebhook(ctx context.Context, rec media.DownloadRecord, status media.Status, totalBytes int64) {
	if h.webhook == nil {
		return
	}

	err := h.webhook.Notify(ctx, "download.completed", map[string]any{
		"downloadId": rec.ID,
		"title":      rec.Title,
		"filename":   rec.Filename,
		"status":     string(status),
		"totalBytes": totalBytes,
		"duration":   rec.Duration,
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send webhook", "download_id", rec.ID, "err", err)
	}
}

// countingWriter counts bytes on their way into the response body.
type countingWriter struct {
	w http.ResponseWriter
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))

	return n, err
}

// clientGoneError marks a transfer torn down by the client dropping the
// response.
type clientGoneError struct {
	id string
}

func (e *clientGoneError) Error() string {
	return "client disconnected during download " + e.id
}

func isClientGone(err error) bool {
	var cg *clientGoneError

	return errors.As(err, &cg)
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

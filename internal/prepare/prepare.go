// Package prepare resolves a submitted video URL into a registered,
// streamable download record: metadata fetch, filename derivation, and
// registry insertion.
package prepare

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/platform"
	"github.com/italolelis/mediafetch/internal/registry"
	"github.com/italolelis/mediafetch/internal/storage"
	"github.com/italolelis/mediafetch/internal/ytdlp"
)

// MetadataFetcher is the slice of the tool runner the pipeline needs.
type MetadataFetcher interface {
	Probe() error
	FetchMetadata(ctx context.Context, url, referer string, plat platform.Platform) (*ytdlp.Metadata, error)
}

// Pipeline prepares downloads one video at a time.
type Pipeline struct {
	tool      MetadataFetcher
	downloads *registry.DownloadRegistry
	history   storage.HistoryRepository
	notifier  event.Notifier
	timeout   time.Duration
}

// NewPipeline creates a preparation pipeline. history may be nil when no
// durable store is configured. timeout bounds a single metadata fetch;
// zero disables the deadline.
func NewPipeline(
	tool MetadataFetcher,
	downloads *registry.DownloadRegistry,
	history storage.HistoryRepository,
	notifier event.Notifier,
	timeout time.Duration,
) *Pipeline {
	return &Pipeline{
		tool:      tool,
		downloads: downloads,
		history:   history,
		notifier:  notifier,
		timeout:   timeout,
	}
}

var (
	mediaExtRe   = regexp.MustCompile(`(?i)\.(mp4|mkv|webm|mov|avi|mp3|m4a)$`)
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)
)

// SanitizeTitle makes a media title safe for use as a filename: any
// pre-existing media extension is stripped and characters illegal in
// filenames are replaced.
func SanitizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "Unknown"
	}

	title = mediaExtRe.ReplaceAllString(title, "")
	title = illegalChars.ReplaceAllString(title, "_")

	return strings.TrimSpace(title)
}

// BuildFilename derives the output filename from the batch prefix, the
// sanitized title, and the format's extension.
func BuildFilename(prefix, title string, format media.Format) string {
	return prefix + SanitizeTitle(title) + format.Extension()
}

// Prepare resolves one video into a registered download record. Per-video
// failures return an error without touching sibling preparations; a
// metadata parse failure degrades to placeholder metadata instead of
// failing.
func (p *Pipeline) Prepare(
	ctx context.Context,
	video media.VideoRequest,
	index, total int,
	filenamePrefix string,
	format media.Format,
	plat platform.Platform,
	batchIndex int,
) (media.DownloadRecord, error) {
	logger := logctx.LoggerFromContext(ctx)
	logPrefix := fmt.Sprintf("[%d/%d]", index+1, total)

	if err := p.tool.Probe(); err != nil {
		p.notifier.Notify(ctx, event.Log{Type: "error", Message: logPrefix + " media tool not found."})
		p.notifier.Notify(ctx, event.Progress{Index: index, Status: "Error: media tool not found"})

		return media.DownloadRecord{}, err
	}

	p.notifier.Notify(ctx, event.Log{Type: "info", Message: logPrefix + " Getting video information..."})
	p.notifier.Notify(ctx, event.Progress{Index: index, Percentage: event.Percent(0), Status: "Fetching info..."})

	fetchCtx := ctx

	if p.timeout > 0 {
		var cancel context.CancelFunc

		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	meta, err := p.tool.FetchMetadata(fetchCtx, video.URL, video.Domain, plat)
	if err != nil {
		var parseErr *media.MetadataParseError
		if !errors.As(err, &parseErr) {
			logger.Error("metadata fetch failed", "url", video.URL, "err", err)
			p.notifier.Notify(ctx, event.Log{Type: "error", Message: logPrefix + " " + err.Error()})
			p.notifier.Notify(ctx, event.Progress{Index: index, Status: "Error: failed to get info"})

			return media.DownloadRecord{}, err
		}

		// Malformed JSON is recoverable: proceed with placeholders.
		logger.Warn("metadata parse failed, using placeholders", "url", video.URL, "err", err)
		p.notifier.Notify(ctx, event.Log{Type: "error", Message: logPrefix + " Failed to parse video info."})

		if meta == nil {
			meta = ytdlp.PlaceholderMetadata()
		}
	} else {
		p.notifier.Notify(ctx, event.Log{Type: "info", Message: logPrefix + " Found: " + meta.Title})
	}

	rec := media.DownloadRecord{
		ID:            uuid.NewString(),
		URL:           video.URL,
		Domain:        video.Domain,
		Format:        format,
		Filename:      BuildFilename(filenamePrefix, meta.Title, format),
		Title:         meta.Title,
		Duration:      meta.Duration,
		EstimatedSize: meta.Filesize,
		Platform:      plat,
		BatchIndex:    batchIndex,
		Index:         index,
		Status:        media.StatusPrepared,
		PreparedAt:    time.Now(),
	}

	p.downloads.Put(rec)
	p.recordHistory(ctx, rec)

	p.notifier.Notify(ctx, event.Progress{
		Index:      index,
		Percentage: event.Percent(100),
		Status:     "Ready to download",
		Filename:   rec.Filename,
	})

	logger.Info("download prepared",
		"download_id", rec.ID,
		"title", rec.Title,
		"filename", rec.Filename,
		"platform", rec.Platform,
	)

	return rec, nil
}

func (p *Pipeline) recordHistory(ctx context.Context, rec media.DownloadRecord) {
	if p.history == nil {
		return
	}

	err := p.history.Insert(ctx, storage.HistoryRecord{
		DownloadID: rec.ID,
		URL:        rec.URL,
		Title:      rec.Title,
		Filename:   rec.Filename,
		Format:     string(rec.Format),
		Platform:   string(rec.Platform),
		Status:     string(rec.Status),
		PreparedAt: rec.PreparedAt,
	})
	if err != nil {
		// History is best effort; the live registry stays authoritative.
		logctx.LoggerFromContext(ctx).Error("failed to record download history", "download_id", rec.ID, "err", err)
	}
}

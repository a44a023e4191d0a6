package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/platform"
	"github.com/italolelis/mediafetch/internal/prepare"
	"github.com/italolelis/mediafetch/internal/registry"
	"github.com/italolelis/mediafetch/internal/ytdlp"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures emitted events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *recordingNotifier) byName(name string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []event.Event

	for _, e := range r.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}

	return out
}

// stubFetcher resolves metadata without a subprocess. fetchHook runs inside
// each fetch, letting tests cancel mid-run.
type stubFetcher struct {
	fetchHook func()
	fetchErr  error
	title     string
}

func (s *stubFetcher) Probe() error { return nil }

func (s *stubFetcher) FetchMetadata(ctx context.Context, url, referer string, plat platform.Platform) (*ytdlp.Metadata, error) {
	if s.fetchHook != nil {
		s.fetchHook()
	}

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	title := s.title
	if title == "" {
		title = "Video"
	}

	return &ytdlp.Metadata{Title: title, Duration: 10}, nil
}

func newTestOrchestrator(fetcher prepare.MetadataFetcher) (*Orchestrator, *registry.DownloadRegistry, *recordingNotifier) {
	downloads := registry.NewDownloadRegistry(time.Minute)
	notif := &recordingNotifier{}
	pipeline := prepare.NewPipeline(fetcher, downloads, nil, notif, 0)

	return New(pipeline, registry.NewProcessRegistry(), notif), downloads, notif
}

func TestRunSingleVideo(t *testing.T) {
	orch, downloads, notif := newTestOrchestrator(&stubFetcher{title: "My Clip"})

	ids := orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "1",
		PrefixMinorStart: "1",
		Format:           "video-audio",
		Videos:           []media.VideoRequest{{URL: "https://www.youtube.com/watch?v=abc"}},
	}})

	require.Len(t, ids, 1)

	rec, err := downloads.Get(ids[0])
	require.NoError(t, err)
	require.Equal(t, "1.1_My Clip.mp4", rec.Filename)
	require.Equal(t, media.StatusPrepared, rec.Status)

	starting := notif.byName("new-batch-starting")
	require.Len(t, starting, 1)
	require.Equal(t, 1, starting[0].(event.NewBatchStarting).TotalVideos)

	auto := notif.byName("auto-download-start")
	require.Len(t, auto, 1)
	require.Equal(t, ids, auto[0].(event.AutoDownloadStart).DownloadIDs)
	require.NotEmpty(t, auto[0].(event.AutoDownloadStart).SessionID)

	complete := notif.byName("all-batches-complete")
	require.Len(t, complete, 1)
	require.False(t, complete[0].(event.AllBatchesComplete).Cancelled)
}

func TestRunMinorCounterAdvancesOnFailure(t *testing.T) {
	calls := 0
	fetcher := &stubFetcher{}
	fetcher.fetchHook = func() {
		calls++
		if calls == 2 {
			fetcher.fetchErr = &media.MetadataFetchError{URL: "x", ExitCode: 1}
		} else {
			fetcher.fetchErr = nil
		}
	}

	orch, downloads, _ := newTestOrchestrator(fetcher)

	ids := orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "2",
		PrefixMinorStart: "5",
		Format:           "video-audio",
		Videos: []media.VideoRequest{
			{URL: "https://example.com/a"},
			{URL: "https://example.com/b"},
			{URL: "https://example.com/c"},
		},
	}})

	// The middle video failed but its slot number is not reused.
	require.Len(t, ids, 2)

	first, err := downloads.Get(ids[0])
	require.NoError(t, err)
	require.Contains(t, first.Filename, "2.5_")

	third, err := downloads.Get(ids[1])
	require.NoError(t, err)
	require.Contains(t, third.Filename, "2.7_")
}

func TestRunInvalidMinorStartDefaultsToOne(t *testing.T) {
	orch, downloads, _ := newTestOrchestrator(&stubFetcher{})

	ids := orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "3",
		PrefixMinorStart: "not-a-number",
		Format:           "video-audio",
		Videos:           []media.VideoRequest{{URL: "https://example.com/a"}},
	}})

	require.Len(t, ids, 1)

	rec, err := downloads.Get(ids[0])
	require.NoError(t, err)
	require.Contains(t, rec.Filename, "3.1_")
}

func TestRunMultipleBatches(t *testing.T) {
	orch, _, notif := newTestOrchestrator(&stubFetcher{})

	ids := orch.Run(context.Background(), []media.BatchRequest{
		{PrefixMajor: "1", PrefixMinorStart: "1", Format: "video-audio", Videos: []media.VideoRequest{{URL: "https://example.com/a"}, {URL: "https://example.com/b"}}},
		{PrefixMajor: "2", PrefixMinorStart: "1", Format: "audio-mp3", Videos: []media.VideoRequest{{URL: "https://example.com/c"}}},
	})

	require.Len(t, ids, 3)
	require.Len(t, notif.byName("new-batch-starting"), 2)
}

func TestRunCancelMidRun(t *testing.T) {
	var orch *Orchestrator

	calls := 0
	fetcher := &stubFetcher{}
	fetcher.fetchHook = func() {
		calls++
		if calls == 1 {
			orch.Cancel(context.Background())
		}
	}

	o, _, notif := newTestOrchestrator(fetcher)
	orch = o

	ids := orch.Run(context.Background(), []media.BatchRequest{
		{PrefixMajor: "1", PrefixMinorStart: "1", Format: "video-audio", Videos: []media.VideoRequest{{URL: "https://example.com/a"}, {URL: "https://example.com/b"}}},
		{PrefixMajor: "2", PrefixMinorStart: "1", Format: "video-audio", Videos: []media.VideoRequest{{URL: "https://example.com/c"}}},
	})

	// The first video completes its preparation; everything after is skipped.
	require.Len(t, ids, 1)
	require.Equal(t, 1, calls)
	require.Len(t, notif.byName("new-batch-starting"), 1)
	require.Empty(t, notif.byName("auto-download-start"))

	complete := notif.byName("all-batches-complete")
	require.Len(t, complete, 1)
	require.True(t, complete[0].(event.AllBatchesComplete).Cancelled)
}

func TestRunClearsPreviousCancellation(t *testing.T) {
	orch, _, notif := newTestOrchestrator(&stubFetcher{})

	orch.Cancel(context.Background())
	require.True(t, orch.Cancelled())

	ids := orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "1",
		PrefixMinorStart: "1",
		Format:           "video-audio",
		Videos:           []media.VideoRequest{{URL: "https://example.com/a"}},
	}})

	require.Len(t, ids, 1)
	require.False(t, orch.Cancelled())
	require.Len(t, notif.byName("auto-download-start"), 1)
}

func TestRunConvertsVimeoShareURLs(t *testing.T) {
	var fetchedURL string

	fetcher := &stubFetcher{}
	fetcher.fetchHook = func() {}

	downloads := registry.NewDownloadRegistry(time.Minute)
	notif := &recordingNotifier{}

	captured := &urlCapturingFetcher{inner: fetcher, captured: &fetchedURL}
	pipeline := prepare.NewPipeline(captured, downloads, nil, notif, 0)
	orch := New(pipeline, registry.NewProcessRegistry(), notif)

	orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "1",
		PrefixMinorStart: "1",
		Format:           "video-audio",
		Videos:           []media.VideoRequest{{URL: "https://vimeo.com/123456789/abcdef12"}},
	}})

	require.Equal(t, "https://player.vimeo.com/video/123456789?h=abcdef12", fetchedURL)
}

func TestRunNoVideosProduceNoAutoDownload(t *testing.T) {
	orch, _, notif := newTestOrchestrator(&stubFetcher{fetchErr: &media.MetadataFetchError{URL: "x", ExitCode: 1}})

	ids := orch.Run(context.Background(), []media.BatchRequest{{
		PrefixMajor:      "1",
		PrefixMinorStart: "1",
		Format:           "video-audio",
		Videos:           []media.VideoRequest{{URL: "https://example.com/a"}},
	}})

	require.Empty(t, ids)
	require.Empty(t, notif.byName("auto-download-start"))
	require.Len(t, notif.byName("all-batches-complete"), 1)
}

// urlCapturingFetcher records the URL handed to the metadata fetch.
type urlCapturingFetcher struct {
	inner    prepare.MetadataFetcher
	captured *string
}

func (u *urlCapturingFetcher) Probe() error { return u.inner.Probe() }

func (u *urlCapturingFetcher) FetchMetadata(ctx context.Context, url, referer string, plat platform.Platform) (*ytdlp.Metadata, error) {
	*u.captured = url

	return u.inner.FetchMetadata(ctx, url, referer, plat)
}

// fetchctl is a headless MediaFetch client: it submits a batch file to a
// running server, follows the event stream, and downloads each prepared
// file one at a time into a local directory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/sequencer"
)

const (
	settleDelay = 500 * time.Millisecond
	interDelay  = 2 * time.Second
)

type options struct {
	serverURL string
	batchFile string
	outDir    string
	username  string
	password  string
}

func main() {
	var opts options

	flag.StringVar(&opts.serverURL, "server", "http://localhost:8234", "MediaFetch server URL")
	flag.StringVar(&opts.batchFile, "file", "", "JSON file with the batches to submit")
	flag.StringVar(&opts.outDir, "out", ".", "directory to save downloaded files into")
	flag.StringVar(&opts.username, "user", "", "basic auth username")
	flag.StringVar(&opts.password, "pass", "", "basic auth password")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if opts.batchFile == "" {
		logger.Error("-file is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	body, err := os.ReadFile(opts.batchFile)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	client := &http.Client{}

	seq := sequencer.New(sequencer.TriggerFunc(func(ctx context.Context, downloadID, sessionID string) error {
		return fetchFile(ctx, client, opts, downloadID)
	}), settleDelay, interDelay)

	// The event stream must be attached before the run starts or the first
	// events are lost.
	events, errs := subscribe(ctx, client, opts)

	if err := startRun(ctx, client, opts, body); err != nil {
		return err
	}

	logger.Info("batches submitted, waiting for downloads")

	done := false

	for !done {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return fmt.Errorf("event stream error: %w", err)
		case ev := <-events:
			done = handleEvent(ctx, logger, seq, ev)
		}
	}

	if err := seq.Wait(ctx); err != nil {
		return fmt.Errorf("downloads interrupted: %w", err)
	}

	logger.Info("all downloads finished")

	return nil
}

// serverEvent is one parsed frame from the event stream.
type serverEvent struct {
	name string
	data []byte
}

// handleEvent reacts to one server event. It reports true once the run is
// over and every queued download may drain.
func handleEvent(ctx context.Context, logger *slog.Logger, seq *sequencer.Sequencer, ev serverEvent) bool {
	switch ev.name {
	case "log":
		var e event.Log
		if err := json.Unmarshal(ev.data, &e); err == nil {
			logger.Info("server: " + e.Message)
		}
	case "new-batch-starting":
		var e event.NewBatchStarting
		if err := json.Unmarshal(ev.data, &e); err == nil {
			logger.Info("batch starting", "batch", e.BatchIndex+1, "videos", e.TotalVideos)
		}
	case "auto-download-start":
		var e event.AutoDownloadStart
		if err := json.Unmarshal(ev.data, &e); err != nil {
			logger.Error("bad auto-download-start payload", "err", err)

			return false
		}

		logger.Info("queueing downloads", "count", len(e.DownloadIDs))
		seq.Enqueue(ctx, e.DownloadIDs, e.SessionID)
	case "download-progress":
		var e event.DownloadProgress
		if err := json.Unmarshal(ev.data, &e); err == nil {
			logger.Info("downloading",
				"index", e.Index,
				"percent", e.Percentage,
				"received", humanize.Bytes(uint64(e.BytesDownloaded)),
			)
		}
	case "download-complete":
		var e event.DownloadComplete
		if err := json.Unmarshal(ev.data, &e); err == nil {
			logger.Info("download finished",
				"index", e.Index,
				"status", e.Status,
				"size", humanize.Bytes(uint64(e.TotalBytes)),
			)
		}
	case "all-batches-complete":
		var e event.AllBatchesComplete
		if err := json.Unmarshal(ev.data, &e); err == nil && e.Cancelled {
			logger.Warn("run was cancelled")
		}

		return true
	}

	return false
}

// subscribe opens the event stream and emits parsed frames on a channel.
func subscribe(ctx context.Context, client *http.Client, opts options) (<-chan serverEvent, <-chan error) {
	events := make(chan serverEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.serverURL+"/events", nil)
		if err != nil {
			errs <- err

			return
		}

		req.Header.Set("Accept", "text/event-stream")
		setAuth(req, opts)

		resp, err := client.Do(req)
		if err != nil {
			errs <- err

			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- fmt.Errorf("event stream returned status %d", resp.StatusCode)

			return
		}

		var name string

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")

				select {
				case events <- serverEvent{name: name, data: []byte(data)}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- err
		}
	}()

	return events, errs
}

func startRun(ctx context.Context, client *http.Client, opts options, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.serverURL+"/api/start-download", strings.NewReader(string(body)))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	setAuth(req, opts)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit batches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return fmt.Errorf("server rejected batches: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return nil
}

// fetchFile pulls one prepared download and writes it to the output
// directory under the server-chosen filename.
func fetchFile(ctx context.Context, client *http.Client, opts options, downloadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.serverURL+"/download/"+downloadID, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s returned status %d", downloadID, resp.StatusCode)
	}

	name := filenameFromHeader(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = downloadID
	}

	f, err := os.Create(filepath.Join(opts.outDir, filepath.Base(name)))
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}

	return nil
}

func filenameFromHeader(disposition string) string {
	if disposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}

	return params["filename"]
}

func setAuth(req *http.Request, opts options) {
	if opts.username != "" {
		req.SetBasicAuth(opts.username, opts.password)
	}
}

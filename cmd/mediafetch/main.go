package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/mediafetch/internal/config"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/http/rest"
	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/notifier"
	"github.com/italolelis/mediafetch/internal/orchestrator"
	"github.com/italolelis/mediafetch/internal/prepare"
	"github.com/italolelis/mediafetch/internal/registry"
	"github.com/italolelis/mediafetch/internal/storage"
	"github.com/italolelis/mediafetch/internal/storage/sqlite"
	"github.com/italolelis/mediafetch/internal/telemetry"
	"github.com/italolelis/mediafetch/internal/ytdlp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("mediafetch starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	history := sqlite.NewInstrumentedHistoryRepository(database, tel)

	// =========================================================================
	// Start Media Tool
	runner := ytdlp.NewRunner(cfg.YtDlpPath, cfg.FFmpegPath)
	if err := runner.Probe(); err != nil {
		// The service stays up without the tool so health checks and the
		// history API keep working; preparations will fail until it appears.
		logger.Error("media tool not found, downloads will fail", "path", cfg.YtDlpPath, "err", err)
	}

	if !runner.FFmpegAvailable() {
		logger.Warn("ffmpeg not found, audio extraction and video-only formats may fail", "path", cfg.FFmpegPath)
	}

	// =========================================================================
	// Start Registries and Event Hub
	procs := registry.NewProcessRegistry()

	downloads := registry.NewDownloadRegistry(cfg.KeepRecordsFor)
	downloads.StartReaper(ctx, cfg.ReapInterval)

	hub := event.NewHub()

	// Every emitted event also bumps the event counter.
	metered := event.Multi(hub, event.NotifierFunc(func(ctx context.Context, e event.Event) {
		tel.RecordEvent(e.Name())
	}))

	// =========================================================================
	// Start Orchestration Core
	pipeline := prepare.NewPipeline(runner, downloads, history, metered, cfg.PrepareTimeout)
	orch := orchestrator.New(pipeline, procs, metered)

	var webhook notifier.Notifier
	if cfg.WebhookURL != "" {
		webhook = &notifier.WebhookNotifier{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}

		logger.Info("webhook notifications enabled", "url", cfg.WebhookURL)
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, cfg, rest.NewHandler(
		downloads,
		procs,
		orch,
		pipeline,
		hub,
		rest.StreamerFunc(func(ctx context.Context, rec media.DownloadRecord) (rest.StreamProcess, error) {
			return runner.StartStream(ctx, rec)
		}),
		history,
		webhook,
		tel,
		rest.AuthConfig{
			Enabled:  cfg.EnableAuth,
			Username: cfg.AuthUsername,
			Password: cfg.AuthPassword,
		},
	), tel)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for download requests...",
		"retention", cfg.KeepRecordsFor.String(),
		"history_retention", cfg.KeepHistoryFor.String(),
	)

	// =========================================================================
	// Start History Cleanup
	setupHistoryCleanup(ctx, history, cfg)

	// =========================================================================
	// Wait for shutdown
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		killed := procs.KillAll()
		if killed > 0 {
			logger.Info("killed in-flight download processes", "count", killed)
		}

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupServer prepares the router and the http server.
func setupServer(ctx context.Context, cfg *config.Config, handler *rest.Handler, tel *telemetry.Telemetry) *http.Server {
	r := chi.NewRouter()

	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", handler.Routes())
	r.Handle("/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupHistoryCleanup(ctx context.Context, history storage.HistoryRepository, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("history cleanup goroutine shutting down.")

				return
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.KeepHistoryFor)

				purged, err := history.PurgeOlderThan(ctx, cutoff)
				if err != nil {
					logger.Error("failed to purge download history", "err", err)

					continue
				}

				if purged > 0 {
					logger.Info("purged old download history", "count", purged)
				}
			}
		}
	}()
}

// Package rest exposes the MediaFetch HTTP surface: the event stream, the
// orchestration endpoints, and the streaming download server.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/italolelis/mediafetch/internal/event"
	"github.com/italolelis/mediafetch/internal/logctx"
	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/notifier"
	"github.com/italolelis/mediafetch/internal/orchestrator"
	"github.com/italolelis/mediafetch/internal/platform"
	"github.com/italolelis/mediafetch/internal/prepare"
	"github.com/italolelis/mediafetch/internal/registry"
	"github.com/italolelis/mediafetch/internal/storage"
	"github.com/italolelis/mediafetch/internal/telemetry"
)

const (
	serviceName      = "MediaFetch"
	defaultListLimit = 100
)

// AuthConfig is the basic-auth profile of the handler.
type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

// Handler wires the orchestration core to HTTP.
type Handler struct {
	downloads *registry.DownloadRegistry
	procs     *registry.ProcessRegistry
	orch      *orchestrator.Orchestrator
	pipeline  *prepare.Pipeline
	hub       *event.Hub
	streamer  Streamer
	history   storage.HistoryRepository
	webhook   notifier.Notifier
	telemetry *telemetry.Telemetry
	auth      AuthConfig
}

// NewHandler creates the HTTP handler. history and webhook may be nil.
func NewHandler(
	downloads *registry.DownloadRegistry,
	procs *registry.ProcessRegistry,
	orch *orchestrator.Orchestrator,
	pipeline *prepare.Pipeline,
	hub *event.Hub,
	streamer Streamer,
	history storage.HistoryRepository,
	webhook notifier.Notifier,
	tel *telemetry.Telemetry,
	auth AuthConfig,
) *Handler {
	return &Handler{
		downloads: downloads,
		procs:     procs,
		orch:      orch,
		pipeline:  pipeline,
		hub:       hub,
		streamer:  streamer,
		history:   history,
		webhook:   webhook,
		telemetry: tel,
		auth:      auth,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(h.basicAuthMiddleware)

	r.Get("/health", h.HandleHealth)
	r.Get("/events", h.HandleEvents)
	r.Get("/download/{downloadID}", h.HandleDownload)

	r.Route("/api", func(r chi.Router) {
		r.Post("/start-download", h.HandleStartDownload)
		r.Post("/cancel-download", h.HandleCancelDownload)
		r.Post("/prepare-download", h.HandlePrepareDownload)
		r.Get("/download/{downloadID}", h.HandleDownload)
		r.Get("/status/{downloadID}", h.HandleStatus)
		r.Get("/downloads", h.HandleListDownloads)
	})

	return r
}

// basicAuthMiddleware enforces basic auth when enabled. Download fetches
// stay exempt: the browser's transient anchor clicks carry no credentials.
func (h *Handler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.auth.Enabled || strings.HasPrefix(r.URL.Path, "/download/") || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)

			return
		}

		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="MediaFetch"`)
			http.Error(w, "authentication required", http.StatusUnauthorized)

			return
		}

		if username != h.auth.Username || password != h.auth.Password {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleHealth reports service liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleEvents is the push channel: a server-sent-event stream replaying
// every orchestration and download event to the client.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	logger.Debug("event stream subscriber connected")

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("event stream subscriber disconnected")

			return
		case env, ok := <-events:
			if !ok {
				return
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Name, env.Data)
			flusher.Flush()
		}
	}
}

type startDownloadRequest struct {
	Batches []media.BatchRequest `json:"batches"`
}

// HandleStartDownload kicks off an orchestration run for the submitted
// batches. The run proceeds in the background; progress arrives on the
// event stream.
func (h *Handler) HandleStartDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req startDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if len(req.Batches) == 0 {
		http.Error(w, "no batches submitted", http.StatusBadRequest)

		return
	}

	logger.Info("received download request", "batches", len(req.Batches))

	// The run outlives this request; detach it from the request's
	// cancellation but keep its values (logger, request id).
	runCtx := context.WithoutCancel(r.Context())
	go h.orch.Run(runCtx, req.Batches)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// HandleCancelDownload sets the global cancellation flag and kills every
// live process. There is no payload; cancellation is global.
func (h *Handler) HandleCancelDownload(w http.ResponseWriter, r *http.Request) {
	h.orch.Cancel(r.Context())
	h.hub.Notify(r.Context(), event.Log{Type: "error", Message: "Cancellation request received."})

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type prepareDownloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Referer string `json:"referer,omitempty"`
}

type prepareDownloadResponse struct {
	DownloadID    string  `json:"downloadId"`
	Filename      string  `json:"filename"`
	Title         string  `json:"title"`
	Duration      float64 `json:"duration"`
	Platform      string  `json:"platform"`
	EstimatedSize int64   `json:"estimatedSize"`
}

// HandlePrepareDownload is the request/response API variant: prepare one
// video synchronously and return its download identifier.
func (h *Handler) HandlePrepareDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req prepareDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)

		return
	}

	url := platform.CanonicalURL(req.URL)
	plat := platform.Detect(url)
	video := media.VideoRequest{URL: url, Domain: req.Referer}

	rec, err := h.pipeline.Prepare(r.Context(), video, 0, 1, "", media.ParseFormat(req.Format), plat, 0)
	if err != nil {
		h.telemetry.RecordPrepare("error")
		logger.Error("failed to prepare download", "url", req.URL, "err", err)

		var toolErr *media.ToolMissingError
		if errors.As(err, &toolErr) {
			http.Error(w, "media tool unavailable", http.StatusServiceUnavailable)

			return
		}

		http.Error(w, "failed to prepare download", http.StatusBadGateway)

		return
	}

	h.telemetry.RecordPrepare("success")

	writeJSON(w, http.StatusOK, prepareDownloadResponse{
		DownloadID:    rec.ID,
		Filename:      rec.Filename,
		Title:         rec.Title,
		Duration:      rec.Duration,
		Platform:      string(rec.Platform),
		EstimatedSize: rec.EstimatedSize,
	})
}

// HandleStatus returns the live record for one download identifier.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "downloadID")

	rec, err := h.downloads.Get(id)
	if err != nil {
		http.Error(w, "Download not found", http.StatusNotFound)

		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// HandleListDownloads lists download history, falling back to the live
// registry when no durable store is configured.
func (h *Handler) HandleListDownloads(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"downloads": h.downloads.List()})

		return
	}

	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		logger.Error("failed to list download history", "err", err)
		http.Error(w, "failed to list downloads", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"downloads": records})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

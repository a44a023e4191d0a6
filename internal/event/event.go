// Package event defines the typed outbound events pushed to clients and the
// Notifier interface the rest of the system emits through. The transport is
// an implementation detail behind Notifier; the SSE hub, the webhook
// forwarder, and test fakes all implement it.
package event

import "context"

// Event is one outbound push event. Name is the wire-level event name.
type Event interface {
	Name() string
}

// Notifier delivers events to whoever is listening.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, e Event)

func (f NotifierFunc) Notify(ctx context.Context, e Event) {
	f(ctx, e)
}

// Log is a free-text diagnostic line.
type Log struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (Log) Name() string { return "log" }

// NewBatchStarting tells the client to render TotalVideos progress slots.
type NewBatchStarting struct {
	BatchIndex  int `json:"batchIndex"`
	TotalVideos int `json:"totalVideos"`
}

func (NewBatchStarting) Name() string { return "new-batch-starting" }

// Progress is a per-slot update during preparation.
type Progress struct {
	Index      int    `json:"index"`
	Percentage *int   `json:"percentage,omitempty"`
	Status     string `json:"status,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Speed      string `json:"speed,omitempty"`
}

func (Progress) Name() string { return "progress" }

// Percent is a convenience for Progress.Percentage literals.
func Percent(p int) *int { return &p }

// AutoDownloadStart carries the complete ordered ready list for one run.
type AutoDownloadStart struct {
	DownloadIDs []string `json:"downloadIds"`
	SessionID   string   `json:"sessionId"`
}

func (AutoDownloadStart) Name() string { return "auto-download-start" }

// DownloadStarted marks the beginning of a byte transfer.
type DownloadStarted struct {
	DownloadID string `json:"downloadId"`
	Index      int    `json:"index"`
}

func (DownloadStarted) Name() string { return "download-started" }

// DownloadProgress reports transfer progress for one download.
type DownloadProgress struct {
	DownloadID      string `json:"downloadId"`
	Index           int    `json:"index"`
	Percentage      int    `json:"percentage"`
	BytesDownloaded int64  `json:"bytesDownloaded"`
}

func (DownloadProgress) Name() string { return "download-progress" }

// DownloadComplete reports the terminal outcome of one byte transfer.
type DownloadComplete struct {
	DownloadID string `json:"downloadId"`
	Index      int    `json:"index"`
	Status     string `json:"status"`
	TotalBytes int64  `json:"totalBytes"`
}

func (DownloadComplete) Name() string { return "download-complete" }

// AllBatchesComplete is the terminal event of an orchestration run.
type AllBatchesComplete struct {
	Cancelled bool `json:"cancelled"`
}

func (AllBatchesComplete) Name() string { return "all-batches-complete" }

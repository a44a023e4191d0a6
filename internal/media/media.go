package media

import (
	"time"

	"github.com/italolelis/mediafetch/internal/platform"
)

// Format identifies the requested output format for a download.
type Format string

const (
	FormatAudioMP3   Format = "audio-mp3"
	FormatAudioM4A   Format = "audio-m4a"
	FormatVideoOnly  Format = "video-only"
	FormatVideoAudio Format = "video-audio"
)

// ParseFormat maps a submitted format string to a known Format.
// Unknown values fall back to video+audio, mirroring the submission form default.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatAudioMP3, FormatAudioM4A, FormatVideoOnly, FormatVideoAudio:
		return Format(s)
	}

	return FormatVideoAudio
}

// Extension returns the filename extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatAudioMP3:
		return ".mp3"
	case FormatAudioM4A:
		return ".m4a"
	case FormatVideoOnly:
		return "_No_Audio.mp4"
	default:
		return ".mp4"
	}
}

// ContentType returns the HTTP content type for the format family.
func (f Format) ContentType() string {
	if f.IsAudio() {
		return "audio/mpeg"
	}

	return "video/mp4"
}

// IsAudio reports whether the format is audio-only.
func (f Format) IsAudio() bool {
	return f == FormatAudioMP3 || f == FormatAudioM4A
}

// Status is the lifecycle state of a download record.
type Status string

const (
	StatusPrepared    Status = "prepared"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a record may move from s to next.
// Transitions only ever move forward: prepared -> downloading -> terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPrepared:
		return next == StatusDownloading || next.Terminal()
	case StatusDownloading:
		return next.Terminal()
	default:
		return false
	}
}

// VideoRequest is a single submitted media URL, consumed by the
// preparation pipeline at submission time.
type VideoRequest struct {
	URL    string `json:"url"`
	Domain string `json:"domain,omitempty"`
}

// BatchRequest is an ordered group of video requests sharing a
// filename-prefix scheme and output format.
type BatchRequest struct {
	PrefixMajor      string         `json:"prefixMajor"`
	PrefixMinorStart string         `json:"prefixMinorStart"`
	Format           string         `json:"format"`
	Videos           []VideoRequest `json:"videos"`
}

// DownloadRecord is a prepared, streamable media artifact. The ID is the
// only handle by which the streaming server can locate it.
type DownloadRecord struct {
	ID         string            `json:"downloadId"`
	URL        string            `json:"url"`
	Domain     string            `json:"domain,omitempty"`
	Format     Format            `json:"format"`
	Filename   string            `json:"filename"`
	Title      string            `json:"title"`
	Duration   float64           `json:"duration"`
	// EstimatedSize is the tool's approximate filesize in bytes, zero when
	// the tool reports none.
	EstimatedSize int64 `json:"estimatedSize,omitempty"`
	Platform   platform.Platform `json:"platform"`
	BatchIndex int               `json:"batchIndex"`
	Index      int               `json:"index"`
	Status     Status            `json:"status"`
	PreparedAt time.Time         `json:"preparedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

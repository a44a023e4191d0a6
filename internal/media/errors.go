package media

import "fmt"

// ToolMissingError indicates the external media tool binary is unreachable.
type ToolMissingError struct {
	Binary string
	Err    error
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("media tool not found at %s", e.Binary)
}

func (e *ToolMissingError) Unwrap() error {
	return e.Err
}

// MetadataFetchError indicates the metadata dump process exited non-zero.
type MetadataFetchError struct {
	URL      string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch metadata for %s (exit code %d)", e.URL, e.ExitCode)
}

func (e *MetadataFetchError) Unwrap() error {
	return e.Err
}

// MetadataParseError indicates the tool's metadata output was malformed.
// Preparation recovers from this error with placeholder title and duration.
type MetadataParseError struct {
	URL string
	Err error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("failed to parse metadata for %s: %v", e.URL, e.Err)
}

func (e *MetadataParseError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates an unknown download identifier.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("download %s not found", e.ID)
}

// SpawnError indicates the streaming process could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// StreamingError indicates a non-zero exit or a detected error marker
// during the byte transfer.
type StreamingError struct {
	DownloadID string
	ExitCode   int
	Marker     string
	Err        error
}

func (e *StreamingError) Error() string {
	if e.Marker != "" {
		return fmt.Sprintf("streaming failed for %s: %s", e.DownloadID, e.Marker)
	}

	return fmt.Sprintf("streaming failed for %s (exit code %d)", e.DownloadID, e.ExitCode)
}

func (e *StreamingError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError indicates an attempt to move a record's status
// backwards or out of a terminal state.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("download %s cannot transition from %s to %s", e.ID, e.From, e.To)
}

package ytdlp

import (
	"encoding/json"
	"strings"
)

const (
	// placeholderTitle is used when the tool reports no usable title.
	placeholderTitle = "Unknown"
)

// Metadata is the subset of the tool's --dump-json output the pipeline
// relies on. Everything beyond Title is optional; missing fields default
// rather than fail.
type Metadata struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Extractor string  `json:"extractor"`
	Uploader  string  `json:"uploader"`
	Filesize  int64   `json:"filesize_approx"`
}

// ParseMetadata parses the last line of the tool's stdout as JSON. The tool
// may emit warnings or one JSON object per playlist entry; only the final
// line is authoritative.
func ParseMetadata(output []byte) (*Metadata, error) {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	last := lines[len(lines)-1]

	var meta Metadata
	if err := json.Unmarshal([]byte(last), &meta); err != nil {
		return nil, err
	}

	meta.applyDefaults()

	return &meta, nil
}

// PlaceholderMetadata returns the defaults used when metadata could not be
// parsed but preparation proceeds anyway.
func PlaceholderMetadata() *Metadata {
	meta := &Metadata{}
	meta.applyDefaults()

	return meta
}

func (m *Metadata) applyDefaults() {
	if strings.TrimSpace(m.Title) == "" {
		m.Title = placeholderTitle
	}

	if m.Duration < 0 {
		m.Duration = 0
	}
}

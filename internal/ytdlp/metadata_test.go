package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name        string
		output      string
		expectError bool
		wantTitle   string
		wantDur     float64
	}{
		{
			name:      "single JSON object",
			output:    `{"id":"abc","title":"My Video","duration":42.5}`,
			wantTitle: "My Video",
			wantDur:   42.5,
		},
		{
			name: "warnings before JSON, last line wins",
			output: "WARNING: unable to extract thumbnail\n" +
				`{"id":"first","title":"First Entry","duration":10}` + "\n" +
				`{"id":"last","title":"Last Entry","duration":20}`,
			wantTitle: "Last Entry",
			wantDur:   20,
		},
		{
			name:      "missing title defaults",
			output:    `{"id":"abc","duration":5}`,
			wantTitle: "Unknown",
			wantDur:   5,
		},
		{
			name:      "negative duration clamped",
			output:    `{"title":"Clip","duration":-1}`,
			wantTitle: "Clip",
			wantDur:   0,
		},
		{
			name:        "not JSON",
			output:      "ERROR: unsupported URL",
			expectError: true,
		},
		{
			name:        "empty output",
			output:      "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := ParseMetadata([]byte(tt.output))

			if tt.expectError {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantTitle, meta.Title)
			require.Equal(t, tt.wantDur, meta.Duration)
		})
	}
}

func TestPlaceholderMetadata(t *testing.T) {
	meta := PlaceholderMetadata()

	require.Equal(t, "Unknown", meta.Title)
	require.Zero(t, meta.Duration)
}

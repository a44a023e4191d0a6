package ytdlp

import (
	"strings"
	"testing"

	"github.com/italolelis/mediafetch/internal/media"
	"github.com/italolelis/mediafetch/internal/platform"
	"github.com/stretchr/testify/require"
)

func TestStreamArgs(t *testing.T) {
	r := NewRunner("yt-dlp", "")

	tests := []struct {
		name        string
		rec         media.DownloadRecord
		wantParts   []string
		absentParts []string
	}{
		{
			name: "default video with audio",
			rec:  media.DownloadRecord{URL: "https://example.com/v", Format: media.FormatVideoAudio, Platform: platform.Other},
			wantParts: []string{
				"-f best[ext=mp4]/best",
				"-o - --no-warnings --no-progress --no-playlist",
			},
			absentParts: []string{"-x", "--postprocessor-args"},
		},
		{
			name: "audio mp3 extraction",
			rec:  media.DownloadRecord{URL: "https://example.com/v", Format: media.FormatAudioMP3, Platform: platform.Other},
			wantParts: []string{
				"-x --audio-format mp3 --audio-quality 0",
			},
		},
		{
			name: "audio m4a extraction",
			rec:  media.DownloadRecord{URL: "https://example.com/v", Format: media.FormatAudioM4A, Platform: platform.Other},
			wantParts: []string{
				"-x --audio-format m4a --audio-quality 0",
			},
		},
		{
			name: "video only on youtube uses video stream",
			rec:  media.DownloadRecord{URL: "https://youtube.com/watch?v=a", Format: media.FormatVideoOnly, Platform: platform.YouTube},
			wantParts: []string{
				"-f bestvideo[ext=mp4]/bestvideo",
			},
			absentParts: []string{"--postprocessor-args"},
		},
		{
			name: "video only elsewhere strips audio in remux",
			rec:  media.DownloadRecord{URL: "https://example.com/v", Format: media.FormatVideoOnly, Platform: platform.Other},
			wantParts: []string{
				"-f best[ext=mp4]/best",
				"--postprocessor-args ffmpeg:-an -c:v copy",
			},
		},
		{
			name: "instagram keeps playlists",
			rec:  media.DownloadRecord{URL: "https://instagram.com/p/a", Format: media.FormatVideoAudio, Platform: platform.Instagram},
			absentParts: []string{
				"--no-playlist",
			},
		},
		{
			name: "referer forwarded",
			rec:  media.DownloadRecord{URL: "https://example.com/v", Domain: "https://site.test", Format: media.FormatVideoAudio, Platform: platform.Other},
			wantParts: []string{
				"--referer https://site.test",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			joined := strings.Join(r.StreamArgs(tt.rec), " ")

			for _, part := range tt.wantParts {
				require.Contains(t, joined, part)
			}

			for _, part := range tt.absentParts {
				require.NotContains(t, joined, part)
			}

			require.True(t, strings.HasSuffix(joined, tt.rec.URL), "URL must come last")
		})
	}
}

func TestStreamArgsFFmpegLocation(t *testing.T) {
	// An unconfigured ffmpeg path never adds the location flag.
	r := NewRunner("yt-dlp", "")
	joined := strings.Join(r.StreamArgs(media.DownloadRecord{URL: "u", Format: media.FormatVideoAudio}), " ")
	require.NotContains(t, joined, "--ffmpeg-location")

	// A configured path that does not resolve is also skipped.
	r = NewRunner("yt-dlp", "/nonexistent/ffmpeg")
	joined = strings.Join(r.StreamArgs(media.DownloadRecord{URL: "u", Format: media.FormatVideoAudio}), " ")
	require.NotContains(t, joined, "--ffmpeg-location")
}

func TestProbeMissingBinary(t *testing.T) {
	r := NewRunner("/nonexistent/yt-dlp-binary", "")

	err := r.Probe()

	var toolErr *media.ToolMissingError

	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, "/nonexistent/yt-dlp-binary", toolErr.Binary)
}

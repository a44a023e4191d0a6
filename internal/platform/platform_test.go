package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Platform
	}{
		{name: "youtube watch URL", url: "https://www.youtube.com/watch?v=abc123", want: YouTube},
		{name: "youtube short link", url: "https://youtu.be/abc123", want: YouTube},
		{name: "vimeo", url: "https://vimeo.com/123456789", want: Vimeo},
		{name: "twitter", url: "https://twitter.com/user/status/1", want: Twitter},
		{name: "x dot com", url: "https://x.com/user/status/1", want: Twitter},
		{name: "instagram reel", url: "https://www.instagram.com/reel/xyz/", want: Instagram},
		{name: "tiktok", url: "https://www.tiktok.com/@user/video/1", want: TikTok},
		{name: "threads", url: "https://www.threads.net/@user/post/1", want: Threads},
		{name: "unknown host", url: "https://example.com/video.mp4", want: Other},
		{name: "case insensitive", url: "https://WWW.YOUTUBE.COM/watch?v=abc", want: YouTube},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Detect(tt.url))
		})
	}
}

func TestAllowsPlaylist(t *testing.T) {
	require.True(t, Instagram.AllowsPlaylist())
	require.False(t, YouTube.AllowsPlaylist())
	require.False(t, Vimeo.AllowsPlaylist())
	require.False(t, Other.AllowsPlaylist())
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "vimeo share URL with hash",
			url:  "https://vimeo.com/123456789/abcdef1234",
			want: "https://player.vimeo.com/video/123456789?h=abcdef1234",
		},
		{
			name: "plain vimeo URL",
			url:  "https://vimeo.com/123456789",
			want: "https://player.vimeo.com/video/123456789",
		},
		{
			name: "vimeo player URL passes through",
			url:  "https://player.vimeo.com/video/123456789",
			want: "https://player.vimeo.com/video/123456789",
		},
		{
			name: "non-vimeo URL untouched",
			url:  "https://www.youtube.com/watch?v=abc123",
			want: "https://www.youtube.com/watch?v=abc123",
		},
		{
			name: "vimeo URL with trailing query untouched",
			url:  "https://vimeo.com/123456789?share=copy",
			want: "https://vimeo.com/123456789?share=copy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanonicalURL(tt.url))
		})
	}
}

// Package platform classifies media URLs into the platform tags that drive
// format-selection and playlist-suppression policy.
package platform

import (
	"regexp"
	"strings"
)

// Platform is a tag for a recognized media host.
type Platform string

const (
	YouTube   Platform = "youtube"
	Vimeo     Platform = "vimeo"
	Twitter   Platform = "twitter"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	Threads   Platform = "threads"
	Other     Platform = "other"
)

// Detect maps a URL to its platform tag. Unrecognized hosts map to Other.
func Detect(rawURL string) Platform {
	u := strings.ToLower(rawURL)

	switch {
	case strings.Contains(u, "vimeo.com"):
		return Vimeo
	case strings.Contains(u, "youtube.com"), strings.Contains(u, "youtu.be"):
		return YouTube
	case strings.Contains(u, "twitter.com"), strings.Contains(u, "x.com"):
		return Twitter
	case strings.Contains(u, "instagram.com"):
		return Instagram
	case strings.Contains(u, "tiktok.com"):
		return TikTok
	case strings.Contains(u, "threads.net"):
		return Threads
	}

	return Other
}

// AllowsPlaylist reports whether the platform's content model is inherently
// multi-item, in which case playlist suppression is bypassed (carousels).
func (p Platform) AllowsPlaylist() bool {
	return p == Instagram
}

var (
	vimeoShareRe  = regexp.MustCompile(`vimeo\.com/(\d+)/([a-zA-Z0-9]+)`)
	vimeoSimpleRe = regexp.MustCompile(`vimeo\.com/(\d+)$`)
)

// CanonicalURL rewrites platform-specific share URLs into their canonical
// player URLs. URLs that match no known pattern pass through unchanged.
func CanonicalURL(rawURL string) string {
	if Detect(rawURL) != Vimeo {
		return rawURL
	}

	if m := vimeoShareRe.FindStringSubmatch(rawURL); m != nil {
		return "https://player.vimeo.com/video/" + m[1] + "?h=" + m[2]
	}

	if m := vimeoSimpleRe.FindStringSubmatch(rawURL); m != nil {
		return "https://player.vimeo.com/video/" + m[1]
	}

	return rawURL
}

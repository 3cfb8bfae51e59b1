// Package rendition defines the resolutions hlsvault can encode and the keys that
// identify one encoded rendition of one source file in the cache.
package rendition

import "strings"

// Resolution is one of the supported output qualities.
type Resolution struct {
	// Label is the canonical name used in folder names ("720p", "1080p", "2160p").
	Label string
	// Height is the vertical scale target passed to ffmpeg.
	Height int
	// Bandwidth is the BANDWIDTH estimate written to the master playlist.
	Bandwidth int
	// Display is the RESOLUTION attribute written to the master playlist.
	Display string
}

var (
	R720p  = Resolution{Label: "720p", Height: 720, Bandwidth: 10000000, Display: "1280x720"}
	R1080p = Resolution{Label: "1080p", Height: 1080, Bandwidth: 10000000, Display: "1920x1080"}
	// Only 720p advertises its own RESOLUTION; everything else is written as 1920x1080.
	R2160p = Resolution{Label: "2160p", Height: 2160, Bandwidth: 20000000, Display: "1920x1080"}
)

// Default is used for empty or unknown labels.
var Default = R1080p

// ParseResolution maps a requested label to a Resolution. Unknown labels fall back to Default.
func ParseResolution(label string) Resolution {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "720p":
		return R720p
	case "1080p":
		return R1080p
	case "4k", "2160p":
		return R2160p
	default:
		return Default
	}
}

// Resolutions lists every supported resolution, smallest first.
func Resolutions() []Resolution {
	return []Resolution{R720p, R1080p, R2160p}
}

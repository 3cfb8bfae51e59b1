// Package subtitle finds sidecar WebVTT files next to a source video and
// patches their timing header for HLS playback.
package subtitle

import (
	"os"
	"path/filepath"
	"strings"
)

// Track is one subtitle file discovered for a video.
type Track struct {
	Lang    string
	Name    string
	Path    string
	Default bool
}

// Language is a language code with its display name.
type Language struct {
	Code string `toml:"code"`
	Name string `toml:"name"`
}

// Languages configures discovery: Primary labels the same-name .vtt,
// Supported lists the <base>.<code>.vtt files looked for, in order.
type Languages struct {
	Primary   Language
	Supported []Language
}

// DefaultLanguages is Korean for the plain sidecar plus English, Japanese and Chinese.
var DefaultLanguages = Languages{
	Primary: Language{Code: "ko", Name: "Korean"},
	Supported: []Language{
		{Code: "en", Name: "English"},
		{Code: "ja", Name: "Japanese"},
		{Code: "zh", Name: "Chinese"},
	},
}

// Discover returns the subtitle tracks for videoPath. The same-name .vtt comes
// first and is the only default track. Missing files are simply skipped, so an
// empty result is normal.
func Discover(videoPath string, langs Languages) []Track {
	dir := filepath.Dir(videoPath)
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))

	var tracks []Track
	if p := filepath.Join(dir, base+".vtt"); isFile(p) {
		tracks = append(tracks, Track{Lang: langs.Primary.Code, Name: langs.Primary.Name, Path: p, Default: true})
	}
	for _, l := range langs.Supported {
		if p := filepath.Join(dir, base+"."+l.Code+".vtt"); isFile(p) {
			tracks = append(tracks, Track{Lang: l.Code, Name: l.Name, Path: p})
		}
	}
	return tracks
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

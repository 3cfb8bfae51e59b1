// Package hls writes and inspects the playlists of a cached rendition.
package hls

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// File names inside a rendition directory.
const (
	MasterName     = "master.m3u8"
	VideoName      = "video.m3u8"
	SegmentPattern = "segment_%03d.ts"
	FirstSegment   = "segment_000.ts"
)

const (
	tagHeader       = "#EXTM3U"
	tagStreamInf    = "#EXT-X-STREAM-INF"
	tagEndList      = "#EXT-X-ENDLIST"
	tagPlaylistType = "#EXT-X-PLAYLIST-TYPE"

	// SubtitleGroup is the GROUP-ID shared by every subtitle rendition.
	SubtitleGroup = "subs"
)

// SubtitleVTTName is the copied subtitle file for lang, e.g. "subs_ko.vtt".
func SubtitleVTTName(lang string) string {
	return "subs_" + lang + ".vtt"
}

// SubtitlePlaylistName is the single-entry playlist for lang, e.g. "subs_ko.m3u8".
func SubtitlePlaylistName(lang string) string {
	return "subs_" + lang + ".m3u8"
}

// SubtitlePlaylist returns a one-segment VOD playlist covering the whole
// video with the given VTT file.
func SubtitlePlaylist(duration float64, vttName string) string {
	var b strings.Builder
	b.WriteString(tagHeader + "\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int64(math.Ceil(duration)))
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString(tagPlaylistType + ":VOD\n")
	fmt.Fprintf(&b, "#EXTINF:%s,\n", strconv.FormatFloat(duration, 'f', -1, 64))
	b.WriteString(vttName + "\n")
	b.WriteString(tagEndList + "\n")
	return b.String()
}

// SubtitleMedia is one EXT-X-MEDIA entry of the master playlist.
type SubtitleMedia struct {
	Name     string
	Language string
	Default  bool
	URI      string
}

// MasterOptions describes the multivariant playlist written before an encode.
type MasterOptions struct {
	Bandwidth  int
	Resolution string
	VideoURI   string
	Subtitles  []SubtitleMedia
}

// MasterPlaylist renders a multivariant playlist with a single video variant.
// The SUBTITLES attribute is only present when there is at least one track.
func MasterPlaylist(opts MasterOptions) string {
	var b strings.Builder
	b.WriteString(tagHeader + "\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, s := range opts.Subtitles {
		def := "NO"
		if s.Default {
			def = "YES"
		}
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=%q,NAME=%q,LANGUAGE=%q,DEFAULT=%s,AUTOSELECT=YES,URI=%q\n",
			SubtitleGroup, s.Name, s.Language, def, s.URI)
	}
	fmt.Fprintf(&b, "%s:BANDWIDTH=%d,RESOLUTION=%s", tagStreamInf, opts.Bandwidth, opts.Resolution)
	if len(opts.Subtitles) > 0 {
		fmt.Fprintf(&b, ",SUBTITLES=%q", SubtitleGroup)
	}
	b.WriteString("\n" + opts.VideoURI + "\n")
	return b.String()
}

// IsMultivariant reports whether content is a master playlist with variants.
func IsMultivariant(content string) bool {
	return strings.Contains(content, tagStreamInf)
}

// HasEndList reports whether a media playlist has been finalised.
func HasEndList(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == tagEndList {
			return true
		}
	}
	return false
}

// VariantURI returns the URI following the first EXT-X-STREAM-INF line, or ""
// when content has no variant.
func VariantURI(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), tagStreamInf) {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" || strings.HasPrefix(next, "#") {
				continue
			}
			return next
		}
	}
	return ""
}

// VariantPath maps a variant URI back to a file in dir. Only the last path
// element is used since every rendition file lives directly in dir.
func VariantPath(dir, uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return filepath.Join(dir, path.Base(uri))
}

// IsComplete reports whether the rendition in dir finished encoding: a flat
// master must be finalised, a multivariant master needs its video playlist
// present and finalised.
func IsComplete(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, MasterName))
	if err != nil {
		return false
	}
	content := string(data)
	if !IsMultivariant(content) {
		return HasEndList(content)
	}

	uri := VariantURI(content)
	if uri == "" {
		return false
	}
	media, err := os.ReadFile(VariantPath(dir, uri))
	if err != nil {
		return false
	}
	return HasEndList(string(media))
}

// RewriteForRemux makes a media playlist usable as a local ffmpeg input:
// every occurrence of urlPrefix is removed so segment names resolve next to
// the playlist, and an EVENT playlist is declared VOD.
func RewriteForRemux(content, urlPrefix string) string {
	if urlPrefix != "" {
		if !strings.HasPrefix(urlPrefix, "/") {
			content = strings.ReplaceAll(content, "/"+urlPrefix, "")
		}
		content = strings.ReplaceAll(content, urlPrefix, "")
	}
	return strings.ReplaceAll(content, tagPlaylistType+":EVENT", tagPlaylistType+":VOD")
}

// WriteFile writes data to path through a temporary file and a rename, so
// readers never observe a half-written playlist.
func WriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Package transcoder runs ffmpeg to build cached HLS renditions, one job per
// rendition, and keeps track of the jobs that are still running.
package transcoder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/progress"
	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
)

// DefaultSegmentSeconds is the HLS target segment length.
const DefaultSegmentSeconds = 10

// Spec describes one encode.
type Spec struct {
	Key    rendition.Key
	Source string
	// Dir is the rendition directory. Runner.Start fills it from the cache when empty.
	Dir string
	// URLPrefix is the client-visible prefix of every segment and playlist,
	// e.g. "hls/movie_1080p/".
	URLPrefix      string
	Encoder        encoder.Kind
	Quality        encoder.Quality
	SegmentSeconds int
	Tracks         []subtitle.Track

	// Progress, when set, receives encoded seconds.
	Progress progress.Reporter
}

// HasSubtitles reports whether the encode runs in subtitle mode, where the
// master playlist is written up front and ffmpeg produces video.m3u8.
func (s Spec) HasSubtitles() bool {
	return len(s.Tracks) > 0
}

// OutputPlaylist is the playlist ffmpeg writes.
func (s Spec) OutputPlaylist() string {
	if s.HasSubtitles() {
		return filepath.Join(s.Dir, hls.VideoName)
	}
	return filepath.Join(s.Dir, hls.MasterName)
}

// BuildArgs returns the ffmpeg arguments for spec.
func BuildArgs(s Spec) []string {
	seg := s.SegmentSeconds
	if seg <= 0 {
		seg = DefaultSegmentSeconds
	}

	args := []string{
		"-hide_banner", "-y",
		"-i", s.Source,
		"-vf", fmt.Sprintf("scale=-2:%d", s.Key.Resolution.Height),
		"-c:v", s.Encoder.Codec(),
	}
	args = append(args, s.Encoder.QualityFlags(s.Quality)...)
	args = append(args,
		"-c:a", "aac",
		"-hls_time", strconv.Itoa(seg),
		"-hls_playlist_type", "event",
		"-hls_segment_filename", filepath.Join(s.Dir, hls.SegmentPattern),
	)

	if s.HasSubtitles() {
		// Subtitles are served from the sidecar playlists, not muxed.
		return append(args, "-sn", "-hls_base_url", "", s.OutputPlaylist())
	}
	return append(args, "-hls_base_url", s.URLPrefix, s.OutputPlaylist())
}

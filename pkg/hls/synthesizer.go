package hls

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/probe"
	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
)

// FallbackDuration is used for subtitle playlists when the source cannot be probed.
const FallbackDuration = 7200.0

// Plan is the input of one playlist synthesis.
type Plan struct {
	// Source is the video being encoded; its duration sizes the subtitle playlists.
	Source string
	// Dir is the rendition directory.
	Dir string
	// URLPrefix is prepended to every URI in the master, e.g. "hls/show_1080p/".
	URLPrefix  string
	Resolution rendition.Resolution
	Tracks     []subtitle.Track
}

// Synthesizer writes the master and subtitle playlists of a rendition before
// the encoder starts producing video.m3u8.
type Synthesizer struct {
	prober probe.Prober
	log    logger.Logger
}

// NewSynthesizer creates a Synthesizer. A nil log discards output.
func NewSynthesizer(prober probe.Prober, log logger.Logger) *Synthesizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synthesizer{prober: prober, log: log}
}

// Prepare copies each subtitle track into the rendition, writes its playlist
// and finally writes master.m3u8. A track that cannot be copied is logged and
// left out of the master; only a failure to write the master is returned.
func (s *Synthesizer) Prepare(ctx context.Context, plan Plan) error {
	duration := s.duration(ctx, plan.Source)

	media := make([]SubtitleMedia, 0, len(plan.Tracks))
	for _, t := range plan.Tracks {
		if err := s.writeTrack(plan.Dir, t, duration); err != nil {
			s.log.Warn("Skipping subtitle track", "hls", map[string]interface{}{
				"lang":  t.Lang,
				"path":  t.Path,
				"error": err.Error(),
			})
			continue
		}
		media = append(media, SubtitleMedia{
			Name:     t.Name,
			Language: t.Lang,
			Default:  t.Default,
			URI:      plan.URLPrefix + SubtitlePlaylistName(t.Lang),
		})
	}

	master := MasterPlaylist(MasterOptions{
		Bandwidth:  plan.Resolution.Bandwidth,
		Resolution: plan.Resolution.Display,
		VideoURI:   plan.URLPrefix + VideoName,
		Subtitles:  media,
	})
	masterPath := filepath.Join(plan.Dir, MasterName)
	if err := WriteFile(masterPath, []byte(master)); err != nil {
		return errors.Wrap(err, errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistWrite), errors.ErrPlaylistWrite)
	}

	s.log.Info("Master playlist written", "hls", map[string]interface{}{
		"path":      masterPath,
		"subtitles": len(media),
		"duration":  duration,
	})
	return nil
}

func (s *Synthesizer) duration(ctx context.Context, source string) float64 {
	if s.prober == nil {
		return FallbackDuration
	}
	d, err := s.prober.Duration(ctx, source)
	if err != nil || d <= 0 {
		fields := map[string]interface{}{"source": source, "fallback": FallbackDuration}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.log.Warn("Could not probe duration", "hls", fields)
		return FallbackDuration
	}
	return d
}

func (s *Synthesizer) writeTrack(dir string, t subtitle.Track, duration float64) error {
	vttName := SubtitleVTTName(t.Lang)
	if err := copyFile(t.Path, filepath.Join(dir, vttName)); err != nil {
		return err
	}
	playlist := SubtitlePlaylist(duration, vttName)
	return WriteFile(filepath.Join(dir, SubtitlePlaylistName(t.Lang)), []byte(playlist))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

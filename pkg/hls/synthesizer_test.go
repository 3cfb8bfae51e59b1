package hls

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
)

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(context.Context, string) (float64, error) { return f.duration, f.err }
func (f fakeProber) StartTime(context.Context, string) (float64, error) { return 0, f.err }

func TestSynthesizerPrepare(t *testing.T) {
	src := t.TempDir()
	dir := t.TempDir()
	ko := filepath.Join(src, "movie.vtt")
	require.NoError(t, os.WriteFile(ko, []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n"), 0o644))

	s := NewSynthesizer(fakeProber{duration: 95.2}, nil)
	err := s.Prepare(context.Background(), Plan{
		Source:     filepath.Join(src, "movie.mp4"),
		Dir:        dir,
		URLPrefix:  "hls/movie_720p/",
		Resolution: rendition.R720p,
		Tracks: []subtitle.Track{
			{Lang: "ko", Name: "Korean", Path: ko, Default: true},
			{Lang: "ja", Name: "Japanese", Path: filepath.Join(src, "movie.ja.vtt")},
		},
	})
	require.NoError(t, err)

	vtt, err := os.ReadFile(filepath.Join(dir, "subs_ko.vtt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(vtt), "WEBVTT"))

	subs, err := os.ReadFile(filepath.Join(dir, "subs_ko.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(subs), "#EXT-X-TARGETDURATION:96")
	assert.Contains(t, string(subs), "#EXTINF:95.2,")

	// the missing Japanese file is skipped, not fatal
	_, err = os.Stat(filepath.Join(dir, "subs_ja.m3u8"))
	assert.True(t, os.IsNotExist(err))

	master, err := os.ReadFile(filepath.Join(dir, MasterName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(master), "#EXT-X-MEDIA:"))
	assert.Contains(t, string(master), `URI="hls/movie_720p/subs_ko.m3u8"`)
	assert.Contains(t, string(master), "RESOLUTION=1280x720")
	assert.Equal(t, "hls/movie_720p/video.m3u8", VariantURI(string(master)))
	assert.False(t, IsComplete(dir))
}

func TestSynthesizerFallbackDuration(t *testing.T) {
	src := t.TempDir()
	dir := t.TempDir()
	vtt := filepath.Join(src, "a.vtt")
	require.NoError(t, os.WriteFile(vtt, []byte("WEBVTT\n"), 0o644))

	s := NewSynthesizer(fakeProber{err: stderrors.New("no ffprobe")}, nil)
	require.NoError(t, s.Prepare(context.Background(), Plan{
		Source:     filepath.Join(src, "a.mp4"),
		Dir:        dir,
		URLPrefix:  "hls/a_2160p/",
		Resolution: rendition.R2160p,
		Tracks:     []subtitle.Track{{Lang: "ko", Name: "Korean", Path: vtt, Default: true}},
	}))

	subs, err := os.ReadFile(filepath.Join(dir, "subs_ko.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(subs), "#EXT-X-TARGETDURATION:7200")

	master, err := os.ReadFile(filepath.Join(dir, MasterName))
	require.NoError(t, err)
	assert.Contains(t, string(master), "BANDWIDTH=20000000")
}

func TestSynthesizerMasterWriteFailure(t *testing.T) {
	s := NewSynthesizer(fakeProber{duration: 10}, nil)
	err := s.Prepare(context.Background(), Plan{
		Dir:        filepath.Join(t.TempDir(), "does", "not", "exist"),
		Resolution: rendition.R1080p,
	})
	assert.Error(t, err)
}

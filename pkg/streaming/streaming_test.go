package streaming

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/transcoder"
)

type fakeProber struct{}

func (fakeProber) Duration(context.Context, string) (float64, error)  { return 30, nil }
func (fakeProber) StartTime(context.Context, string) (float64, error) { return 1.4, nil }

const prelude = `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
dir=$(dirname "$out")
echo "run" >> "$dir/../invocations"
`

const okScript = prelude + `
sleep 0.3
printf 'ts' > "$dir/segment_000.ts"
printf '#EXTM3U\n#EXTINF:10,\nsegment_000.ts\n#EXT-X-ENDLIST\n' > "$out"
`

const brokenScript = prelude + `
echo "moov atom not found" >&2
exit 1
`

const stuckScript = prelude + `
sleep 30
`

type env struct {
	media   string
	cache   *cache.Cache
	service *Service
}

func newEnv(t *testing.T, script string, opts Options) env {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoders need /bin/sh")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	media := filepath.Join(t.TempDir(), "uploads")
	require.NoError(t, os.MkdirAll(media, 0o755))
	c := cache.New(t.TempDir())

	runner := transcoder.NewRunnerWithDeps(transcoder.Options{
		FFmpegBinary:    bin,
		MonitorInterval: 10 * time.Millisecond,
	}, c, fakeProber{}, logger.Nop())

	opts.URLPrefix = "hls"
	opts.Encoder = encoder.SoftwareX264
	opts.Quality = encoder.DefaultQuality
	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	svc := NewService(opts, NewRootResolver(media), c, runner, nil, logger.Nop())
	t.Cleanup(svc.Close)
	return env{media: media, cache: c, service: svc}
}

func (e env) addSource(t *testing.T, rel string) string {
	t.Helper()
	path := filepath.Join(e.media, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return path
}

func (e env) invocations(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.cache.Root(), "invocations"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestRootResolver(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	r := NewRootResolver(root)

	tests := []struct {
		name    string
		ref     string
		rel     string
		errCode int
	}{
		{"relative", "movie.mp4", "movie.mp4", 0},
		{"nested", "series/s01/e01.mkv", "series/s01/e01.mkv", 0},
		{"root name prefix", "uploads/series/e01.mkv", "series/e01.mkv", 0},
		{"absolute under root", filepath.Join(root, "a", "b.mp4"), "a/b.mp4", 0},
		{"backslashes", `series\e01.mkv`, "series/e01.mkv", 0},
		{"empty", "  ", "", errors.ErrMissingFileParam},
		{"traversal", "../secret.mp4", "", errors.ErrInvalidSourcePath},
		{"hidden traversal", "series/../../secret.mp4", "", errors.ErrInvalidSourcePath},
		{"absolute outside", "/etc/passwd", "", errors.ErrInvalidSourcePath},
		{"root itself", "uploads", "", errors.ErrInvalidSourcePath},
		{"dot", ".", "", errors.ErrInvalidSourcePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := r.Resolve(tt.ref)
			if tt.errCode != 0 {
				require.Error(t, err)
				se, ok := errors.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.errCode, se.Code)
				assert.Equal(t, errors.ValidationError, se.Type)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rel, src.Rel)
			assert.True(t, src.Relative())
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.rel)), src.Path)
		})
	}
}

func TestTargetKeys(t *testing.T) {
	e := newEnv(t, okScript, Options{})

	a, err := e.service.Target("a/movie.mp4", "720p")
	require.NoError(t, err)
	b, err := e.service.Target("b/movie.mp4", "720p")
	require.NoError(t, err)
	assert.Equal(t, "a/movie_720p", a.Key.Folder())
	assert.NotEqual(t, a.Key.Folder(), b.Key.Folder())

	d, err := e.service.Target("movie.mp4", "bogus")
	require.NoError(t, err)
	assert.Equal(t, rendition.R1080p, d.Key.Resolution)
}

func TestStreamEncodesThenServesFromCache(t *testing.T) {
	e := newEnv(t, okScript, Options{})
	source := e.addSource(t, "movie.mp4")

	st, err := e.service.Stream(context.Background(), "movie.mp4", "720p")
	require.NoError(t, err)
	assert.False(t, st.Cached)
	require.NotNil(t, st.Job)
	assert.Contains(t, string(st.Playlist), "segment_000.ts")

	require.NoError(t, st.Job.Wait(context.Background()))
	assert.Equal(t, transcoder.Completed, st.Job.State())
	assert.NoFileExists(t, source)
	assert.True(t, e.cache.Lookup(st.Key))

	again, err := e.service.Stream(context.Background(), "movie.mp4", "720p")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Nil(t, again.Job)
	assert.Equal(t, 1, e.invocations(t))
}

func TestConcurrentRequestsShareOneJob(t *testing.T) {
	e := newEnv(t, okScript, Options{})
	e.addSource(t, "movie.mp4")

	const clients = 6
	var wg sync.WaitGroup
	jobs := make([]*transcoder.Job, clients)
	errs := make([]error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := e.service.Stream(context.Background(), "movie.mp4", "1080p")
			errs[i] = err
			if st != nil {
				jobs[i] = st.Job
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
	}
	var first *transcoder.Job
	for _, j := range jobs {
		if j == nil {
			continue
		}
		if first == nil {
			first = j
		}
		assert.Same(t, first, j)
	}
	assert.Equal(t, 1, e.invocations(t))
}

func TestStreamWithSubtitlesServesMultivariantMaster(t *testing.T) {
	e := newEnv(t, okScript, Options{})
	e.addSource(t, "show/ep1.mp4")
	require.NoError(t, os.WriteFile(filepath.Join(e.media, "show", "ep1.vtt"), []byte("WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nhi\n"), 0o644))

	st, err := e.service.Stream(context.Background(), "show/ep1.mp4", "720p")
	require.NoError(t, err)
	body := string(st.Playlist)
	assert.True(t, hls.IsMultivariant(body))
	assert.Contains(t, body, `GROUP-ID="subs"`)
	assert.Contains(t, body, "hls/show/ep1_720p/video.m3u8")

	require.NoError(t, st.Job.Wait(context.Background()))
	vtt, err := os.ReadFile(filepath.Join(e.cache.Dir(st.Key), "subs_ko.vtt"))
	require.NoError(t, err)
	assert.Contains(t, string(vtt), "X-TIMESTAMP-MAP=MPEGTS:126000,LOCAL:00:00:00.000")
}

func TestStreamErrors(t *testing.T) {
	e := newEnv(t, okScript, Options{})

	_, err := e.service.Stream(context.Background(), "", "720p")
	assert.True(t, errors.IsType(err, errors.ValidationError))

	_, err = e.service.Stream(context.Background(), "../x.mp4", "720p")
	assert.True(t, errors.IsType(err, errors.ValidationError))

	_, err = e.service.Stream(context.Background(), "missing.mp4", "720p")
	assert.True(t, errors.IsType(err, errors.NotFoundError))
	assert.Equal(t, 0, e.invocations(t))
}

func TestStreamEncoderFailure(t *testing.T) {
	e := newEnv(t, brokenScript, Options{})
	source := e.addSource(t, "broken.mkv")

	_, err := e.service.Stream(context.Background(), "broken.mkv", "720p")
	require.Error(t, err)
	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrEncoderExit, se.Code)
	assert.Contains(t, se.Details, "moov atom not found")
	assert.FileExists(t, source)

	_, err = e.service.Stream(context.Background(), "broken.mkv", "720p")
	require.Error(t, err)
	assert.Equal(t, 2, e.invocations(t))
}

func TestClientDisconnectCancelsJob(t *testing.T) {
	e := newEnv(t, stuckScript, Options{})
	source := e.addSource(t, "movie.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := e.service.Stream(ctx, "movie.mp4", "720p")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	target, err := e.service.Target("movie.mp4", "720p")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := e.service.Registry().Get(target.Key)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, source)
}

func TestMasterWaitTimeoutLeavesJobRunning(t *testing.T) {
	e := newEnv(t, stuckScript, Options{MasterWait: 150 * time.Millisecond})
	e.addSource(t, "movie.mp4")

	_, err := e.service.Stream(context.Background(), "movie.mp4", "720p")
	require.Error(t, err)
	se, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrMasterTimeout, se.Code)
	assert.Equal(t, 503, errors.HTTPStatus(err))

	target, err := e.service.Target("movie.mp4", "720p")
	require.NoError(t, err)
	job, ok := e.service.Registry().Get(target.Key)
	require.True(t, ok)
	assert.False(t, job.State().Terminal())

	e.service.Close()
	require.Eventually(t, func() bool { return job.State() == transcoder.Cancelled }, 5*time.Second, 10*time.Millisecond)
}

func TestIdleJobsAreReaped(t *testing.T) {
	e := newEnv(t, stuckScript, Options{MasterWait: 100 * time.Millisecond, IdleTimeout: 50 * time.Millisecond})
	e.addSource(t, "movie.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.service.Run(ctx)

	_, err := e.service.Stream(context.Background(), "movie.mp4", "720p")
	require.Error(t, err)

	target, err := e.service.Target("movie.mp4", "720p")
	require.NoError(t, err)
	job, ok := e.service.Registry().Get(target.Key)
	require.True(t, ok)

	require.Eventually(t, func() bool { return job.State() == transcoder.Cancelled }, 5*time.Second, 20*time.Millisecond)
}

func TestTouchUnknownFolderIsHarmless(t *testing.T) {
	e := newEnv(t, okScript, Options{})
	assert.NotPanics(t, func() { e.service.Touch("nothing_720p") })
}

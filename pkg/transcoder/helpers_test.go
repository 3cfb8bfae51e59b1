package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// fakeProber returns fixed values without running ffprobe.
type fakeProber struct {
	duration  float64
	startTime float64
}

func (f fakeProber) Duration(context.Context, string) (float64, error)  { return f.duration, nil }
func (f fakeProber) StartTime(context.Context, string) (float64, error) { return f.startTime, nil }

// The fake encoders take the output playlist from the last argument, like ffmpeg.
const scriptPrelude = `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
dir=$(dirname "$out")
`

const succeedScript = scriptPrelude + `
echo "run" >> "$dir/../invocations"
printf 'ts' > "$dir/segment_000.ts"
echo "frame=  240 fps=60 time=00:00:10.00 bitrate=N/A speed=2x" >&2
printf '#EXTM3U\n#EXT-X-PLAYLIST-TYPE:EVENT\n#EXTINF:10,\nsegment_000.ts\n#EXT-X-ENDLIST\n' > "$out"
exit 0
`

const failScript = scriptPrelude + `
printf 'ts' > "$dir/segment_000.ts"
printf '#EXTM3U\n#EXT-X-PLAYLIST-TYPE:EVENT\n#EXTINF:10,\nsegment_000.ts\n' > "$out"
echo "Error while decoding stream #0:0: Invalid data found when processing input" >&2
exit 1
`

const slowScript = scriptPrelude + `
echo "run" >> "$dir/../invocations"
printf 'ts' > "$dir/segment_000.ts"
printf '#EXTM3U\n#EXT-X-PLAYLIST-TYPE:EVENT\n' > "$out"
sleep 30
`

const delayedScript = scriptPrelude + `
echo "run" >> "$dir/../invocations"
sleep 1
printf 'ts' > "$dir/segment_000.ts"
printf '#EXTM3U\n#EXTINF:10,\nsegment_000.ts\n#EXT-X-ENDLIST\n' > "$out"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoders need /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

type fixture struct {
	media  string
	cache  *cache.Cache
	source string
	key    rendition.Key
}

func newFixture(t *testing.T, name string) fixture {
	t.Helper()
	media := t.TempDir()
	source := filepath.Join(media, name)
	require.NoError(t, os.WriteFile(source, []byte("not really a video"), 0o644))
	return fixture{
		media:  media,
		cache:  cache.New(t.TempDir()),
		source: source,
		key:    rendition.NewKey(name, true, rendition.R720p),
	}
}

func (f fixture) spec() Spec {
	return Spec{
		Key:       f.key,
		Source:    f.source,
		URLPrefix: f.key.URLPrefix("hls"),
		Encoder:   encoder.SoftwareX264,
		Quality:   encoder.DefaultQuality,
	}
}

func (f fixture) runner(binary string, opts Options) *Runner {
	opts.FFmpegBinary = binary
	if opts.MonitorInterval == 0 {
		opts.MonitorInterval = 10 * time.Millisecond
	}
	return NewRunnerWithDeps(opts, f.cache, fakeProber{duration: 10, startTime: 1.4}, logger.Nop())
}

func invocations(t *testing.T, c *cache.Cache, key rendition.Key) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(c.Dir(key)), "invocations"))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

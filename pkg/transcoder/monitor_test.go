package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/logger"
)

func writeVTT(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMonitorPatchesAfterFirstSegment(t *testing.T) {
	dir := t.TempDir()
	ko := writeVTT(t, dir, "subs_ko.vtt", "WEBVTT\n\ncue\n")
	ja := writeVTT(t, dir, "subs_ja.vtt", "WEBVTT\n\ncue\n")
	bad := writeVTT(t, dir, "subs_zh.vtt", "garbage\n")

	m := NewMonitor(dir, fakeProber{startTime: 10.5}, logger.Nop(), 5*time.Millisecond, 1000)
	assert.False(t, m.attempt(context.Background()))

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		m.Run(context.Background(), done)
		close(finished)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, hls.FirstSegment), []byte("ts"), 0o644))
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after patching")
	}

	for _, p := range []string{ko, ja} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		lines := strings.Split(string(data), "\n")
		assert.Equal(t, "X-TIMESTAMP-MAP=MPEGTS:945000,LOCAL:00:00:00.000", lines[1])
	}
	data, err := os.ReadFile(bad)
	require.NoError(t, err)
	assert.Equal(t, "garbage\n", string(data))
}

func TestMonitorFinalAttemptOnDone(t *testing.T) {
	dir := t.TempDir()
	ko := writeVTT(t, dir, "subs_ko.vtt", "WEBVTT\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, hls.FirstSegment), []byte("ts"), 0o644))

	m := NewMonitor(dir, fakeProber{startTime: 0}, logger.Nop(), time.Hour, 0)
	done := make(chan struct{})
	close(done)
	m.Run(context.Background(), done)

	data, err := os.ReadFile(ko)
	require.NoError(t, err)
	assert.Contains(t, string(data), "MPEGTS:0,")
}

func TestMonitorStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ko := writeVTT(t, dir, "subs_ko.vtt", "WEBVTT\n")

	ctx, cancel := context.WithCancel(context.Background())
	m := NewMonitor(dir, fakeProber{}, logger.Nop(), time.Millisecond, 0)
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx, make(chan struct{}))
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor ignored cancellation")
	}
	data, err := os.ReadFile(ko)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n", string(data))
}

func TestMonitorGivesUp(t *testing.T) {
	m := NewMonitor(t.TempDir(), fakeProber{}, logger.Nop(), time.Millisecond, 3)
	start := time.Now()
	m.Run(context.Background(), make(chan struct{}))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMonitorRetriesUnreadableSubtitle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hls.FirstSegment), []byte("ts"), 0o644))
	// A directory in place of the file makes the read fail until it is replaced.
	en := filepath.Join(dir, "subs_en.vtt")
	require.NoError(t, os.Mkdir(en, 0o755))

	m := NewMonitor(dir, fakeProber{startTime: 1.4}, logger.Nop(), time.Hour, 0)
	assert.False(t, m.attempt(context.Background()))

	require.NoError(t, os.Remove(en))
	writeVTT(t, dir, "subs_en.vtt", "WEBVTT\n\ncue\n")
	assert.True(t, m.attempt(context.Background()))

	data, err := os.ReadFile(en)
	require.NoError(t, err)
	assert.Contains(t, string(data), "X-TIMESTAMP-MAP=MPEGTS:126000,")
}

func TestMonitorDoesNotRetryNonVTT(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, hls.FirstSegment), []byte("ts"), 0o644))
	writeVTT(t, dir, "subs_zh.vtt", "garbage\n")

	m := NewMonitor(dir, fakeProber{}, logger.Nop(), time.Hour, 0)
	assert.True(t, m.attempt(context.Background()))
}

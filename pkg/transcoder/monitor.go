package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/metrics"
	"github.com/heyjunin/hlsvault/pkg/probe"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
)

const (
	DefaultMonitorInterval = time.Second
	DefaultMonitorAttempts = 300
)

// Monitor waits for the first segment of an encode and stamps its start PTS
// into every subtitle file of the rendition, so cues line up with video that
// does not start at zero.
type Monitor struct {
	dir      string
	prober   probe.Prober
	log      logger.Logger
	interval time.Duration
	attempts int

	patched map[string]bool
	pts     int64
	havePTS bool
}

// NewMonitor creates a Monitor for the rendition in dir. Zero interval or
// attempts select the defaults.
func NewMonitor(dir string, prober probe.Prober, log logger.Logger, interval time.Duration, attempts int) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	if attempts <= 0 {
		attempts = DefaultMonitorAttempts
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		dir:      dir,
		prober:   prober,
		log:      log,
		interval: interval,
		attempts: attempts,
		patched:  make(map[string]bool),
	}
}

// Run polls until every subtitle is patched, ctx ends, done is closed (after
// one last try) or the attempt budget runs out.
func (m *Monitor) Run(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for i := 0; i < m.attempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-done:
			m.attempt(ctx)
			return
		case <-ticker.C:
			if m.attempt(ctx) {
				return
			}
		}
	}
	m.log.Warn("Gave up waiting for first segment", "pts", map[string]interface{}{
		"dir":      m.dir,
		"attempts": m.attempts,
	})
}

// attempt returns true once the PTS is known and every subtitle was patched
// or rejected as not WebVTT. Read and write failures are retried.
func (m *Monitor) attempt(ctx context.Context) bool {
	segment := filepath.Join(m.dir, hls.FirstSegment)
	if _, err := os.Stat(segment); err != nil {
		return false
	}

	if !m.havePTS {
		start, err := m.prober.StartTime(ctx, segment)
		if err != nil {
			m.log.Warn("Could not read first segment start time", "pts", map[string]interface{}{
				"segment": segment,
				"error":   err.Error(),
			})
			return false
		}
		m.pts = subtitle.PTSFromSeconds(start)
		m.havePTS = true
		m.log.Debug("First segment start time", "pts", map[string]interface{}{
			"segment":    segment,
			"start_time": start,
			"pts":        m.pts,
		})
	}

	files, err := filepath.Glob(filepath.Join(m.dir, "subs_*.vtt"))
	if err != nil {
		return true
	}
	complete := true
	for _, f := range files {
		if m.patched[f] {
			continue
		}

		changed, err := subtitle.PatchFile(f, m.pts)
		if err != nil {
			metrics.SubtitlePatchesTotal.WithLabelValues("failed").Inc()
			m.log.Warn("Failed to patch subtitle", "pts", map[string]interface{}{
				"file":  f,
				"error": err.Error(),
			})
			if errors.Is(err, subtitle.ErrNotVTT) {
				m.patched[f] = true
			} else {
				complete = false
			}
			continue
		}
		m.patched[f] = true
		if changed {
			metrics.SubtitlePatchesTotal.WithLabelValues("patched").Inc()
			m.log.Info("Subtitle timestamp map written", "pts", map[string]interface{}{
				"file": f,
				"pts":  m.pts,
			})
		}
	}
	return complete
}

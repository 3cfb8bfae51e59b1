// Package progress reports how far a long-running encode or download has got,
// on a console bar and as a stream of events.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/heyjunin/hlsvault/pkg/logger"
)

// Event is a single progress update.
type Event struct {
	// Status is one of "initialized", "started", "processing", "completed".
	Status string `json:"status"`
	// Percentage runs from 0 to 100.
	Percentage float64 `json:"percentage"`
	Current    int64   `json:"current"`
	Total      int64   `json:"total"`
	// Step is the phase, e.g. "encoding" or "downloading".
	Step string `json:"step"`
	// Stage describes the work inside the step, e.g. the rendition folder.
	Stage     string `json:"stage"`
	Timestamp string `json:"timestamp"`
}

// Reporter receives progress from encoders and downloads.
// Totals are in whatever unit the producer counts: seconds of media for
// encodes, bytes for downloads.
type Reporter interface {
	Start(total int64)
	Update(current int64, step, stage string)
	Complete()
	// Updates emits events until Complete is called, then closes.
	Updates() <-chan Event
}

type options struct {
	throttle    time.Duration
	filePath    string
	description string
	showBytes   bool
	writer      io.Writer
}

// Option configures a ConsoleReporter.
type Option func(*options)

// WithThrottle sets the minimum interval between events sent on Updates.
func WithThrottle(d time.Duration) Option {
	return func(o *options) { o.throttle = d }
}

// WithProgressFile writes the current event as JSON to path on every update.
func WithProgressFile(path string) Option {
	return func(o *options) { o.filePath = path }
}

// WithDescription sets the text in front of the console bar.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithShowBytes renders the bar counts as byte sizes.
func WithShowBytes(show bool) Option {
	return func(o *options) { o.showBytes = show }
}

// WithWriter sends the console bar to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// ConsoleReporter draws a progressbar on a terminal and mirrors each update
// on a buffered channel.
type ConsoleReporter struct {
	mu         sync.Mutex
	opts       options
	bar        *progressbar.ProgressBar
	event      Event
	updates    chan Event
	lastUpdate time.Time
	closed     bool
}

// NewReporter creates a ConsoleReporter.
func NewReporter(opts ...Option) *ConsoleReporter {
	o := options{description: "Encoding", writer: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	return &ConsoleReporter{
		opts:    o,
		event:   Event{Status: "initialized", Timestamp: now()},
		updates: make(chan Event, 16),
	}
}

// Start resets the reporter to zero out of total.
func (r *ConsoleReporter) Start(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.event = Event{Status: "started", Total: total, Timestamp: now()}

	barOpts := []progressbar.Option{
		progressbar.OptionSetDescription(r.opts.description),
		progressbar.OptionSetWriter(r.opts.writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if r.opts.showBytes {
		barOpts = append(barOpts, progressbar.OptionShowBytes(true))
	}
	r.bar = progressbar.NewOptions64(total, barOpts...)

	r.emit(true)
}

// Update moves the bar to current, capped at the total.
func (r *ConsoleReporter) Update(current int64, step, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	if r.event.Total > 0 && current > r.event.Total {
		current = r.event.Total
	}
	r.event.Current = current
	if r.event.Total > 0 {
		r.event.Percentage = float64(current) / float64(r.event.Total) * 100
	}
	r.event.Step = step
	r.event.Stage = stage
	r.event.Status = "processing"
	r.event.Timestamp = now()

	_ = r.bar.Set64(current)
	r.emit(false)
}

// Complete finishes the bar and closes Updates. Later calls are no-ops.
func (r *ConsoleReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
	r.event.Current = r.event.Total
	r.event.Percentage = 100
	r.event.Status = "completed"
	r.event.Timestamp = now()

	r.emit(true)
	r.closed = true
	close(r.updates)
}

// Updates implements Reporter.
func (r *ConsoleReporter) Updates() <-chan Event {
	return r.updates
}

// Snapshot returns the latest event.
func (r *ConsoleReporter) Snapshot() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.event
}

// emit must be called with r.mu held.
func (r *ConsoleReporter) emit(force bool) {
	t := time.Now()
	if force || t.Sub(r.lastUpdate) >= r.opts.throttle {
		r.lastUpdate = t
		select {
		case r.updates <- r.event:
		default:
		}
	}
	r.writeFile()
}

func (r *ConsoleReporter) writeFile() {
	if r.opts.filePath == "" {
		return
	}
	data, err := json.Marshal(r.event)
	if err != nil {
		return
	}
	if err := os.WriteFile(r.opts.filePath, data, 0o644); err != nil {
		logger.Warn("Failed to write progress file", "progress", map[string]interface{}{
			"path":  r.opts.filePath,
			"error": err.Error(),
		})
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

var timeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// ParseEncodedTime extracts the "time=HH:MM:SS.ss" position from an ffmpeg
// stats line, in seconds.
func ParseEncodedTime(line string) (float64, bool) {
	m := timeRegex.FindStringSubmatch(line)
	if len(m) < 4 {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(h*3600+mins*60) + sec, true
}

// FormatSeconds renders seconds as H:MM:SS for log lines.
func FormatSeconds(s float64) string {
	total := int64(s)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

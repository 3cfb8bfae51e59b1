package progress

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestReporter(opts ...Option) *ConsoleReporter {
	return NewReporter(append([]Option{WithWriter(&bytes.Buffer{})}, opts...)...)
}

func TestNewReporter(t *testing.T) {
	r := newTestReporter()

	ev := r.Snapshot()
	if ev.Status != "initialized" {
		t.Errorf("Initial status = %q, want %q", ev.Status, "initialized")
	}
	if ev.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
}

func TestReporterUpdate(t *testing.T) {
	r := newTestReporter()
	r.Start(200)
	r.Update(50, "encoding", "movie_1080p")

	ev := r.Snapshot()
	if ev.Current != 50 {
		t.Errorf("Current = %d, want 50", ev.Current)
	}
	if ev.Percentage != 25.0 {
		t.Errorf("Percentage = %f, want 25", ev.Percentage)
	}
	if ev.Step != "encoding" || ev.Stage != "movie_1080p" {
		t.Errorf("Step/Stage = %q/%q", ev.Step, ev.Stage)
	}
	if ev.Status != "processing" {
		t.Errorf("Status = %q, want processing", ev.Status)
	}
}

func TestReporterUpdateCapsAtTotal(t *testing.T) {
	r := newTestReporter()
	r.Start(10)
	r.Update(25, "encoding", "")

	if got := r.Snapshot().Current; got != 10 {
		t.Errorf("Current = %d, want 10", got)
	}
}

func TestReporterUpdateBeforeStartIsIgnored(t *testing.T) {
	r := newTestReporter()
	r.Update(5, "encoding", "")

	if got := r.Snapshot().Status; got != "initialized" {
		t.Errorf("Status = %q, want initialized", got)
	}
}

func TestReporterCompleteClosesUpdates(t *testing.T) {
	r := newTestReporter()
	r.Start(100)
	r.Update(40, "encoding", "")
	r.Complete()
	r.Complete()

	var last Event
	for ev := range r.Updates() {
		last = ev
	}
	if last.Status != "completed" || last.Percentage != 100 {
		t.Errorf("last event = %+v, want completed at 100%%", last)
	}
}

func TestReporterProgressFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	r := newTestReporter(WithProgressFile(path))
	r.Start(4)
	r.Update(1, "encoding", "x")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read progress file: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Percentage != 25 {
		t.Errorf("Percentage = %f, want 25", ev.Percentage)
	}
}

func TestParseEncodedTime(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"frame=  240 fps= 60 q=28.0 size=N/A time=00:00:10.01 bitrate=N/A speed=2.5x", 10.01, true},
		{"size=N/A time=01:02:03.50 bitrate=N/A", 3723.5, true},
		{"time=00:00:07 bitrate", 7, true},
		{"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'a.mp4':", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseEncodedTime(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseEncodedTime(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	if got := FormatSeconds(3723.9); got != "1:02:03" {
		t.Errorf("FormatSeconds = %q, want 1:02:03", got)
	}
}

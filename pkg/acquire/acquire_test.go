package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/progress"
)

// mockProgressReporter records what the download reported.
type mockProgressReporter struct {
	started   bool
	completed bool
	updates   int
	total     int64
	current   int64
}

func (m *mockProgressReporter) Start(total int64)                 { m.started = true; m.total = total }
func (m *mockProgressReporter) Update(current int64, _, _ string) { m.updates++; m.current = current }
func (m *mockProgressReporter) Complete()                         { m.completed = true }
func (m *mockProgressReporter) Updates() <-chan progress.Event {
	ch := make(chan progress.Event)
	close(ch)
	return ch
}

func fixedClock(a *Acquirer) {
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
}

func TestNewDefaults(t *testing.T) {
	a := New(Options{})
	if a.client.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultTimeout, a.client.Timeout)
	}
	b := New(Options{Timeout: 5 * time.Minute})
	if b.client.Timeout != 5*time.Minute {
		t.Errorf("Expected timeout 5m, got %v", b.client.Timeout)
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"http://example.com/a.mp4":  true,
		"HTTPS://example.com/a.mp4": true,
		"/media/a.mp4":              false,
		"ftp://example.com/a.mp4":   false,
		"movies/http.mp4":           false,
	}
	for ref, want := range tests {
		if got := IsRemote(ref); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", ref, got, want)
		}
	}
}

func TestFetchLocal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.mp4")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := New(Options{Dir: dir})
	got, err := a.Fetch(context.Background(), src, "")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got != src {
		t.Errorf("Fetch() = %q, want %q", got, src)
	}

	_, err = a.Fetch(context.Background(), filepath.Join(dir, "missing.mp4"), "")
	if !errors.IsType(err, errors.NotFoundError) {
		t.Errorf("Fetch(missing) error = %v, want NotFoundError", err)
	}
}

func TestFetchRemoteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "12")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "test content")
	}))
	defer server.Close()

	dir := t.TempDir()
	rep := &mockProgressReporter{}
	a := New(Options{Dir: dir, Progress: rep})
	fixedClock(a)

	got, err := a.Fetch(context.Background(), server.URL+"/trailers/teaser.mov", "ABC-123")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	want := filepath.Join(dir, "ABC-123_1700000000.mov")
	if got != want {
		t.Errorf("Fetch() = %q, want %q", got, want)
	}

	content, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("content = %q", content)
	}
	if !rep.started || !rep.completed || rep.total != 12 || rep.current != 12 {
		t.Errorf("progress = %+v", rep)
	}
	if _, err := os.Stat(got + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestFetchRemoteNameFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	}))
	defer server.Close()

	dir := t.TempDir()
	a := New(Options{Dir: dir})
	fixedClock(a)

	got, err := a.Fetch(context.Background(), server.URL+"/clip", "")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if want := filepath.Join(dir, "clip_1700000000.mp4"); got != want {
		t.Errorf("Fetch() = %q, want %q", got, want)
	}
}

func TestFetchRemoteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	a := New(Options{Dir: t.TempDir()})

	_, err := a.Fetch(context.Background(), server.URL+"/gone.mp4", "")
	se, ok := errors.As(err)
	if !ok || se.Type != errors.DownloadError || se.Code != errors.ErrDownloadStatus {
		t.Errorf("Fetch(404) error = %v", err)
	}

	_, err = a.Fetch(context.Background(), "http://", "")
	if !errors.IsType(err, errors.ValidationError) {
		t.Errorf("Fetch(bad url) error = %v, want ValidationError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Fetch(ctx, server.URL+"/a.mp4", "")
	if !errors.IsType(err, errors.DownloadError) {
		t.Errorf("Fetch(cancelled) error = %v, want DownloadError", err)
	}
}

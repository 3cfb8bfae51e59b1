// Package ffmpeg starts encoder subprocesses and reads their diagnostics.
package ffmpeg

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultBinary is used when no ffmpeg path is configured.
const DefaultBinary = "ffmpeg"

// waitDelay bounds how long Wait blocks on pipes after the process was killed.
const waitDelay = 5 * time.Second

// Command returns an exec.Cmd for binary that runs in its own process group.
// Cancelling ctx kills the whole group, so helpers spawned by ffmpeg die with it.
func Command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	configureProcess(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

// Tail keeps the last n lines written to it.
type Tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

// NewTail returns a Tail holding at most n lines.
func NewTail(n int) *Tail {
	if n <= 0 {
		n = 1
	}
	return &Tail{n: n, lines: make([]string, 0, n)}
}

// Add appends a line, dropping the oldest one when full.
func (t *Tail) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

// String joins the kept lines with newlines.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

// ScanLines is a bufio.SplitFunc that also splits on a bare carriage return,
// which ffmpeg uses between stats updates.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

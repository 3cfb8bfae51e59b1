// Package probe runs ffprobe to read container timing from media files.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/heyjunin/hlsvault/pkg/errors"
)

// Prober reads timing information from a media file.
type Prober interface {
	// Duration returns the container duration in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// StartTime returns the container start_time in seconds.
	StartTime(ctx context.Context, path string) (float64, error)
}

// Info is the subset of ffprobe's format section hlsvault uses.
type Info struct {
	Duration  float64
	StartTime float64
	Width     int
	Height    int
}

const defaultTimeout = 30 * time.Second

// FFprobe implements Prober with the ffprobe binary.
type FFprobe struct {
	binary  string
	timeout time.Duration
}

// New returns an FFprobe using binary, or "ffprobe" from PATH when empty.
func New(binary string) *FFprobe {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFprobe{binary: bin, timeout: defaultTimeout}
}

// Duration implements Prober.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, errors.New(errors.ProbeError, "ffprobe reported no duration", path, errors.ErrProbeParse)
	}
	return info.Duration, nil
}

// StartTime implements Prober.
func (p *FFprobe) StartTime(ctx context.Context, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.StartTime, nil
}

// Probe runs ffprobe once and returns the parsed format and first video stream.
func (p *FFprobe) Probe(ctx context.Context, path string) (Info, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return Info{}, errors.Wrap(err, errors.ProbeError, errors.GetErrorMessage(errors.ErrProbeFailed), errors.ErrProbeFailed)
	}

	info, err := parseOutput(stdout.Bytes())
	if err != nil {
		return Info{}, errors.Wrap(err, errors.ProbeError, errors.GetErrorMessage(errors.ErrProbeParse), errors.ErrProbeParse)
	}
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration  string `json:"duration"`
		StartTime string `json:"start_time"`
	} `json:"format"`
}

func parseOutput(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, err
	}

	var info Info
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
			info.Duration = d
		}
	}
	if out.Format.StartTime != "" {
		if st, err := strconv.ParseFloat(out.Format.StartTime, 64); err == nil && st > 0 {
			info.StartTime = st
		}
	}
	return info, nil
}

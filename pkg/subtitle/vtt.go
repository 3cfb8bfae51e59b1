package subtitle

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

const timestampMapPrefix = "X-TIMESTAMP-MAP"

// ErrNotVTT is returned by PatchFile for files without a WEBVTT header.
var ErrNotVTT = errors.New("missing WEBVTT header")

// PTSClock is the MPEG-TS presentation timestamp clock rate.
const PTSClock = 90000

// PTSFromSeconds converts a start time in seconds to a 90 kHz PTS value,
// rounding down. ffprobe prints microseconds, so the input is first rounded
// to whole microseconds; 1.4 s is 126000, not 125999.
func PTSFromSeconds(seconds float64) int64 {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	micros := int64(math.Round(seconds * 1e6))
	return micros * PTSClock / 1e6
}

// TimestampMap returns the header line mapping pts to local time zero.
func TimestampMap(pts int64) string {
	return fmt.Sprintf("%s=MPEGTS:%d,LOCAL:00:00:00.000", timestampMapPrefix, pts)
}

// HasTimestampMap reports whether content already carries an X-TIMESTAMP-MAP line.
func HasTimestampMap(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), timestampMapPrefix) {
			return true
		}
	}
	return false
}

// InjectTimestampMap inserts the X-TIMESTAMP-MAP header as the second line.
// Content that does not start with WEBVTT, or already has the header, is
// returned unchanged with false.
func InjectTimestampMap(content string, pts int64) (string, bool) {
	content = strings.TrimPrefix(content, "\uFEFF")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "WEBVTT") {
		return content, false
	}
	if HasTimestampMap(content) {
		return content, false
	}

	header := TimestampMap(pts)
	if strings.HasSuffix(lines[0], "\r") {
		header += "\r"
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[0], header)
	out = append(out, lines[1:]...)
	return strings.Join(out, "\n"), true
}

// PatchFile injects the header into the file at path. It returns whether the
// file was rewritten; an already patched file is left untouched.
func PatchFile(path string, pts int64) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	patched, changed := InjectTimestampMap(string(data), pts)
	if !changed {
		if !strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(string(data), "\uFEFF")), "WEBVTT") {
			return false, fmt.Errorf("%s: %w", path, ErrNotVTT)
		}
		return false, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(patched), 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}

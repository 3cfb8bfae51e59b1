// Package encoder picks the H.264 encoder ffmpeg should use and builds the
// quality flags for it. Selection happens once at startup; there is no runtime
// probing and no fallback to another encoder when the chosen one fails.
package encoder

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/errors"
)

// Kind is the closed set of encoders hlsvault knows how to drive.
type Kind int

const (
	SoftwareX264 Kind = iota
	HardwareQuickSync
	HardwareVideoToolbox
)

// Quality holds the per-family quality settings.
type Quality struct {
	// CRF is the constant rate factor for libx264.
	CRF int
	// Preset is the speed preset for libx264 and h264_qsv.
	Preset string
	// GlobalQuality is the ICQ value for h264_qsv.
	GlobalQuality int
	// VTQuality is the -q:v value for h264_videotoolbox.
	VTQuality int
}

// DefaultQuality matches what the library has always encoded with.
var DefaultQuality = Quality{CRF: 20, Preset: "veryfast", GlobalQuality: 20, VTQuality: 65}

// Codec returns the ffmpeg encoder name.
func (k Kind) Codec() string {
	switch k {
	case HardwareQuickSync:
		return "h264_qsv"
	case HardwareVideoToolbox:
		return "h264_videotoolbox"
	default:
		return "libx264"
	}
}

func (k Kind) String() string {
	return k.Codec()
}

// Hardware reports whether k offloads encoding to a GPU/media engine.
func (k Kind) Hardware() bool {
	return k != SoftwareX264
}

// QualityFlags returns the rate-control flags for k.
func (k Kind) QualityFlags(q Quality) []string {
	preset := q.Preset
	if preset == "" {
		preset = DefaultQuality.Preset
	}
	switch k {
	case HardwareQuickSync:
		return []string{"-global_quality", strconv.Itoa(q.GlobalQuality), "-preset", preset}
	case HardwareVideoToolbox:
		return []string{"-q:v", strconv.Itoa(q.VTQuality)}
	default:
		return []string{"-crf", strconv.Itoa(q.CRF), "-preset", preset}
	}
}

// Parse converts an ffmpeg encoder name or a short alias into a Kind.
func Parse(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "libx264", "x264", "software", "cpu":
		return SoftwareX264, nil
	case "h264_qsv", "qsv", "quicksync":
		return HardwareQuickSync, nil
	case "h264_videotoolbox", "videotoolbox", "vt":
		return HardwareVideoToolbox, nil
	default:
		return SoftwareX264, errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrUnknownEncoder),
			fmt.Sprintf("encoder %q", name), errors.ErrUnknownEncoder)
	}
}

// Select returns the override when one is given, otherwise the platform's
// hardware encoder: VideoToolbox on macOS, Quick Sync on Intel-architecture
// Linux and Windows hosts, libx264 everywhere else.
func Select(override, goos, goarch string) (Kind, error) {
	if strings.TrimSpace(override) != "" {
		return Parse(override)
	}
	switch goos {
	case "darwin":
		return HardwareVideoToolbox, nil
	case "linux", "windows":
		if goarch == "amd64" || goarch == "386" {
			return HardwareQuickSync, nil
		}
	}
	return SoftwareX264, nil
}

// SelectForHost calls Select with the running platform.
func SelectForHost(override string) (Kind, error) {
	return Select(override, runtime.GOOS, runtime.GOARCH)
}

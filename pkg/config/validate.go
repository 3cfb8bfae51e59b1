package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/logger"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	return c.validateLogging()
}

func invalid(format string, args ...interface{}) error {
	return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidConfig), fmt.Sprintf(format, args...), errors.ErrInvalidConfig)
}

func (c *Config) validatePaths() error {
	if c.Paths.MediaRoot == "" {
		return invalid("paths.media_root is required")
	}
	if c.Paths.CacheRoot == "" {
		return invalid("paths.cache_root is required")
	}
	if filepath.Clean(c.Paths.MediaRoot) == filepath.Clean(c.Paths.CacheRoot) {
		return invalid("paths.media_root and paths.cache_root must differ")
	}
	if strings.ContainsAny(c.Paths.URLPrefix, `?#\`) || strings.Contains(c.Paths.URLPrefix, "..") {
		return invalid("paths.url_prefix %q is not a plain path", c.Paths.URLPrefix)
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.PreferredEncoder != "" {
		if _, err := encoder.Parse(c.FFmpeg.PreferredEncoder); err != nil {
			return err
		}
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return invalid("ffmpeg.crf must be between 0 and 51, got %d", c.FFmpeg.CRF)
	}
	if c.FFmpeg.GlobalQuality < 1 || c.FFmpeg.GlobalQuality > 51 {
		return invalid("ffmpeg.global_quality must be between 1 and 51, got %d", c.FFmpeg.GlobalQuality)
	}
	if c.FFmpeg.VTQuality < 1 || c.FFmpeg.VTQuality > 100 {
		return invalid("ffmpeg.vt_quality must be between 1 and 100, got %d", c.FFmpeg.VTQuality)
	}
	if c.FFmpeg.SegmentSeconds <= 0 {
		return invalid("ffmpeg.segment_seconds must be positive")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxConcurrent < 0 {
		return invalid("jobs.max_concurrent must be >= 0")
	}
	if c.Jobs.IdleTimeoutSeconds < 0 {
		return invalid("jobs.idle_timeout_seconds must be >= 0")
	}
	if c.Jobs.MasterWaitSeconds <= 0 {
		return invalid("jobs.master_wait_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if c.Subtitles.PrimaryCode == "" {
		return invalid("subtitles.primary_code is required")
	}
	if c.Subtitles.MonitorIntervalMS <= 0 {
		return invalid("subtitles.monitor_interval_ms must be positive")
	}
	if c.Subtitles.MonitorAttempts <= 0 {
		return invalid("subtitles.monitor_attempts must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", logger.FormatJSON, logger.FormatConsole, logger.FormatAuto:
	default:
		return invalid("logging.format %q must be json, console or auto", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return invalid("logging.level %q is not a known level", c.Logging.Level)
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/errors"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFFmpeg()
	c.normalizeSubtitles()
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.MediaRoot, err = expandPath(c.Paths.MediaRoot); err != nil {
		return errors.Wrap(err, errors.ValidationError, "paths.media_root", errors.ErrInvalidConfig)
	}
	if c.Paths.CacheRoot, err = expandPath(c.Paths.CacheRoot); err != nil {
		return errors.Wrap(err, errors.ValidationError, "paths.cache_root", errors.ErrInvalidConfig)
	}
	c.Paths.URLPrefix = strings.Trim(strings.TrimSpace(c.Paths.URLPrefix), "/")
	return nil
}

func (c *Config) normalizeFFmpeg() {
	if strings.TrimSpace(c.FFmpeg.FFmpeg) == "" {
		c.FFmpeg.FFmpeg = "ffmpeg"
	}
	if strings.TrimSpace(c.FFmpeg.FFprobe) == "" {
		c.FFmpeg.FFprobe = "ffprobe"
	}
	c.FFmpeg.Preset = strings.TrimSpace(c.FFmpeg.Preset)
	c.FFmpeg.PreferredEncoder = strings.TrimSpace(c.FFmpeg.PreferredEncoder)
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.PrimaryCode = strings.ToLower(strings.TrimSpace(c.Subtitles.PrimaryCode))
	seen := map[string]bool{c.Subtitles.PrimaryCode: true}
	langs := c.Subtitles.Languages[:0]
	for _, l := range c.Subtitles.Languages {
		l.Code = strings.ToLower(strings.TrimSpace(l.Code))
		l.Name = strings.TrimSpace(l.Name)
		if l.Code == "" || seen[l.Code] {
			continue
		}
		if l.Name == "" {
			l.Name = l.Code
		}
		seen[l.Code] = true
		langs = append(langs, l)
	}
	c.Subtitles.Languages = langs
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

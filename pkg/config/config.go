// Package config loads hlsvault settings from defaults, an optional TOML
// file, a .env file and the process environment, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
)

// ProjectFile is looked up in the working directory when no path is given.
const ProjectFile = "hlsvault.toml"

// Config holds every setting.
type Config struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	FFmpeg    FFmpeg    `toml:"ffmpeg"`
	Jobs      Jobs      `toml:"jobs"`
	Subtitles Subtitles `toml:"subtitles"`
	Logging   Logging   `toml:"logging"`
}

type Server struct {
	Addr string `toml:"addr"`
}

// Paths locates the media library and the rendition cache.
type Paths struct {
	MediaRoot string `toml:"media_root"`
	CacheRoot string `toml:"cache_root"`
	// URLPrefix is the public path the cache is served under, without slashes.
	URLPrefix string `toml:"url_prefix"`
}

type FFmpeg struct {
	FFmpeg           string `toml:"ffmpeg"`
	FFprobe          string `toml:"ffprobe"`
	PreferredEncoder string `toml:"preferred_encoder"`
	CRF              int    `toml:"crf"`
	Preset           string `toml:"preset"`
	GlobalQuality    int    `toml:"global_quality"`
	VTQuality        int    `toml:"vt_quality"`
	SegmentSeconds   int    `toml:"segment_seconds"`
}

type Jobs struct {
	MaxConcurrent      int  `toml:"max_concurrent"`
	IdleTimeoutSeconds int  `toml:"idle_timeout_seconds"`
	MasterWaitSeconds  int  `toml:"master_wait_seconds"`
	KeepSource         bool `toml:"keep_source"`
}

type Subtitles struct {
	PrimaryCode       string              `toml:"primary_code"`
	PrimaryName       string              `toml:"primary_name"`
	MonitorIntervalMS int                 `toml:"monitor_interval_ms"`
	MonitorAttempts   int                 `toml:"monitor_attempts"`
	Languages         []subtitle.Language `toml:"languages"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	langs := make([]subtitle.Language, len(subtitle.DefaultLanguages.Supported))
	copy(langs, subtitle.DefaultLanguages.Supported)
	return Config{
		Server: Server{Addr: ":3001"},
		Paths: Paths{
			MediaRoot: "uploads",
			CacheRoot: "hls",
			URLPrefix: "hls",
		},
		FFmpeg: FFmpeg{
			FFmpeg:         "ffmpeg",
			FFprobe:        "ffprobe",
			CRF:            encoder.DefaultQuality.CRF,
			Preset:         encoder.DefaultQuality.Preset,
			GlobalQuality:  encoder.DefaultQuality.GlobalQuality,
			VTQuality:      encoder.DefaultQuality.VTQuality,
			SegmentSeconds: 10,
		},
		Jobs: Jobs{
			IdleTimeoutSeconds: 120,
			MasterWaitSeconds:  60,
		},
		Subtitles: Subtitles{
			PrimaryCode:       subtitle.DefaultLanguages.Primary.Code,
			PrimaryName:       subtitle.DefaultLanguages.Primary.Name,
			MonitorIntervalMS: 1000,
			MonitorAttempts:   300,
			Languages:         langs,
		},
		Logging: Logging{Level: "info", Format: "auto"},
	}
}

// Load builds the configuration. An empty path falls back to ProjectFile in
// the working directory when it exists. A .env file in the working directory
// is read before the environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if exists {
		defaultLangs := cfg.Subtitles.Languages
		cfg.Subtitles.Languages = nil
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, err
		}
		if cfg.Subtitles.Languages == nil {
			cfg.Subtitles.Languages = defaultLangs
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ValidationError, "Failed to open config", errors.ErrInvalidConfig)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrap(err, errors.ValidationError, "Failed to parse config", errors.ErrInvalidConfig)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return "", false, errors.Wrap(err, errors.ValidationError, "Config file not found", errors.ErrInvalidConfig)
		}
		if info.IsDir() {
			return "", false, errors.New(errors.ValidationError, "Config path is a directory", expanded, errors.ErrInvalidConfig)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(ProjectFile)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return "", false, nil
}

// Quality returns the encoder rate-control settings.
func (c *Config) Quality() encoder.Quality {
	return encoder.Quality{
		CRF:           c.FFmpeg.CRF,
		Preset:        c.FFmpeg.Preset,
		GlobalQuality: c.FFmpeg.GlobalQuality,
		VTQuality:     c.FFmpeg.VTQuality,
	}
}

// Languages returns the subtitle discovery settings.
func (c *Config) Languages() subtitle.Languages {
	return subtitle.Languages{
		Primary:   subtitle.Language{Code: c.Subtitles.PrimaryCode, Name: c.Subtitles.PrimaryName},
		Supported: c.Subtitles.Languages,
	}
}

// MonitorInterval is the PTS monitor polling period.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Subtitles.MonitorIntervalMS) * time.Millisecond
}

// IdleTimeout is how long a job may run unwatched; zero disables reaping.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Jobs.IdleTimeoutSeconds) * time.Second
}

// MasterWait bounds how long a stream request waits for a new master playlist.
func (c *Config) MasterWait() time.Duration {
	return time.Duration(c.Jobs.MasterWaitSeconds) * time.Second
}

// EnsureDirectories creates the media and cache roots.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.MediaRoot, c.Paths.CacheRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.SystemError, fmt.Sprintf("Failed to create directory %q", dir), errors.ErrCacheDirCreate)
		}
	}
	return nil
}

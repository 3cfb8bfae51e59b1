package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/heyjunin/hlsvault/pkg/errors"
)

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(err, errors.ValidationError, "Failed to read .env file", errors.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Paths.MediaRoot = getEnv("MEDIA_ROOT", c.Paths.MediaRoot)
	c.Paths.CacheRoot = getEnv("CACHE_ROOT", c.Paths.CacheRoot)
	c.FFmpeg.FFmpeg = getEnv("FFMPEG_PATH", c.FFmpeg.FFmpeg)
	c.FFmpeg.FFprobe = getEnv("FFPROBE_PATH", c.FFmpeg.FFprobe)
	c.FFmpeg.PreferredEncoder = getEnv("PREFERRED_ENCODER", c.FFmpeg.PreferredEncoder)
	c.Jobs.MaxConcurrent = getEnvInt("MAX_CONCURRENT_JOBS", c.Jobs.MaxConcurrent)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

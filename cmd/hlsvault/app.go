package main

import (
	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/config"
	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/packager"
	"github.com/heyjunin/hlsvault/pkg/probe"
	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/streaming"
	"github.com/heyjunin/hlsvault/pkg/transcoder"
)

// app holds the components every command shares.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	cache   *cache.Cache
	prober  *probe.FFprobe
	encoder encoder.Kind
}

// newApp loads the configuration, applies the global flags and sets up logging.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	logger.Init(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logger.NewLogger()

	kind, err := encoder.SelectForHost(cfg.FFmpeg.PreferredEncoder)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	log.Debug("Configuration loaded", "main", map[string]interface{}{
		"media_root": cfg.Paths.MediaRoot,
		"cache_root": cfg.Paths.CacheRoot,
		"encoder":    kind.String(),
	})
	return &app{
		cfg:     cfg,
		log:     log,
		cache:   cache.New(cfg.Paths.CacheRoot),
		prober:  probe.New(cfg.FFmpeg.FFprobe),
		encoder: kind,
	}, nil
}

func (a *app) runner() *transcoder.Runner {
	return transcoder.NewRunnerWithDeps(transcoder.Options{
		FFmpegBinary:    a.cfg.FFmpeg.FFmpeg,
		MaxConcurrent:   int64(a.cfg.Jobs.MaxConcurrent),
		KeepSource:      a.cfg.Jobs.KeepSource,
		MonitorInterval: a.cfg.MonitorInterval(),
		MonitorAttempts: a.cfg.Subtitles.MonitorAttempts,
	}, a.cache, a.prober, a.log)
}

func (a *app) service(starter streaming.Starter) *streaming.Service {
	return streaming.NewService(streaming.Options{
		URLPrefix:      a.cfg.Paths.URLPrefix,
		Encoder:        a.encoder,
		Quality:        a.cfg.Quality(),
		SegmentSeconds: a.cfg.FFmpeg.SegmentSeconds,
		Languages:      a.cfg.Languages(),
		MasterWait:     a.cfg.MasterWait(),
		IdleTimeout:    a.cfg.IdleTimeout(),
	}, a.resolver(), a.cache, starter, transcoder.NewRegistry(), a.log)
}

func (a *app) resolver() *streaming.RootResolver {
	return streaming.NewRootResolver(a.cfg.Paths.MediaRoot)
}

func (a *app) packager() *packager.Packager {
	return packager.New(a.cache, a.cfg.Paths.URLPrefix, a.cfg.FFmpeg.FFmpeg, a.log)
}

// localSource resolves a path given on the command line. Paths inside the
// media root get library keys; anything else is keyed by its directory.
func (a *app) localSource(path string) streaming.Source {
	if src, err := a.resolver().Resolve(path); err == nil {
		return src
	}
	return streaming.Source{Path: path}
}

func (a *app) key(src streaming.Source, resolution string) rendition.Key {
	return rendition.NewKey(src.KeyPath(), src.Relative(), rendition.ParseResolution(resolution))
}

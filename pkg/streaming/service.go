// Package streaming answers stream requests: it attaches to a running encode,
// serves a cached rendition, or starts a new encode and waits for its master
// playlist.
package streaming

import (
	"context"
	"os"
	"time"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/encoder"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/metrics"
	"github.com/heyjunin/hlsvault/pkg/rendition"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
	"github.com/heyjunin/hlsvault/pkg/transcoder"
)

const (
	defaultMasterWait   = 60 * time.Second
	defaultPollInterval = 250 * time.Millisecond
	minReapInterval     = time.Second
)

// Starter launches encode jobs. *transcoder.Runner implements it.
type Starter interface {
	Start(ctx context.Context, spec transcoder.Spec) *transcoder.Job
}

// Options configures a Service.
type Options struct {
	// URLPrefix is the public path the cache root is served under, e.g. "hls".
	URLPrefix      string
	Encoder        encoder.Kind
	Quality        encoder.Quality
	SegmentSeconds int
	Languages      subtitle.Languages
	// MasterWait bounds how long Stream waits for a new encode's playlist.
	MasterWait time.Duration
	// IdleTimeout cancels jobs nobody has watched for this long. Zero disables it.
	IdleTimeout  time.Duration
	PollInterval time.Duration
}

// Target is a resolved request: the source and the rendition it maps to.
type Target struct {
	Source Source
	Key    rendition.Key
}

// Stream is the answer to a stream request.
type Stream struct {
	Key rendition.Key
	// Playlist is the master playlist body.
	Playlist []byte
	// Cached is true when the rendition was complete before the request.
	Cached bool
	// Job is the encode serving the request, nil on a cache hit.
	Job *transcoder.Job
}

// Service coordinates the resolver, the cache, the job registry and the runner.
type Service struct {
	opts     Options
	resolver SourceResolver
	cache    *cache.Cache
	starter  Starter
	registry *transcoder.Registry
	logger   logger.Logger

	base context.Context
	stop context.CancelFunc
}

// NewService creates a Service. Jobs it starts live until Close.
func NewService(opts Options, resolver SourceResolver, c *cache.Cache, starter Starter, registry *transcoder.Registry, log logger.Logger) *Service {
	if opts.MasterWait <= 0 {
		opts.MasterWait = defaultMasterWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Languages.Primary.Code == "" {
		opts.Languages = subtitle.DefaultLanguages
	}
	if log == nil {
		log = logger.Nop()
	}
	if registry == nil {
		registry = transcoder.NewRegistry()
	}
	base, stop := context.WithCancel(context.Background())
	return &Service{
		opts:     opts,
		resolver: resolver,
		cache:    c,
		starter:  starter,
		registry: registry,
		logger:   log,
		base:     base,
		stop:     stop,
	}
}

// Registry returns the in-flight job registry.
func (s *Service) Registry() *transcoder.Registry {
	return s.registry
}

// Target resolves ref and maps it to a rendition key.
func (s *Service) Target(ref, resolution string) (Target, error) {
	src, err := s.resolver.Resolve(ref)
	if err != nil {
		return Target{}, err
	}
	key := rendition.NewKey(src.KeyPath(), src.Relative(), rendition.ParseResolution(resolution))
	return Target{Source: src, Key: key}, nil
}

// Stream returns the master playlist for ref at resolution, starting an
// encode when neither a running job nor a complete cache entry exists.
// It blocks until the playlist is available, the job fails, ctx ends or
// MasterWait passes.
func (s *Service) Stream(ctx context.Context, ref, resolution string) (*Stream, error) {
	target, err := s.Target(ref, resolution)
	if err != nil {
		return nil, err
	}
	key := target.Key
	fields := map[string]interface{}{"folder": key.Folder(), "source": target.Source.Path}

	if job, ok := s.registry.Get(key); ok {
		metrics.CacheLookupsTotal.WithLabelValues("joined").Inc()
		s.logger.Debug("Attaching to running job", "streaming", fields)
		return s.await(ctx, job)
	}

	if s.cache.Lookup(key) {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		data, err := os.ReadFile(s.cache.MasterPath(key))
		if err != nil {
			return nil, errors.Wrap(err, errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistRead), errors.ErrPlaylistRead)
		}
		return &Stream{Key: key, Playlist: data, Cached: true}, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	info, err := os.Stat(target.Source.Path)
	if err != nil || info.IsDir() {
		return nil, errors.New(errors.NotFoundError, errors.GetErrorMessage(errors.ErrSourceNotFound), target.Source.Path, errors.ErrSourceNotFound)
	}

	spec := transcoder.Spec{
		Key:            key,
		Source:         target.Source.Path,
		URLPrefix:      key.URLPrefix(s.opts.URLPrefix),
		Encoder:        s.opts.Encoder,
		Quality:        s.opts.Quality,
		SegmentSeconds: s.opts.SegmentSeconds,
		Tracks:         subtitle.Discover(target.Source.Path, s.opts.Languages),
	}
	job, started := s.registry.GetOrStart(key, func() *transcoder.Job {
		return s.starter.Start(s.base, spec)
	})
	if started {
		fields["job_id"] = job.ID
		fields["subtitles"] = len(spec.Tracks)
		s.logger.Info("Started encode", "streaming", fields)
	}
	return s.await(ctx, job)
}

// await holds job until its playlist is ready. A request that gives up while
// it is the last holder of an unready job cancels the job.
func (s *Service) await(ctx context.Context, job *transcoder.Job) (*Stream, error) {
	job.Hold()
	ready := false
	defer func() {
		if job.Release() == 0 && !ready && ctx.Err() != nil {
			s.logger.Info("Client went away before the stream was ready", "streaming", map[string]interface{}{
				"job_id": job.ID,
				"folder": job.Key().Folder(),
			})
			job.Cancel()
		}
	}()

	timer := time.NewTimer(s.opts.MasterWait)
	defer timer.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		if data, ok := s.readReady(job); ok {
			ready = true
			return &Stream{Key: job.Key(), Playlist: data, Job: job}, nil
		}

		select {
		case <-job.Done():
			if data, ok := s.readReady(job); ok {
				ready = true
				return &Stream{Key: job.Key(), Playlist: data, Job: job}, nil
			}
			return nil, finishedWithoutPlaylist(job)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, errors.New(errors.TranscodingError, errors.GetErrorMessage(errors.ErrMasterTimeout), job.Key().Folder(), errors.ErrMasterTimeout)
		case <-ticker.C:
		}
	}
}

// readReady returns the master playlist once the playlist ffmpeg writes
// exists. In subtitle mode the master is written before ffmpeg starts.
func (s *Service) readReady(job *transcoder.Job) ([]byte, bool) {
	if _, err := os.Stat(job.Spec.OutputPlaylist()); err != nil {
		return nil, false
	}
	data, err := os.ReadFile(s.cache.MasterPath(job.Key()))
	if err != nil {
		return nil, false
	}
	return data, true
}

func finishedWithoutPlaylist(job *transcoder.Job) error {
	switch job.State() {
	case transcoder.Failed:
		return job.Err()
	case transcoder.Cancelled:
		return errors.New(errors.TranscodingError, errors.GetErrorMessage(errors.ErrJobCancelled), job.Key().Folder(), errors.ErrJobCancelled)
	default:
		return errors.New(errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistRead), "encode finished without a master playlist", errors.ErrPlaylistRead)
	}
}

// Touch records playback activity for the job writing folder, if any.
func (s *Service) Touch(folder string) {
	if job, ok := s.registry.GetFolder(folder); ok {
		job.Touch()
	}
}

// Run cancels idle jobs until ctx ends. It returns immediately when idle
// reaping is disabled.
func (s *Service) Run(ctx context.Context) {
	if s.opts.IdleTimeout <= 0 {
		return
	}
	interval := s.opts.IdleTimeout / 4
	if interval < minReapInterval {
		interval = minReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.registry.Reap(now, s.opts.IdleTimeout); n > 0 {
				s.logger.Info("Cancelled idle jobs", "streaming", map[string]interface{}{"count": n})
			}
		}
	}
}

// Close cancels every job the service started.
func (s *Service) Close() {
	s.stop()
	s.registry.CancelAll()
}

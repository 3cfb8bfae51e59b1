package transcoder

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/ffmpeg"
	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/metrics"
	"github.com/heyjunin/hlsvault/pkg/probe"
	"github.com/heyjunin/hlsvault/pkg/progress"
)

const stderrTailLines = 20

// Options configures a Runner.
type Options struct {
	// FFmpegBinary defaults to "ffmpeg" from PATH.
	FFmpegBinary string
	// MaxConcurrent limits simultaneous encodes; 0 means unlimited.
	MaxConcurrent int64
	// KeepSource disables deleting the source after a successful encode.
	KeepSource      bool
	MonitorInterval time.Duration
	MonitorAttempts int
}

// Runner executes encode jobs.
type Runner struct {
	opts   Options
	cache  *cache.Cache
	synth  *hls.Synthesizer
	prober probe.Prober
	logger logger.Logger
	sem    *semaphore.Weighted
}

// NewRunner creates a Runner writing into c.
func NewRunner(opts Options, c *cache.Cache, prober probe.Prober) *Runner {
	return NewRunnerWithDeps(opts, c, prober, logger.NewLogger())
}

// NewRunnerWithDeps creates a Runner with an explicit logger.
func NewRunnerWithDeps(opts Options, c *cache.Cache, prober probe.Prober, log logger.Logger) *Runner {
	if opts.FFmpegBinary == "" {
		opts.FFmpegBinary = ffmpeg.DefaultBinary
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		opts:   opts,
		cache:  c,
		synth:  hls.NewSynthesizer(prober, log),
		prober: prober,
		logger: log,
	}
	if opts.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return r
}

// Start launches an encode in the background and returns its Job at once.
// ctx bounds the job's lifetime; it should outlive the request that asked
// for the rendition.
func (r *Runner) Start(ctx context.Context, spec Spec) *Job {
	if spec.Dir == "" {
		spec.Dir = r.cache.Dir(spec.Key)
	}
	job := newJob(ctx, spec)
	metrics.JobStartsTotal.Inc()
	metrics.JobsActive.Inc()

	go func() {
		defer metrics.JobsActive.Dec()
		state, err := r.run(job)
		job.finish(state, err)
		metrics.JobsFinishedTotal.WithLabelValues(state.String()).Inc()
	}()
	return job
}

// Run encodes spec in the foreground and returns the job's failure, if any.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Job, error) {
	job := r.Start(ctx, spec)
	<-job.Done()
	return job, job.Err()
}

func (r *Runner) run(job *Job) (State, error) {
	ctx := job.ctx
	spec := job.Spec
	fields := map[string]interface{}{
		"job_id":  job.ID,
		"folder":  spec.Key.Folder(),
		"source":  spec.Source,
		"encoder": spec.Encoder.String(),
	}

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.logger.Info("Job cancelled while waiting for an encode slot", "transcoder", fields)
			return Cancelled, nil
		}
		defer r.sem.Release(1)
	}

	if _, err := r.cache.EnsureDir(spec.Key); err != nil {
		return r.fail(fields, err)
	}

	lock := r.cache.Lock(spec.Key)
	locked, err := lock.TryLock()
	if err != nil {
		return r.fail(fields, errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrLockFile), errors.ErrLockFile))
	}
	if !locked {
		return r.fail(fields, errors.New(errors.BusyError, errors.GetErrorMessage(errors.ErrRenditionLocked), spec.Key.Folder(), errors.ErrRenditionLocked))
	}
	defer lock.Unlock()

	clearStale(spec.Dir)

	if spec.HasSubtitles() {
		plan := hls.Plan{
			Source:     spec.Source,
			Dir:        spec.Dir,
			URLPrefix:  spec.URLPrefix,
			Resolution: spec.Key.Resolution,
			Tracks:     spec.Tracks,
		}
		if err := r.synth.Prepare(ctx, plan); err != nil {
			removePlaylists(spec.Dir)
			return r.fail(fields, err)
		}
	}

	args := BuildArgs(spec)
	r.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"job_id":  job.ID,
		"command": r.opts.FFmpegBinary + " " + strings.Join(args, " "),
	})

	cmd := ffmpeg.Command(ctx, r.opts.FFmpegBinary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		removePlaylists(spec.Dir)
		return r.fail(fields, errors.Wrap(err, errors.TranscodingError, errors.GetErrorMessage(errors.ErrEncoderStart), errors.ErrEncoderStart))
	}
	if err := cmd.Start(); err != nil {
		removePlaylists(spec.Dir)
		return r.fail(fields, errors.Wrap(err, errors.TranscodingError, errors.GetErrorMessage(errors.ErrEncoderStart), errors.ErrEncoderStart))
	}
	job.setRunning()
	r.logger.Info("Encoding started", "transcoder", fields)

	encodeDone := make(chan struct{})
	monitorDone := make(chan struct{})
	if spec.HasSubtitles() {
		mon := NewMonitor(spec.Dir, r.prober, r.logger, r.opts.MonitorInterval, r.opts.MonitorAttempts)
		go func() {
			defer close(monitorDone)
			mon.Run(ctx, encodeDone)
		}()
	} else {
		close(monitorDone)
	}

	reporter := spec.Progress
	if reporter != nil {
		r.startProgress(ctx, reporter, spec.Source)
	}

	tail := ffmpeg.NewTail(stderrTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(ffmpeg.ScanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tail.Add(line)
		if reporter != nil {
			if secs, ok := progress.ParseEncodedTime(line); ok {
				reporter.Update(int64(secs), "encoding", spec.Key.Folder())
				continue
			}
		}
		r.logger.Debug(line, "ffmpeg", map[string]interface{}{"job_id": job.ID})
	}

	waitErr := cmd.Wait()
	close(encodeDone)
	<-monitorDone

	switch {
	case waitErr == nil:
		if reporter != nil {
			reporter.Complete()
		}
		metrics.EncodeDuration.Observe(job.Elapsed().Seconds())
		r.logger.Info("Encoding completed", "transcoder", fields)
		r.removeSource(spec.Source, fields)
		return Completed, nil
	case ctx.Err() != nil:
		removePlaylists(spec.Dir)
		r.logger.Info("Encoding cancelled", "transcoder", fields)
		return Cancelled, nil
	default:
		removePlaylists(spec.Dir)
		se := errors.Wrap(waitErr, errors.TranscodingError, errors.GetErrorMessage(errors.ErrEncoderExit), errors.ErrEncoderExit)
		if t := tail.String(); t != "" {
			se.Details = waitErr.Error() + "\n" + t
		}
		return r.fail(fields, se)
	}
}

func (r *Runner) startProgress(ctx context.Context, reporter progress.Reporter, source string) {
	total := hls.FallbackDuration
	if r.prober != nil {
		if d, err := r.prober.Duration(ctx, source); err == nil && d > 0 {
			total = d
		}
	}
	reporter.Start(int64(total))
}

func (r *Runner) fail(fields map[string]interface{}, err error) (State, error) {
	data := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data["error"] = err.Error()
	r.logger.Error("Encoding failed", "transcoder", data)
	return Failed, err
}

func (r *Runner) removeSource(source string, fields map[string]interface{}) {
	if r.opts.KeepSource {
		return
	}
	if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
		data := map[string]interface{}{"source": source, "error": err.Error()}
		if id, ok := fields["job_id"]; ok {
			data["job_id"] = id
		}
		r.logger.Warn(errors.GetErrorMessage(errors.ErrSourceDelete), "transcoder", data)
		return
	}
	r.logger.Info("Source deleted", "transcoder", map[string]interface{}{"source": source})
}

// removePlaylists makes a failed or cancelled rendition look absent to the cache.
func removePlaylists(dir string) {
	for _, name := range []string{hls.MasterName, hls.VideoName} {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

// clearStale drops playlists, segments and subtitles left by an earlier
// interrupted run. Temporary download playlists are left alone.
func clearStale(dir string) {
	removePlaylists(dir)
	for _, pattern := range []string{"segment_*.ts", "subs_*.m3u8", "subs_*.vtt", "*.tmp"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pattern))
		for _, m := range matches {
			_ = os.Remove(m)
		}
	}
}

package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/heyjunin/hlsvault/pkg/acquire"
	"github.com/heyjunin/hlsvault/pkg/progress"
	"github.com/heyjunin/hlsvault/pkg/subtitle"
	"github.com/heyjunin/hlsvault/pkg/transcoder"
)

var (
	// Input options
	transcodeInput string
	transcodeName  string

	// Output options
	transcodeResolution string
	transcodeKeepSource bool
	progressFile        string
)

func newTranscodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcode",
		Short: "Encode one file or URL into the rendition cache",
		Long: `Encode one source into the rendition cache, the same way a first stream request
would. Remote http(s) sources are downloaded into the media root first.`,
		RunE: runTranscode,
	}
	cmd.Flags().StringVarP(&transcodeInput, "input", "i", "", "Input file path or URL (required)")
	cmd.Flags().StringVar(&transcodeName, "name", "", "File name for a downloaded source (default: taken from the URL)")
	cmd.Flags().StringVarP(&transcodeResolution, "resolution", "r", "1080p", "Resolution: 720p, 1080p or 2160p")
	cmd.Flags().BoolVar(&transcodeKeepSource, "keep-source", false, "Keep the source file after a successful encode")
	cmd.Flags().StringVar(&progressFile, "progress-file", "", "Write JSON progress updates to this file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runTranscode(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if transcodeKeepSource {
		a.cfg.Jobs.KeepSource = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	fetcher := acquire.New(acquire.Options{
		Dir:      a.cfg.Paths.MediaRoot,
		Progress: progress.NewReporter(progress.WithDescription("Downloading"), progress.WithShowBytes(true)),
	})
	path, err := fetcher.Fetch(ctx, transcodeInput, transcodeName)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	src := a.localSource(path)
	key := a.key(src, transcodeResolution)
	if a.cache.Lookup(key) {
		a.log.Info("Rendition already cached", "main", map[string]interface{}{"folder": key.Folder()})
		return nil
	}

	opts := []progress.Option{progress.WithDescription("Encoding " + key.Folder())}
	if progressFile != "" {
		opts = append(opts, progress.WithProgressFile(progressFile))
	}
	spec := transcoder.Spec{
		Key:            key,
		Source:         src.Path,
		URLPrefix:      key.URLPrefix(a.cfg.Paths.URLPrefix),
		Encoder:        a.encoder,
		Quality:        a.cfg.Quality(),
		SegmentSeconds: a.cfg.FFmpeg.SegmentSeconds,
		Tracks:         subtitle.Discover(src.Path, a.cfg.Languages()),
		Progress:       progress.NewReporter(opts...),
	}

	a.log.Info("Starting transcoder", "main", map[string]interface{}{
		"source":    src.Path,
		"folder":    key.Folder(),
		"encoder":   a.encoder.String(),
		"subtitles": len(spec.Tracks),
	})
	job, err := a.runner().Run(ctx, spec)
	if err != nil {
		return err
	}
	if job.State() == transcoder.Cancelled {
		a.log.Warn("Transcoding cancelled", "main", map[string]interface{}{"folder": key.Folder()})
		return nil
	}

	a.log.Info("Transcoding completed successfully", "main", map[string]interface{}{
		"output_path": a.cache.MasterPath(key),
		"elapsed":     job.Elapsed().Round(time.Second).String(),
	})
	return nil
}

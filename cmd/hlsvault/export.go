package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	exportInput      string
	exportResolution string
	exportOutput     string
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Remux a cached rendition into an MP4 file",
		RunE:  runExport,
	}
	cmd.Flags().StringVarP(&exportInput, "input", "i", "", "Source path the rendition was encoded from (required)")
	cmd.Flags().StringVarP(&exportResolution, "resolution", "r", "1080p", "Resolution: 720p, 1080p or 2160p")
	cmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output MP4 path (default: <name>.mp4 in the working directory)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	path := exportInput
	if !filepath.IsAbs(path) {
		if src, err := a.resolver().Resolve(path); err == nil {
			path = src.Path
		} else if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	key := a.key(a.localSource(path), exportResolution)

	out := exportOutput
	if out == "" {
		out = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".mp4"
	}
	if err := a.packager().Export(ctx, key, out); err != nil {
		return err
	}

	absPath, _ := filepath.Abs(out)
	a.log.Info("Export completed", "main", map[string]interface{}{
		"folder":      key.Folder(),
		"output_path": absPath,
	})
	return nil
}

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/heyjunin/hlsvault/pkg/metrics"
	"github.com/heyjunin/hlsvault/pkg/server"
)

var serveAddr string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stream, download and cache endpoints",
		RunE:  runServe,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(reg)

	svc := a.service(a.runner())
	defer svc.Close()
	go svc.Run(ctx)

	srv := server.New(server.Options{
		URLPrefix: a.cfg.Paths.URLPrefix,
		Gatherer:  reg,
	}, svc, a.packager(), a.cache, a.log)

	a.log.Info("Starting hlsvault", "main", map[string]interface{}{
		"addr":       addr,
		"media_root": a.cfg.Paths.MediaRoot,
		"cache_root": a.cfg.Paths.CacheRoot,
		"encoder":    a.encoder.String(),
	})
	return srv.ListenAndServe(ctx, addr)
}

// Package server exposes the streaming service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/packager"
	"github.com/heyjunin/hlsvault/pkg/streaming"
)

const (
	mimeMPEGURL = "application/vnd.apple.mpegurl"
	mimeMP2T    = "video/mp2t"
	mimeVTT     = "text/vtt; charset=utf-8"
	mimeMP4     = "video/mp4"

	retryAfterSeconds = "5"
	shutdownTimeout   = 10 * time.Second
)

// Authorizer wraps the API and cache routes, e.g. with a session check.
// /healthz and /metrics are never wrapped.
type Authorizer func(http.Handler) http.Handler

// Options configures a Server.
type Options struct {
	// URLPrefix is the path the cache root is served under, without slashes.
	URLPrefix  string
	Authorizer Authorizer
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Server routes HTTP requests to the streaming service, the packager and the cache.
type Server struct {
	opts     Options
	streams  *streaming.Service
	packager *packager.Packager
	cache    *cache.Cache
	logger   logger.Logger
	handler  http.Handler
}

// New builds the router.
func New(opts Options, streams *streaming.Service, p *packager.Packager, c *cache.Cache, log logger.Logger) *Server {
	opts.URLPrefix = strings.Trim(opts.URLPrefix, "/")
	if opts.URLPrefix == "" {
		opts.URLPrefix = "hls"
	}
	if opts.Authorizer == nil {
		opts.Authorizer = func(next http.Handler) http.Handler { return next }
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		opts:     opts,
		streams:  streams,
		packager: p,
		cache:    c,
		logger:   log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(mux.MiddlewareFunc(opts.Authorizer))
	api.HandleFunc("/api/stream", s.handleStream).Methods(http.MethodGet)
	api.HandleFunc("/api/download", s.handleDownload).Methods(http.MethodGet)
	for _, prefix := range []string{"/" + opts.URLPrefix + "/", "/api/" + opts.URLPrefix + "/"} {
		api.PathPrefix(prefix).Handler(s.cacheFiles(prefix)).Methods(http.MethodGet, http.MethodHead)
	}

	s.handler = recoveryMiddleware(log, loggingMiddleware(log, metricsMiddleware(opts.URLPrefix, router)))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening", "server", map[string]interface{}{"addr": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped", "server", nil)
	return nil
}

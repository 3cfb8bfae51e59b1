package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func loggingMiddleware(log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.status,
			"bytes":       rw.size,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if q := r.URL.RawQuery; q != "" {
			fields["query"] = q
		}
		switch {
		case rw.status >= http.StatusInternalServerError:
			log.Warn("http request", "server", fields)
		case isMediaFile(r.URL.Path) && rw.status < http.StatusBadRequest:
			log.Debug("http request", "server", fields)
		default:
			log.Info("http request", "server", fields)
		}
	})
}

func recoveryMiddleware(log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error("panic recovered", "server", map[string]interface{}{
					"error":  fmt.Sprint(err),
					"method": r.Method,
					"path":   r.URL.Path,
					"stack":  string(debug.Stack()),
				})
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(urlPrefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := normalizeRoute(urlPrefix, r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses request paths into a bounded set of metric labels.
func normalizeRoute(urlPrefix, p string) string {
	cachePath := strings.HasPrefix(p, "/"+urlPrefix+"/") || strings.HasPrefix(p, "/api/"+urlPrefix+"/")
	switch {
	case p == "/healthz", p == "/api/stream", p == "/api/download":
		return p
	case cachePath && strings.HasSuffix(p, ".m3u8"):
		return "/hls/playlist"
	case cachePath && strings.HasSuffix(p, ".ts"):
		return "/hls/segment"
	case cachePath && strings.HasSuffix(p, ".vtt"):
		return "/hls/subtitle"
	default:
		return "/other"
	}
}

func isMediaFile(p string) bool {
	return strings.HasSuffix(p, ".ts") || strings.HasSuffix(p, ".m3u8") || strings.HasSuffix(p, ".vtt")
}

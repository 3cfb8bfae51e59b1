package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/metrics"
)

type errorEnvelope struct {
	Error *errors.StructuredError `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"jobs":   len(s.streams.Registry().Jobs()),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := s.streams.Stream(r.Context(), q.Get("file"), q.Get("resolution"))
	if err != nil {
		if clientGone(r, err) {
			return
		}
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mimeMPEGURL)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(st.Playlist)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := s.streams.Target(q.Get("file"), q.Get("resolution"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	playlist, err := s.packager.Prepare(target.Key)
	if err != nil {
		if errors.IsType(err, errors.NotFoundError) {
			metrics.DownloadsTotal.WithLabelValues("not_cached").Inc()
		} else {
			metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		}
		s.writeError(w, r, err)
		return
	}
	defer s.packager.Discard(playlist)

	base := strings.TrimSuffix(path.Base(target.Source.Rel), path.Ext(target.Source.Rel))
	if base == "" || base == "." {
		base = target.Key.Base
	}
	w.Header().Set("Content-Type", mimeMP4)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mp4"`, url.PathEscape(base)))

	cw := &countingWriter{w: w}
	if err := s.packager.Remux(r.Context(), playlist, cw); err != nil {
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		if clientGone(r, err) {
			return
		}
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			s.writeError(w, r, err)
			return
		}
		// The body has started, so the connection just ends.
		s.logger.Error("Remux failed mid-download", "server", map[string]interface{}{
			"folder": target.Key.Folder(),
			"bytes":  cw.n,
			"error":  err.Error(),
		})
		return
	}
	metrics.DownloadsTotal.WithLabelValues("ok").Inc()
}

// writeError answers with the JSON form of err and the status it maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	se, ok := errors.As(err)
	if !ok {
		se = errors.Wrap(err, errors.SystemError, "Internal server error.", 0)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	fields := map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
		"error":  err.Error(),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "server", fields)
	} else {
		s.logger.Debug("Request rejected", "server", fields)
	}
	writeJSON(w, status, errorEnvelope{Error: se})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// clientGone reports whether the request was abandoned, in which case there
// is nobody left to answer.
func clientGone(r *http.Request, err error) bool {
	return r.Context().Err() != nil || stderrors.Is(err, context.Canceled)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

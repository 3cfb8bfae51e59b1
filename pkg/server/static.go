package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/packager"
)

// contentType returns the MIME type of a cache file, or "" to let
// http.ServeContent decide.
func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return mimeMPEGURL
	case ".ts":
		return mimeMP2T
	case ".vtt":
		return mimeVTT
	default:
		return ""
	}
}

// servable reports whether rel, a cleaned slash path below the cache root,
// may be sent to clients. Lock files, other dotfiles and temporary download
// playlists stay private.
func servable(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == "" || strings.HasPrefix(part, ".") {
			return false
		}
	}
	base := path.Base(rel)
	return !packager.IsTempPlaylist(base) && !strings.HasSuffix(base, ".tmp")
}

// cacheFiles serves rendition files below prefix and records playback
// activity for the job writing them.
func (s *Server) cacheFiles(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, prefix)), "/")
		if !servable(rel) {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(filepath.Join(s.cache.Root(), filepath.FromSlash(rel)))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		s.streams.Touch(path.Dir(rel))

		if ct := contentType(rel); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		if strings.HasSuffix(rel, ".m3u8") {
			w.Header().Set("Cache-Control", "no-cache")
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

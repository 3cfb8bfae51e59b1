package streaming

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/heyjunin/hlsvault/pkg/errors"
)

// Source is a resolved source video.
type Source struct {
	// Path is the absolute filesystem path.
	Path string
	// Rel is the slash-separated path below the media root. Empty when the
	// source lives outside it.
	Rel string
}

// Relative reports whether the source is inside the media root.
func (s Source) Relative() bool {
	return s.Rel != ""
}

// KeyPath is the path a rendition key is derived from.
func (s Source) KeyPath() string {
	if s.Relative() {
		return s.Rel
	}
	return s.Path
}

// SourceResolver turns the file parameter of a request into a Source.
type SourceResolver interface {
	Resolve(ref string) (Source, error)
}

// RootResolver confines sources to a media root. It accepts paths relative to
// the root, paths that start with the root's own directory name
// ("uploads/movie.mp4"), and absolute paths under the root.
type RootResolver struct {
	root string
	name string
}

// NewRootResolver returns a resolver over root.
func NewRootResolver(root string) *RootResolver {
	root = filepath.Clean(root)
	return &RootResolver{root: root, name: filepath.Base(root)}
}

// Root returns the media root.
func (r *RootResolver) Root() string {
	return r.root
}

func (r *RootResolver) Resolve(ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Source{}, errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrMissingFileParam), "", errors.ErrMissingFileParam)
	}
	if strings.ContainsRune(ref, 0) {
		return Source{}, invalidPath(ref)
	}

	if filepath.IsAbs(ref) {
		rel, err := filepath.Rel(r.root, filepath.Clean(ref))
		if err != nil || !local(filepath.ToSlash(rel)) {
			return Source{}, invalidPath(ref)
		}
		return r.source(filepath.ToSlash(rel)), nil
	}

	rel := path.Clean(strings.ReplaceAll(ref, `\`, "/"))
	if rel == r.name {
		return Source{}, invalidPath(ref)
	}
	rel = strings.TrimPrefix(rel, r.name+"/")
	if !local(rel) {
		return Source{}, invalidPath(ref)
	}
	return r.source(rel), nil
}

func (r *RootResolver) source(rel string) Source {
	return Source{
		Path: filepath.Join(r.root, filepath.FromSlash(rel)),
		Rel:  rel,
	}
}

// local reports whether a cleaned slash path names a file strictly below the root.
func local(rel string) bool {
	if rel == "." || rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

func invalidPath(ref string) error {
	return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidSourcePath), ref, errors.ErrInvalidSourcePath)
}

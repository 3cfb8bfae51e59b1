// Package cache maps rendition keys to directories under the cache root.
// The filesystem is the only record of what has been encoded.
package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// LockName is the advisory lock file held while a rendition is being written.
const LockName = ".encode.lock"

// Cache is a rendition cache rooted at a directory.
type Cache struct {
	root string
}

// New returns a Cache rooted at root.
func New(root string) *Cache {
	return &Cache{root: filepath.Clean(root)}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Dir returns the rendition directory for key.
func (c *Cache) Dir(key rendition.Key) string {
	return filepath.Join(c.root, filepath.FromSlash(key.Folder()))
}

// MasterPath returns the path of the master playlist for key.
func (c *Cache) MasterPath(key rendition.Key) string {
	return filepath.Join(c.Dir(key), hls.MasterName)
}

// Lookup reports whether a complete rendition exists for key. A directory
// holding segments from an interrupted encode is a miss.
func (c *Cache) Lookup(key rendition.Key) bool {
	info, err := os.Stat(c.Dir(key))
	if err != nil || !info.IsDir() {
		return false
	}
	return hls.IsComplete(c.Dir(key))
}

// EnsureDir creates the rendition directory for key if needed.
func (c *Cache) EnsureDir(key rendition.Key) (string, error) {
	dir := c.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, errors.GetErrorMessage(errors.ErrCacheDirCreate), errors.ErrCacheDirCreate)
	}
	return dir, nil
}

// Open opens the master playlist of key for reading.
func (c *Cache) Open(key rendition.Key) (*os.File, error) {
	f, err := os.Open(c.MasterPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.NotFoundError, errors.GetErrorMessage(errors.ErrRenditionNotCached), errors.ErrRenditionNotCached)
		}
		return nil, errors.Wrap(err, errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistRead), errors.ErrPlaylistRead)
	}
	return f, nil
}

// Lock returns the advisory file lock guarding writes to key's directory.
// The directory must exist before the lock is taken.
func (c *Cache) Lock(key rendition.Key) *flock.Flock {
	return flock.New(filepath.Join(c.Dir(key), LockName))
}

// Entry describes one rendition found on disk.
type Entry struct {
	Folder   string
	Complete bool
	Size     int64
	Segments int
	ModTime  time.Time
}

// List walks the cache root and returns every directory holding a master
// playlist, sorted by folder.
func (c *Cache) List() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root && os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		info, err := os.Stat(filepath.Join(path, hls.MasterName))
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		entry := Entry{
			Folder:   filepath.ToSlash(rel),
			Complete: hls.IsComplete(path),
			ModTime:  info.ModTime(),
		}
		entry.Size, entry.Segments = dirUsage(path)
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to list cache", errors.ErrCacheDirCreate)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Folder < entries[j].Folder })
	return entries, nil
}

func dirUsage(dir string) (int64, int) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	var size int64
	var segments int
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		if info, err := item.Info(); err == nil {
			size += info.Size()
		}
		if strings.HasSuffix(item.Name(), ".ts") {
			segments++
		}
	}
	return size, segments
}

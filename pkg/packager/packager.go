// Package packager turns a cached HLS rendition back into a single MP4 for
// download, remuxing without re-encoding.
package packager

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heyjunin/hlsvault/pkg/cache"
	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/ffmpeg"
	"github.com/heyjunin/hlsvault/pkg/hls"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// TempPrefix starts the name of every temporary download playlist.
const TempPrefix = "download-"

const (
	cleanupAttempts = 3
	cleanupDelay    = time.Second
)

// Packager remuxes cached renditions.
type Packager struct {
	cache        *cache.Cache
	urlPrefix    string
	ffmpegBinary string
	logger       logger.Logger
	retryDelay   time.Duration
}

// New creates a Packager. urlPrefix is the same prefix the encoder wrote in
// front of segment names, usually "hls".
func New(c *cache.Cache, urlPrefix, ffmpegBinary string, log logger.Logger) *Packager {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Packager{
		cache:        c,
		urlPrefix:    urlPrefix,
		ffmpegBinary: ffmpegBinary,
		logger:       log,
		retryDelay:   cleanupDelay,
	}
}

// IsTempPlaylist reports whether name is a temporary download playlist.
func IsTempPlaylist(name string) bool {
	return strings.HasPrefix(name, TempPrefix) && strings.HasSuffix(name, ".m3u8")
}

// Prepare writes a VOD copy of key's media playlist with bare segment names
// next to the segments and returns its path.
func (p *Packager) Prepare(key rendition.Key) (string, error) {
	if !p.cache.Lookup(key) {
		return "", errors.New(errors.NotFoundError, errors.GetErrorMessage(errors.ErrRenditionNotCached), key.Folder(), errors.ErrRenditionNotCached)
	}
	dir := p.cache.Dir(key)

	data, err := os.ReadFile(p.cache.MasterPath(key))
	if err != nil {
		return "", errors.Wrap(err, errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistRead), errors.ErrPlaylistRead)
	}
	content := string(data)

	if hls.IsMultivariant(content) {
		uri := hls.VariantURI(content)
		if uri == "" {
			return "", errors.New(errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistMalformed), "master has no variant URI", errors.ErrPlaylistMalformed)
		}
		media, err := os.ReadFile(hls.VariantPath(dir, uri))
		if err != nil {
			return "", errors.Wrap(err, errors.HLSError, errors.GetErrorMessage(errors.ErrPlaylistRead), errors.ErrPlaylistRead)
		}
		content = string(media)
	}

	rewritten := hls.RewriteForRemux(content, key.URLPrefix(p.urlPrefix))
	tmp := filepath.Join(dir, TempPrefix+uuid.NewString()+".m3u8")
	if err := os.WriteFile(tmp, []byte(rewritten), 0o644); err != nil {
		return "", errors.Wrap(err, errors.PackagingError, errors.GetErrorMessage(errors.ErrRemuxPrepare), errors.ErrRemuxPrepare)
	}
	return tmp, nil
}

// RemuxArgs returns the ffmpeg arguments that copy the streams of playlist
// into a fragmented MP4 on stdout.
func RemuxArgs(playlist string) []string {
	return []string{
		"-hide_banner",
		"-allowed_extensions", "ALL",
		"-protocol_whitelist", "file,http,https,tcp,tls",
		"-analyzeduration", "20000000",
		"-probesize", "20000000",
		"-i", playlist,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	}
}

// Remux streams playlist as MP4 into w.
func (p *Packager) Remux(ctx context.Context, playlist string, w io.Writer) error {
	cmd := ffmpeg.Command(ctx, p.ffmpegBinary, RemuxArgs(playlist)...)
	cmd.Stdout = w
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.PackagingError, errors.GetErrorMessage(errors.ErrRemuxFailed), errors.ErrRemuxFailed)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.PackagingError, errors.GetErrorMessage(errors.ErrRemuxFailed), errors.ErrRemuxFailed)
	}

	tail := ffmpeg.NewTail(10)
	scanner := bufio.NewScanner(stderr)
	scanner.Split(ffmpeg.ScanLines)
	for scanner.Scan() {
		tail.Add(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		se := errors.Wrap(err, errors.PackagingError, errors.GetErrorMessage(errors.ErrRemuxFailed), errors.ErrRemuxFailed)
		if t := tail.String(); t != "" {
			se.Details = err.Error() + "\n" + t
		}
		return se
	}
	return nil
}

// Package remuxes key into w and removes the temporary playlist in the background.
func (p *Packager) Package(ctx context.Context, key rendition.Key, w io.Writer) error {
	tmp, err := p.Prepare(key)
	if err != nil {
		return err
	}
	defer p.Discard(tmp)

	p.logger.Info("Remuxing rendition for download", "packager", map[string]interface{}{
		"folder":   key.Folder(),
		"playlist": filepath.Base(tmp),
	})
	return p.Remux(ctx, tmp, w)
}

// Export remuxes key into the file at outPath.
func (p *Packager) Export(ctx context.Context, key rendition.Key, outPath string) error {
	tmp, err := p.Prepare(key)
	if err != nil {
		return err
	}
	defer p.cleanup(tmp)

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrCacheDirCreate)
		}
	}
	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, errors.PackagingError, errors.GetErrorMessage(errors.ErrRemuxPrepare), errors.ErrRemuxPrepare)
	}
	if err := p.Remux(ctx, tmp, out); err != nil {
		out.Close()
		_ = os.Remove(outPath)
		return err
	}
	return out.Close()
}

// Discard removes a playlist returned by Prepare without blocking the caller.
func (p *Packager) Discard(playlist string) {
	go p.cleanup(playlist)
}

// cleanup removes path, retrying while another reader may still hold it open.
func (p *Packager) cleanup(path string) {
	var err error
	for i := 0; i < cleanupAttempts; i++ {
		err = os.Remove(path)
		if err == nil || os.IsNotExist(err) {
			return
		}
		time.Sleep(p.retryDelay)
	}
	p.logger.Warn("Failed to remove temporary playlist", "packager", map[string]interface{}{
		"path":  path,
		"error": err.Error(),
	})
}

// Package acquire resolves a source reference to a local file, downloading
// http(s) URLs into the media library first.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/heyjunin/hlsvault/pkg/errors"
	"github.com/heyjunin/hlsvault/pkg/logger"
	"github.com/heyjunin/hlsvault/pkg/progress"
	"github.com/heyjunin/hlsvault/pkg/rendition"
)

// DefaultTimeout bounds a whole download.
const DefaultTimeout = 30 * time.Minute

// Options configures an Acquirer.
type Options struct {
	// Dir receives downloaded files, normally the media root.
	Dir string
	// Timeout defaults to 30 minutes.
	Timeout time.Duration
	// Progress, when set, receives downloaded bytes.
	Progress progress.Reporter
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// Acquirer fetches sources.
type Acquirer struct {
	client *http.Client
	opts   Options
	now    func() time.Time
}

// New creates an Acquirer.
func New(opts Options) *Acquirer {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Acquirer{client: client, opts: opts, now: time.Now}
}

// IsRemote reports whether ref is an http or https URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Fetch returns a local path for ref. Local paths must exist and are returned
// as is. URLs are downloaded into Dir as "<name>_<unix time><ext>"; name
// defaults to the URL's file name.
func (a *Acquirer) Fetch(ctx context.Context, ref, name string) (string, error) {
	if !IsRemote(ref) {
		info, err := os.Stat(ref)
		if err != nil || info.IsDir() {
			return "", errors.New(errors.NotFoundError, errors.GetErrorMessage(errors.ErrSourceNotFound), ref, errors.ErrSourceNotFound)
		}
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing host")
		}
		return "", errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidSourceURL), errors.ErrInvalidSourceURL)
	}

	target := filepath.Join(a.opts.Dir, a.fileName(u, name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create download directory", errors.ErrDownloadWrite)
	}
	if err := a.download(ctx, u.String(), target); err != nil {
		return "", err
	}
	return target, nil
}

func (a *Acquirer) fileName(u *url.URL, name string) string {
	base := path.Base(u.Path)
	ext := path.Ext(base)
	if ext == "" || len(ext) > 6 {
		ext = ".mp4"
	}
	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(base, path.Ext(base))
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	return fmt.Sprintf("%s_%d%s", rendition.Sanitize(name), a.now().Unix(), ext)
}

func (a *Acquirer) download(ctx context.Context, rawURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadRequest), errors.ErrDownloadRequest)
	}

	logger.Info("Starting download", "acquire", map[string]interface{}{
		"url":  rawURL,
		"path": target,
	})

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadRequest), errors.ErrDownloadRequest)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadStatus), fmt.Sprintf("Status: %s", resp.Status), errors.ErrDownloadStatus)
	}

	part := target + ".part"
	file, err := os.Create(part)
	if err != nil {
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadWrite), errors.ErrDownloadWrite)
	}

	var reader io.Reader = resp.Body
	if rep := a.opts.Progress; rep != nil && resp.ContentLength > 0 {
		rep.Start(resp.ContentLength)
		reader = &progressReader{reader: resp.Body, reporter: rep}
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		_ = os.Remove(part)
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadWrite), errors.ErrDownloadWrite)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(part)
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadWrite), errors.ErrDownloadWrite)
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return errors.Wrap(err, errors.DownloadError, errors.GetErrorMessage(errors.ErrDownloadWrite), errors.ErrDownloadWrite)
	}

	if a.opts.Progress != nil && resp.ContentLength > 0 {
		a.opts.Progress.Complete()
	}
	logger.Info("Download completed", "acquire", map[string]interface{}{"path": target})
	return nil
}

// progressReader reports bytes read so far to a Reporter.
type progressReader struct {
	reader   io.Reader
	reporter progress.Reporter
	read     int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.reporter.Update(pr.read, "downloading", "Downloading source")
	}
	return n, err
}

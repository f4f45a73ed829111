// Package fetch downloads source archives into a shared cache and unpacks them.
package fetch

import (
	"context"
	_ "crypto/sha256" // register sha256 for go-digest
	_ "crypto/sha512" // register sha384/sha512 for go-digest
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single archive download.
const DefaultTimeout = 10 * time.Minute

var _ ports.Downloader = (*Cache)(nil)

// Cache implements ports.Downloader. Archives are downloaded once per
// (url, checksum) key and shared by every run of the process and of later
// processes using the same directory.
type Cache struct {
	dir    string
	client *http.Client
	logger ports.Logger

	requestGroup singleflight.Group
}

// DefaultDir returns the per-user download cache directory.
func DefaultDir() string {
	return filepath.Join(xdg.CacheHome, domain.AppName, domain.DownloadsDirName)
}

// NewCache creates a Cache rooted at dir.
func NewCache(dir string, client *http.Client, logger ports.Logger) *Cache {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Cache{dir: dir, client: client, logger: logger}
}

// Fetch returns the local path of the archive at rawURL.
// http and https URLs are downloaded into the cache; file URLs and plain
// paths are read in place. When checksum is set the content is verified
// against it, including on cache hits.
func (c *Cache) Fetch(ctx context.Context, rawURL, checksum string) (string, error) {
	var want digest.Digest
	if checksum != "" {
		d, err := digest.Parse(checksum)
		if err != nil {
			return "", &domain.FetchError{
				Kind: domain.FetchChecksumMismatch,
				URL:  rawURL,
				Err:  zerr.With(zerr.Wrap(err, "invalid checksum"), "checksum", checksum),
			}
		}
		want = d
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Err: err}
	}

	switch u.Scheme {
	case "", "file":
		return c.local(rawURL, localPath(u, rawURL), want)
	case "http", "https":
	default:
		return "", &domain.FetchError{
			Kind: domain.FetchUnsupported,
			URL:  rawURL,
			Err:  zerr.With(zerr.New("unsupported URL scheme"), "scheme", u.Scheme),
		}
	}

	key := digest.FromString(rawURL + "\x00" + checksum).Encoded()[:32]

	// Wrap the download in singleflight so concurrent runs share one transfer.
	result, err, shared := c.requestGroup.Do(key, func() (any, error) {
		dst := filepath.Join(c.dir, key, archiveName(u))
		if _, statErr := os.Stat(dst); statErr == nil {
			if verr := verifyFile(dst, want); verr == nil {
				return dst, nil
			}
			c.logger.Warn(fmt.Sprintf("cached archive %s failed verification, downloading again", dst))
			_ = os.Remove(dst)
		}

		if err := c.download(ctx, rawURL, dst, want); err != nil {
			return nil, err
		}
		return dst, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.logger.Info("shared download of " + rawURL)
	}
	return result.(string), nil
}

func (c *Cache) local(rawURL, p string, want digest.Digest) (string, error) {
	if _, err := os.Stat(p); err != nil {
		return "", &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Err: err}
	}
	if err := verifyFile(p, want); err != nil {
		return "", &domain.FetchError{Kind: domain.FetchChecksumMismatch, URL: rawURL, Err: err}
	}
	return p, nil
}

func (c *Cache) download(ctx context.Context, rawURL, dst string, want digest.Digest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return &domain.FetchError{Kind: domain.FetchNetwork, URL: rawURL, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.FetchError{Kind: classify(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Err: zerr.With(zerr.New("unexpected status"), "status", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.FetchError{Kind: domain.FetchNetwork, URL: rawURL, Err: zerr.With(zerr.New("unexpected status"), "status", resp.StatusCode)}
	}

	if err := os.MkdirAll(filepath.Dir(dst), domain.DirPerm); err != nil {
		return cacheError(rawURL, zerr.With(zerr.Wrap(err, "failed to create cache directory"), "path", filepath.Dir(dst)))
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return cacheError(rawURL, zerr.Wrap(err, "failed to create temp file"))
	}
	tmpName := tmpFile.Name()

	// Clean up temp file on error
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	digester := digest.Canonical.Digester()
	var w io.Writer
	var verifier digest.Verifier
	if want != "" {
		verifier = want.Verifier()
		w = io.MultiWriter(tmpFile, verifier)
	} else {
		w = io.MultiWriter(tmpFile, digester.Hash())
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmpFile.Close()
		return &domain.FetchError{Kind: classify(err), URL: rawURL, Err: err}
	}
	if err := tmpFile.Close(); err != nil {
		return cacheError(rawURL, zerr.Wrap(err, "failed to close temp file"))
	}

	if verifier != nil && !verifier.Verified() {
		return &domain.FetchError{
			Kind: domain.FetchChecksumMismatch,
			URL:  rawURL,
			Err:  zerr.With(zerr.New("content does not match checksum"), "expected", want.String()),
		}
	}
	if want == "" {
		c.logger.Info(fmt.Sprintf("downloaded %s without checksum (%s)", rawURL, digester.Digest()))
	}

	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return cacheError(rawURL, zerr.Wrap(err, "failed to chmod download"))
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return cacheError(rawURL, zerr.Wrap(err, "failed to move download into cache"))
	}
	return nil
}

func cacheError(rawURL string, err error) error {
	return &domain.FetchError{Kind: domain.FetchCache, URL: rawURL, Err: err}
}

// verifyFile checks path against want. An empty want always passes.
func verifyFile(p string, want digest.Digest) error {
	if want == "" {
		return nil
	}
	f, err := os.Open(p) //nolint:gosec // path is a cache entry or a recipe-provided file
	if err != nil {
		return zerr.Wrap(err, "failed to open archive")
	}
	defer f.Close() //nolint:errcheck // read-only

	verifier := want.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		return zerr.Wrap(err, "failed to read archive")
	}
	if !verifier.Verified() {
		return zerr.With(zerr.New("content does not match checksum"), "expected", want.String())
	}
	return nil
}

func classify(err error) domain.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchNetworkTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FetchNetworkTimeout
	}
	return domain.FetchNetwork
}

func localPath(u *url.URL, raw string) string {
	if u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return raw
}

func archiveName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "archive"
	}
	return name
}

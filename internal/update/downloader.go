package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/adamancini/upkeep/internal/logging"
	"github.com/adamancini/upkeep/internal/release"
)

// maxArtifactBytes caps downloads whose descriptor does not declare a size.
const maxArtifactBytes = 500 << 20

// Downloader streams release artifacts into a per-operation staging
// directory, dispatching on the URL scheme.
type Downloader struct {
	stagingDir string
	transports map[string]Transport
	maxBytes   int64
	logger     *log.Logger
}

// NewDownloader creates a downloader that stages under stagingDir. http,
// https and file are registered; other schemes are added with Register.
func NewDownloader(stagingDir string, client *http.Client, logger *log.Logger) *Downloader {
	httpTransport := &HTTPTransport{Client: client}
	return &Downloader{
		stagingDir: stagingDir,
		transports: map[string]Transport{
			"http":  httpTransport,
			"https": httpTransport,
			"file":  FileTransport{},
		},
		maxBytes: maxArtifactBytes,
		logger:   logging.OrDiscard(logger),
	}
}

// LimitUndeclared lowers the cap applied to artifacts that do not declare a
// size. Values <= 0 or above the default cap are ignored.
func (d *Downloader) LimitUndeclared(n int64) {
	if n > 0 && n < maxArtifactBytes {
		d.maxBytes = n
	}
}

// Register installs t for scheme, replacing any previous transport.
func (d *Downloader) Register(scheme string, t Transport) {
	d.transports[strings.ToLower(scheme)] = t
}

// OperationDir returns the staging directory of one operation.
func (d *Downloader) OperationDir(opID string) string {
	return filepath.Join(d.stagingDir, opID)
}

// Fetch resolves the artifact of desc for p and downloads it into the staging
// directory of opID. It returns the staged file path and the resolved
// artifact. Every error wraps ErrDownloadFailed and leaves no partial file.
func (d *Downloader) Fetch(ctx context.Context, desc *release.Descriptor, p Platform, opID string) (string, release.ArtifactRef, error) {
	art, key, err := ResolveArtifact(desc, p)
	if err != nil {
		return "", release.ArtifactRef{}, err
	}

	staged, err := d.FetchArtifact(ctx, art, opID)
	if err != nil {
		return "", art, err
	}
	d.logger.Debug("Staged artifact", "platform", key, "path", staged)
	return staged, art, nil
}

// FetchArtifact downloads art into the staging directory of opID.
func (d *Downloader) FetchArtifact(ctx context.Context, art release.ArtifactRef, opID string) (string, error) {
	u, err := url.Parse(art.URL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid artifact URL: %w", ErrDownloadFailed, err)
	}
	t, ok := d.transports[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported URL scheme %q", ErrDownloadFailed, u.Scheme)
	}

	dir := d.OperationDir(opID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("%w: failed to create staging directory: %w", ErrDownloadFailed, err)
	}
	staged := filepath.Join(dir, stagedName(u))

	d.logger.Info("Downloading artifact", "url", u.Redacted(), "size", art.Size)

	if err := d.download(ctx, t, u, staged, art.Size); err != nil {
		os.Remove(staged)
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return staged, nil
}

func (d *Downloader) download(ctx context.Context, t Transport, u *url.URL, dst string, size int64) error {
	body, err := t.Open(ctx, u)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create staged file: %w", err)
	}

	limit := d.maxBytes
	if size > 0 {
		limit = size
	}
	n, copyErr := io.Copy(out, io.LimitReader(ctxReader{ctx: ctx, r: body}, limit+1))
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		return fmt.Errorf("transfer interrupted after %d bytes: %w", n, copyErr)
	case closeErr != nil:
		return fmt.Errorf("failed to write staged file: %w", closeErr)
	case n > limit && size > 0:
		return fmt.Errorf("artifact larger than declared size %d", size)
	case n > limit:
		return fmt.Errorf("artifact exceeds %d bytes", limit)
	case size > 0 && n != size:
		return fmt.Errorf("truncated artifact: got %d of %d bytes", n, size)
	}
	return nil
}

// Discard removes the staging directory of opID.
func (d *Downloader) Discard(opID string) {
	if err := os.RemoveAll(d.OperationDir(opID)); err != nil {
		d.logger.Warn("Failed to clean staging directory", "op", opID, "error", err)
	}
}

// stagedName derives a local file name from the URL path. The name keeps the
// archive suffix so the format can still be inferred.
func stagedName(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	name := path.Base(p)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "artifact"
	}
	return strings.Map(func(r rune) rune {
		if r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)
}

// ctxReader stops reading once ctx is done, so transports that ignore the
// context still honour the download timeout.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

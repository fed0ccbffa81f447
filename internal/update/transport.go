package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// HTTPTransport fetches http and https artifact URLs.
type HTTPTransport struct {
	Client *http.Client
}

// Open issues a GET and returns the body for a 2xx response.
func (t *HTTPTransport) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u.Redacted(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, u.Redacted())
	}
	return resp.Body, nil
}

// FileTransport reads file:// URLs from the local filesystem.
type FileTransport struct{}

// Open opens the local file named by u.
func (FileTransport) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return nil, fmt.Errorf("file URL %q has no path", u.String())
	}
	f, err := os.Open(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adamancini/upkeep/internal/codec"
)

// maxFeedBytes caps the size of a feed response.
const maxFeedBytes = 1 << 20

// FeedClient fetches the latest release descriptor for a channel.
type FeedClient struct {
	baseURL string
	token   string // Optional bearer token
	client  *http.Client
}

// NewFeedClient creates a feed client for baseURL.
func NewFeedClient(baseURL string) *FeedClient {
	return &FeedClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithToken sets an optional bearer token.
func (c *FeedClient) WithToken(token string) *FeedClient {
	c.token = token
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *FeedClient) WithHTTPClient(client *http.Client) *FeedClient {
	c.client = client
	return c
}

// Latest fetches the latest release published on channel.
func (c *FeedClient) Latest(ctx context.Context, channel string) (*Descriptor, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	if channel != "" {
		q := u.Query()
		q.Set("channel", channel)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read release feed: %w", err)
	}
	if len(body) > maxFeedBytes {
		return nil, fmt.Errorf("release feed response exceeds %d bytes", maxFeedBytes)
	}

	format := codec.Sniff(body)
	if format == codec.FormatUnknown {
		return nil, fmt.Errorf("release feed returned an unrecognised document")
	}

	d, err := Parse(body, format)
	if err != nil {
		return nil, err
	}
	if channel != "" && d.Channel != channel {
		return nil, fmt.Errorf("release feed returned channel %q, requested %q", d.Channel, channel)
	}
	return d, nil
}

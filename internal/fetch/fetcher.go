// Package fetch downloads source images from their identifier URLs.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/greut/aio-iiif/internal/config"
)

// ErrTooLarge is wrapped in an *Error when a source exceeds the size limit.
var ErrTooLarge = errors.New("source image too large")

// Error describes a failed download. StatusCode is set when the upstream
// answered with a non-success status, and is 0 for transport failures.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: upstream returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetcher downloads the bytes behind an identifier URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the net/http Fetcher. It does not retry.
type HTTPFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *zap.Logger
}

// NewHTTPFetcher creates a fetcher using the given client. Pass nil to get
// a client with the configured timeout.
func NewHTTPFetcher(client *http.Client, cfg config.FetchConfig, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPFetcher{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// Fetch downloads url. The request is bound to ctx, so a client that goes
// away aborts the download.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Debug("upstream rejected fetch",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &Error{URL: url, StatusCode: resp.StatusCode}
	}

	// Read one byte past the limit so an oversized body is an error rather
	// than a silently truncated (and undecodable) image.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &Error{URL: url, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)}
	}

	f.logger.Debug("fetched source",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BlobFetcher materializes reference bytes for a URI. The orchestration core
// uses it only to catalog reference assets for workers; it never fetches
// generation inputs itself.
type BlobFetcher interface {
	// FetchBytes returns the blob at uri, or nil when it does not exist.
	FetchBytes(ctx context.Context, uri string) ([]byte, error)
}

// HTTPBlobFetcher fetches blobs over HTTP(S).
type HTTPBlobFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPBlobFetcher creates a fetcher with a bounded response size.
func NewHTTPBlobFetcher(maxBytes int64) *HTTPBlobFetcher {
	return &HTTPBlobFetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: maxBytes,
	}
}

// FetchBytes implements BlobFetcher.FetchBytes
func (h *HTTPBlobFetcher) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

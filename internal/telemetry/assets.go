package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPAssetLoader fetches level images from the binary asset service at
// {baseURL}/{assetID}.
type HTTPAssetLoader struct {
	baseURL  string
	token    string
	maxBytes int64
	client   *http.Client
}

// NewHTTPAssetLoader creates a loader. maxBytes bounds a single asset.
func NewHTTPAssetLoader(baseURL, token string, timeout time.Duration, maxBytes int64) *HTTPAssetLoader {
	return &HTTPAssetLoader{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
	}
}

// Load fetches the asset and returns its bytes and content type.
func (l *HTTPAssetLoader) Load(ctx context.Context, assetID string) ([]byte, string, error) {
	u := l.baseURL + "/" + url.PathEscape(assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrAssetFetchFailed, err)
	}
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrAssetFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("%w: %s returned %d", ErrAssetFetchFailed, assetID, resp.StatusCode)
	}
	if l.maxBytes > 0 && resp.ContentLength > l.maxBytes {
		return nil, "", fmt.Errorf("%w: %s is %d bytes", ErrAssetTooLarge, assetID, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if l.maxBytes > 0 {
		body = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s: %w", ErrAssetFetchFailed, assetID, err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrAssetTooLarge, assetID, l.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxBytes caps the size of a single fetched asset.
const DefaultMaxBytes = 32 << 20

// HTTPResolver fetches assets relative to a base URL.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPResolver creates a new HTTPResolver.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: DefaultMaxBytes,
	}
}

// ResolvePath returns the URL of name below the base URL.
func (r *HTTPResolver) ResolvePath(name string) string {
	u, err := url.JoinPath(r.baseURL, name)
	if err != nil {
		return r.baseURL + "/" + strings.TrimLeft(name, "/")
	}
	return u
}

// FetchBytes downloads uri. Any status other than 200 is an error.
func (r *HTTPResolver) FetchBytes(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetch, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute request: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrFetch, uri, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrFetch, err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, uri, r.maxBytes)
	}
	return data, nil
}

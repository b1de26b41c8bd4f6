package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single backend round trip.
const DefaultTimeout = 30 * time.Second

// HTTPGetter talks to a dashboard API over plain HTTP.
type HTTPGetter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGetter returns an HTTPGetter for baseURL. A non-positive timeout
// selects DefaultTimeout.
func NewHTTPGetter(baseURL string, timeout time.Duration) *HTTPGetter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPGetter{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the configured base URL.
func (g *HTTPGetter) BaseURL() string { return g.baseURL }

// Get issues GET {baseURL}/{endpoint}?{params}.
func (g *HTTPGetter) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := g.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", endpoint, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

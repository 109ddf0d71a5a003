// Package inventory counts devices through the device inventory service.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrUnexpectedStatus is returned for any non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status from inventory service")

	// ErrNoCount is returned when a response carries neither an
	// X-Total-Count header nor a count body.
	ErrNoCount = errors.New("inventory response has no count")
)

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the device count queries the planner needs.
type Client interface {
	// AcceptedDevicesCount returns the number of accepted devices.
	AcceptedDevicesCount(ctx context.Context) (int, error)

	// GroupDevicesCount returns the number of devices in a static group.
	GroupDevicesCount(ctx context.Context, group string) (int, error)

	// FilterPreviewCount returns the number of devices matching a saved filter.
	FilterPreviewCount(ctx context.Context, filterID string) (int, error)
}

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// HTTPClient implements Client over the inventory service's JSON API.
type HTTPClient struct {
	baseURL         string
	token           string
	previewPageSize int
	httpClient      *http.Client
}

// Config holds configuration for the inventory client.
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	PreviewPageSize int
}

// DefaultConfig returns default inventory client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8081/api/management/v1/inventory",
		Timeout:         10 * time.Second,
		PreviewPageSize: 10,
	}
}

// NewHTTPClient creates a new inventory client.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PreviewPageSize <= 0 {
		cfg.PreviewPageSize = 10
	}

	return &HTTPClient{
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		previewPageSize: cfg.PreviewPageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// countResponse is the body shape of count endpoints.
type countResponse struct {
	Count *int `json:"count"`
}

// AcceptedDevicesCount queries /devices/count?status=accepted.
func (c *HTTPClient) AcceptedDevicesCount(ctx context.Context) (int, error) {
	return c.count(ctx, "/devices/count", url.Values{"status": {"accepted"}})
}

// GroupDevicesCount queries the first page of the group's device list and
// reads the total from the response.
func (c *HTTPClient) GroupDevicesCount(ctx context.Context, group string) (int, error) {
	path := "/groups/" + url.PathEscape(group) + "/devices"
	return c.count(ctx, path, url.Values{"page": {"1"}, "per_page": {"1"}})
}

// FilterPreviewCount fetches one preview page of the filter's matches.
func (c *HTTPClient) FilterPreviewCount(ctx context.Context, filterID string) (int, error) {
	path := "/filters/" + url.PathEscape(filterID) + "/devices"
	return c.count(ctx, path, url.Values{"page": {"1"}, "per_page": {strconv.Itoa(c.previewPageSize)}})
}

func (c *HTTPClient) count(ctx context.Context, path string, query url.Values) (int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: %d %s: %s", ErrUnexpectedStatus, resp.StatusCode, path, string(respBody))
	}

	if total := resp.Header.Get("X-Total-Count"); total != "" {
		n, err := strconv.Atoi(total)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad X-Total-Count %q", ErrNoCount, total)
		}
		return n, nil
	}

	var body countResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Count == nil {
		return 0, ErrNoCount
	}
	return *body.Count, nil
}

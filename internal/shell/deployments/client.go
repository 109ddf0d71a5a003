// Package deployments submits rollouts to the deployment creation service.
package deployments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/rollout/internal/core/deployment"
)

// =============================================================================
// Errors
// =============================================================================

// ErrMissingLocation is returned when a 201 response has no Location header.
var ErrMissingLocation = errors.New("deployment created without a location")

// APIError is a non-2xx reply from the deployment creation service. Message
// is the service's own error text, shown to the user verbatim.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("deployment service returned %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("deployment service returned %d: %s", e.StatusCode, e.Message)
}

// errorResponse is the error body of the deployment creation service.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the interface for creating deployments.
type Client interface {
	// CreateDeployment submits req and returns the new deployment's location.
	CreateDeployment(ctx context.Context, req deployment.CreateRequest) (string, error)
}

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// HTTPClient implements Client for the deployment creation API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds configuration for the deployments client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// DefaultConfig returns default deployments client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8082/api/management/v1/deployments",
		Timeout: 30 * time.Second,
	}
}

// NewHTTPClient creates a new deployments client.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CreateDeployment POSTs req to /deployments. No retries are attempted.
func (c *HTTPClient) CreateDeployment(ctx context.Context, req deployment.CreateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal deployment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/deployments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send deployment request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", ErrMissingLocation
	}
	return location, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		if body.RequestID != "" {
			apiErr.RequestID = body.RequestID
		}
		return apiErr
	}

	apiErr.Message = string(bytes.TrimSpace(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

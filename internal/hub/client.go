package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/occulog/occulog-core/internal/infrastructure/config"
)

// Client talks to the hub's directory HTTP API.
//
// All methods are safe for concurrent use; the underlying http.Client
// handles connection pooling.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a hub client from configuration.
func NewClient(cfg config.HubConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetDevices returns the full device inventory.
func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.get(ctx, "/api/v1/devices", &devices); err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}
	return devices, nil
}

// GetZones returns the full zone inventory.
func (c *Client) GetZones(ctx context.Context) ([]Zone, error) {
	var zones []Zone
	if err := c.get(ctx, "/api/v1/zones", &zones); err != nil {
		return nil, fmt.Errorf("fetching zones: %w", err)
	}
	return zones, nil
}

// GetZone returns a single zone by ID.
func (c *Client) GetZone(ctx context.Context, id string) (*Zone, error) {
	var zone Zone
	if err := c.get(ctx, "/api/v1/zones/"+url.PathEscape(id), &zone); err != nil {
		return nil, fmt.Errorf("fetching zone %s: %w", id, err)
	}
	return &zone, nil
}

// GetUserMe returns the account the API token belongs to.
func (c *Client) GetUserMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/api/v1/users/me", &user); err != nil {
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	return &user, nil
}

// GetSystemInfo returns information about the hub installation.
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.get(ctx, "/api/v1/system", &info); err != nil {
		return nil, fmt.Errorf("fetching system info: %w", err)
	}
	return &info, nil
}

// HealthCheck verifies the hub API is reachable and the token is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.GetSystemInfo(ctx); err != nil {
		return fmt.Errorf("hub health check: %w", err)
	}
	return nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	return nil
}

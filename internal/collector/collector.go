// Package collector ships recorded occupancy events to the remote
// collector endpoint.
//
// The collector is a plain form-POST API: each event goes as
// application/x-www-form-urlencoded with a "tabla" field naming the
// destination table and a "datos" field carrying the event as JSON. The
// endpoint answers {"error":"0"} on success.
//
// Delivery is best-effort. The recorder treats a failed send as
// log-and-drop; nothing is retried or queued.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/occulog/occulog-core/internal/infrastructure/config"
)

// Domain-specific errors for collector operations.
var (
	// ErrRequestFailed is returned when the endpoint cannot be reached or
	// responds with an unexpected status.
	ErrRequestFailed = errors.New("collector: request failed")

	// ErrRejected is returned when the endpoint answers with an error code
	// other than "0".
	ErrRejected = errors.New("collector: event rejected")

	// ErrInvalidResponse is returned when the response body is not the
	// expected JSON shape.
	ErrInvalidResponse = errors.New("collector: invalid response")
)

// maxResponseBytes bounds how much of the collector response is read.
const maxResponseBytes = 4096

// response is the collector's reply envelope. Error "0" means accepted.
type response struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Client posts events to the collector endpoint.
type Client struct {
	endpoint   string
	table      string
	httpClient *http.Client
}

// New creates a collector client from configuration.
func New(cfg config.CollectorConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoint: cfg.URL,
		table:    cfg.Table,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts one event to the collector.
//
// The payload is JSON-encoded into the "datos" form field. Returns nil
// only when the endpoint explicitly accepts the event with error "0".
func (c *Client) Send(ctx context.Context, payload any) error {
	datos, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	form := url.Values{}
	form.Set("tabla", c.table)
	form.Set("datos", string(datos))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body: %w", ErrInvalidResponse, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if r.Error != "0" {
		if r.Message != "" {
			return fmt.Errorf("%w: code %s: %s", ErrRejected, r.Error, r.Message)
		}
		return fmt.Errorf("%w: code %s", ErrRejected, r.Error)
	}

	return nil
}

// Table returns the configured destination table name.
func (c *Client) Table() string {
	return c.table
}

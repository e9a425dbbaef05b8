package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"commodity-price-alerts/internal/alerts"
)

// ErrUnavailable wraps transport failures reaching the server.
var ErrUnavailable = errors.New("alerts server unavailable")

// Client talks to a running Handler.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for baseURL (scheme://host:port).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// List returns every alert.
func (c *Client) List(ctx context.Context) ([]alerts.Alert, error) {
	var wire []Alert
	if _, err := c.do(ctx, http.MethodGet, "/alerts", nil, &wire); err != nil {
		return nil, err
	}
	out := make([]alerts.Alert, len(wire))
	for i, a := range wire {
		out[i] = a.Alert()
	}
	return out, nil
}

// Create submits a new alert.
func (c *Client) Create(ctx context.Context, req CreateRequest) (alerts.Alert, error) {
	var wire Alert
	if _, err := c.do(ctx, http.MethodPost, "/alerts", req, &wire); err != nil {
		return alerts.Alert{}, err
	}
	return wire.Alert(), nil
}

// Toggle flips an alert; ok is false for an unknown id.
func (c *Client) Toggle(ctx context.Context, id string) (alerts.Alert, bool, error) {
	return c.mutate(ctx, "/alerts/"+url.PathEscape(id)+"/toggle")
}

// Reset re-arms an alert; ok is false for an unknown id.
func (c *Client) Reset(ctx context.Context, id string) (alerts.Alert, bool, error) {
	return c.mutate(ctx, "/alerts/"+url.PathEscape(id)+"/reset")
}

// Remove deletes an alert; false means it did not exist.
func (c *Client) Remove(ctx context.Context, id string) (bool, error) {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) mutate(ctx context.Context, path string) (alerts.Alert, bool, error) {
	var wire Alert
	found, err := c.do(ctx, http.MethodPost, path, nil, &wire)
	if err != nil || !found {
		return alerts.Alert{}, false, err
	}
	return wire.Alert(), true, nil
}

// do performs one request. An unknown id is reported as found=false; a 404
// from something other than the handler is an error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w at %s: %v", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes*16))
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && isAPIError(payload) {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, parseError(resp.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return true, nil
}

func isAPIError(payload []byte) bool {
	var e errorResponse
	return json.Unmarshal(payload, &e) == nil && e.Error != ""
}

func parseError(status int, payload []byte) error {
	var e errorResponse
	if err := json.Unmarshal(payload, &e); err == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", status, e.Error)
	}
	return fmt.Errorf("server returned %d", status)
}

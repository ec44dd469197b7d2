// Package http_client provides the "service.http" component: a shared HTTP
// client whose requests can be issued by remote peers.
package http_client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/zerosystem/internal/ctxlog"
)

// DefaultTimeout applies when no timeout attribute is set.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of one request.
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// Client wraps a pooled *http.Client.
type Client struct {
	http *http.Client
}

// NewClient creates a client. timeout is a Go duration string; empty means
// DefaultTimeout.
func NewClient(timeout string) (*Client, error) {
	d := DefaultTimeout
	if timeout != "" {
		var err error
		d, err = time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}
	}

	return &Client{http: &http.Client{
		Timeout: d,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}}, nil
}

// Request performs method on url and returns the status and body. An empty
// method means GET.
func (c *Client) Request(ctx context.Context, url, method string) (*Result, error) {
	if method == "" {
		method = http.MethodGet
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Making HTTP request", "method", method, "url", url)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	logger.Info("Received HTTP response", "status", resp.Status)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Result{StatusCode: resp.StatusCode, Body: string(bodyBytes)}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

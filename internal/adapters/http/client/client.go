// Package client talks to the see1right HTTP API. The miner uses it to
// submit events over the same write path external callers use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/pkg/errkind"
)

// DefaultTimeout bounds every call unless overridden.
const DefaultTimeout = 15 * time.Second

const (
	summariesPath = "/dashboard/summaries"
	healthPath    = "/health"
	maxErrorBody  = 512
)

// Client wraps http.Client with the API base address and a timeout.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// New creates a client for the API at baseURL, e.g. http://127.0.0.1:8000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts payload to the write API. Any failure wraps ErrSubmit.
func (c *Client) Submit(ctx context.Context, payload model.RawItem) (model.Receipt, error) {
	const op = "client.submit"

	body, err := json.Marshal(payload)
	if err != nil {
		return model.Receipt{}, errkind.Wrap(op, ErrSubmit, fmt.Errorf("marshal payload: %w", err))
	}

	var receipt model.Receipt
	if err := c.do(ctx, http.MethodPost, summariesPath, body, &receipt); err != nil {
		return model.Receipt{}, errkind.Wrap(op, ErrSubmit, err)
	}
	return receipt, nil
}

// Health checks that the API answers GET /health with status ok.
func (c *Client) Health(ctx context.Context) error {
	const op = "client.health"

	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, healthPath, nil, &out); err != nil {
		return errkind.Wrap(op, ErrUnhealthy, err)
	}
	if out.Status != "ok" {
		return errkind.Wrap(op, ErrUnhealthy, fmt.Errorf("status %q", out.Status))
	}
	return nil
}

// Recent fetches up to limit stored events, newest first. A limit of zero
// leaves the choice to the server.
func (c *Client) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	const op = "client.recent"

	path := summariesPath
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var events []model.Event
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, errkind.Wrap(op, ErrRequest, err)
	}
	return events, nil
}

// do performs one bounded request and decodes a JSON answer into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

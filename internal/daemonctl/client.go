// Package daemonctl provides client-side control of a running callaudit
// daemon over its HTTP API, plus helpers for launching a detached daemon
// process.
package daemonctl

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

	"callaudit/internal/api"
	"callaudit/internal/config"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to the daemon API over HTTP with optional bearer auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New builds a client from the configured API bind address. The bind
// address is interpreted as host:port on the local machine.
func New(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("daemonctl: config is required")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, fmt.Errorf("daemonctl: api_bind is not configured")
	}
	return NewForAddress(bind, cfg.Paths.APIToken), nil
}

// NewForAddress builds a client for an explicit host:port address.
func NewForAddress(address, token string) *Client {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, ":") {
		address = "127.0.0.1" + address
	}
	return &Client{
		baseURL:    "http://" + address,
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Ping reports whether the daemon API is reachable and authenticated.
func (c *Client) Ping(ctx context.Context) error {
	var status api.DaemonStatus
	return c.get(ctx, "/api/status", nil, &status)
}

// Status fetches the daemon runtime snapshot.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.get(ctx, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health fetches call counts and ledger database diagnostics.
func (c *Client) Health(ctx context.Context) (*api.HealthReport, error) {
	var report api.HealthReport
	if err := c.get(ctx, "/api/health", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListCalls fetches calls, optionally filtered by status values.
func (c *Client) ListCalls(ctx context.Context, statuses ...string) ([]api.CallView, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var resp api.CallListResponse
	if err := c.get(ctx, "/api/calls", query, &resp); err != nil {
		return nil, err
	}
	return resp.Calls, nil
}

// DescribeCall fetches a call with its stage history and evaluation.
// Returns nil without error when the call does not exist.
func (c *Client) DescribeCall(ctx context.Context, id int64) (*api.CallDetail, error) {
	var resp api.CallDetailResponse
	err := c.get(ctx, fmt.Sprintf("/api/calls/%d", id), nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Detail, nil
}

// CancelCall requests cancellation of a single call.
func (c *Client) CancelCall(ctx context.Context, id int64) (api.CancelCallsResult, error) {
	var result api.CancelCallsResult
	err := c.post(ctx, fmt.Sprintf("/api/calls/%d/cancel", id), nil, &result)
	return result, err
}

// RetryCall requeues a single failed call.
func (c *Client) RetryCall(ctx context.Context, id int64) (api.RetryCallsResult, error) {
	var result api.RetryCallsResult
	err := c.post(ctx, fmt.Sprintf("/api/calls/%d/retry", id), nil, &result)
	return result, err
}

// ListBatches fetches all batches.
func (c *Client) ListBatches(ctx context.Context) ([]api.BatchView, error) {
	var resp api.BatchListResponse
	if err := c.get(ctx, "/api/batches", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

// DescribeBatch fetches a batch with its member calls. Returns nil
// without error when the batch does not exist.
func (c *Client) DescribeBatch(ctx context.Context, id string) (*api.BatchDetail, error) {
	var detail api.BatchDetail
	err := c.get(ctx, "/api/batches/"+url.PathEscape(id), nil, &detail)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &detail, nil
}

// ClearFinished removes terminal calls, optionally restricted to specific
// terminal statuses, and returns the number removed.
func (c *Client) ClearFinished(ctx context.Context, statuses ...string) (int64, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := c.post(ctx, "/api/calls/clear", query, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// TestNotification asks the daemon to publish a test notification.
func (c *Client) TestNotification(ctx context.Context) (bool, string, error) {
	var resp struct {
		Sent    bool   `json:"sent"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/api/test-notify", nil, &resp); err != nil {
		return false, "", err
	}
	return resp.Sent, resp.Message, nil
}

// Reap fails in-progress calls older than age and returns the count.
func (c *Client) Reap(ctx context.Context, age time.Duration) (int, error) {
	query := url.Values{}
	if age > 0 {
		query.Set("age", age.String())
	}
	var resp struct {
		Reaped int `json:"reaped"`
	}
	if err := c.post(ctx, "/api/reap", query, &resp); err != nil {
		return 0, err
	}
	return resp.Reaped, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, out)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, query, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("daemonctl: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemonctl: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("daemonctl: decode response: %w", err)
	}
	return nil
}

// StatusError reports a non-success HTTP status from the daemon API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon api: %s (status %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("daemon api: status %d", e.Code)
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

func decodeErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Error)
}

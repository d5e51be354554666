package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callaudit/internal/services"
)

const userAgent = "callaudit/0.1.0"

// Client talks to the local model sidecars (VAD, overlap, diarization,
// transcription, emotion) over HTTP. Sidecars accept a JSON request naming
// the normalized audio on shared storage and reply with JSON.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a sidecar client with the given per-request timeout.
// The timeout is a transport ceiling; stage attempts are separately bounded
// by the scheduler's per-stage deadline.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Call posts request as JSON to endpoint and decodes the response into out.
func (c *Client) Call(ctx context.Context, stageName, endpoint string, request, out any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return services.Wrap(services.ErrConfiguration, stageName, "resolve endpoint",
			"Inference endpoint is not configured", nil)
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", stageName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", stageName, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransient, stageName, "call sidecar",
			fmt.Sprintf("Inference service at %s is unreachable", endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		marker := services.ErrStageFailure
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, stageName, "call sidecar",
			fmt.Sprintf("Inference service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrStageFailure, stageName, "decode response",
			"Inference service returned malformed JSON", err)
	}
	return nil
}

// Ping probes a sidecar's health endpoint.
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint not configured")
	}
	healthURL, err := url.JoinPath(baseURL(endpoint), "healthz")
	if err != nil {
		return fmt.Errorf("resolve health endpoint: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func baseURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	return parsed.String()
}

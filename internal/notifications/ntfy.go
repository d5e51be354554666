package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"callaudit/internal/config"
)

const userAgent = "callaudit/0.1.0"

type ntfySender struct {
	endpoint string
	client   *http.Client
}

func newNtfySender(cfg *config.Config) *ntfySender {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfySender{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *ntfySender) send(ctx context.Context, event Event) error {
	if n == nil || n.client == nil || n.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(event.Message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", title(event))
	req.Header.Set("Tags", tags(event))
	if event.Priority != "" && event.Priority != "default" {
		req.Header.Set("Priority", event.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func title(event Event) string {
	switch event.Type {
	case EventStageStarted:
		return "Callaudit - Stage Started"
	case EventStageCompleted:
		return "Callaudit - Stage Complete"
	case EventCallCompleted:
		return "Callaudit - Call Scored"
	case EventCallFailed:
		return "Callaudit - Call Failed"
	case EventCallCancelled:
		return "Callaudit - Call Cancelled"
	case EventBatchCompleted:
		return "Callaudit - Batch Complete"
	default:
		return "Callaudit - Alert"
	}
}

func tags(event Event) string {
	parts := []string{"callaudit", string(event.Type)}
	if event.Stage != "" {
		parts = append(parts, event.Stage)
	}
	return strings.Join(parts, ",")
}

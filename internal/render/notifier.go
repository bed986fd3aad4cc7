package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier posts Block Kit payloads to a Slack incoming webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier builds a Notifier. The webhook URL may be empty, in which
// case Post becomes a no-op so dry environments need no special casing.
func NewNotifier(webhookURL string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// Post sends the blocks with a plain-text fallback. Slack returns a
// non-200 body like "invalid_blocks" on rejection, which is surfaced
// in the error.
func (n *Notifier) Post(ctx context.Context, fallback string, blocks []Block) error {
	if !n.Enabled() {
		n.logger.Debug("slack webhook not configured, skipping post")
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"text":   fallback,
		"blocks": blocks,
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook status %d: %s", resp.StatusCode, string(body))
	}

	n.logger.Debug("slack message posted", "blocks", len(blocks))
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/scraper"
)

// DiscordNotifier posts the same payload shape as generic JSON. Discord
// webhooks accept the slack-compatible message format on their /slack
// endpoint, so both channels share one payload builder.
type DiscordNotifier struct {
	cfg        Config
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewDiscordNotifier builds the Discord channel adapter. An empty
// webhook URL yields a no-op notifier.
func NewDiscordNotifier(cfg Config, webhookURL string, timeout time.Duration, logger *zap.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordNotifier{
		cfg:        cfg,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Channel identifies this adapter in logs and metrics.
func (n *DiscordNotifier) Channel() string { return "discord" }

// Notify posts one JSON payload per eligible record and returns the ids
// actually delivered.
func (n *DiscordNotifier) Notify(ctx context.Context, records []*scraper.Record, now time.Time) ([]int64, error) {
	if n.webhookURL == "" {
		return nil, nil
	}
	sent, err := dispatch(ctx, n.cfg, records, now, n.logger, n.post)
	if err != nil {
		return sent, fmt.Errorf("discord channel: %w", err)
	}
	return sent, nil
}

func (n *DiscordNotifier) post(ctx context.Context, msg *slack.WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

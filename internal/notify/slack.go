package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/scraper"
)

// SlackNotifier delivers eligible records through a Slack incoming
// webhook using the dedicated slack client.
type SlackNotifier struct {
	cfg        Config
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

// NewSlackNotifier builds the Slack channel adapter. An empty webhook
// URL yields a notifier that never evaluates eligibility and sends
// nothing.
func NewSlackNotifier(cfg Config, webhookURL string, timeout time.Duration, logger *zap.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackNotifier{
		cfg:        cfg,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Channel identifies this adapter in logs and metrics.
func (n *SlackNotifier) Channel() string { return "slack" }

// Notify posts one webhook message per eligible record and returns the
// ids actually delivered.
func (n *SlackNotifier) Notify(ctx context.Context, records []*scraper.Record, now time.Time) ([]int64, error) {
	if n.webhookURL == "" {
		return nil, nil
	}
	sent, err := dispatch(ctx, n.cfg, records, now, n.logger, func(ctx context.Context, msg *slack.WebhookMessage) error {
		if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
			return fmt.Errorf("post slack webhook: %w", err)
		}
		return nil
	})
	if err != nil {
		return sent, fmt.Errorf("slack channel: %w", err)
	}
	return sent, nil
}

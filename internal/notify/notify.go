// Package notify converts newly-inserted, sufficiently-significant
// event records into outbound webhook notifications.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lindol-ph/lindol/internal/scraper"
)

// Profile is the display metadata selected by truncated integer
// magnitude when building a payload.
type Profile struct {
	Emoji  string `mapstructure:"emoji"`
	Color  string `mapstructure:"color"`
	Label  string `mapstructure:"label"`
	Impact string `mapstructure:"impact"`
}

// Config controls eligibility and payload construction, shared by both
// channels.
type Config struct {
	// Window is the rolling time span, measured from the run anchor,
	// within which an event must fall to qualify.
	Window time.Duration
	// Threshold is the minimum magnitude that triggers a notification.
	Threshold float64
	// WatchSubstring escalates events whose location or province
	// contains it, case-insensitively.
	WatchSubstring string
	// WatchThreshold selects the stronger escalation marker when the
	// magnitude also exceeds it.
	WatchThreshold float64
	// Profiles maps truncated integer magnitude to display metadata.
	Profiles map[int]Profile
	// ImageBaseURL is the image-serving base path payload image links
	// point at.
	ImageBaseURL string
	// Channel and Username are routing fields carried in the payload.
	Channel  string
	Username string
}

// eligible applies the notification filter: the record must have been
// newly inserted this run, fall within the recency window, and meet the
// trigger threshold.
func (c Config) eligible(rec *scraper.Record, now time.Time) bool {
	if !rec.Persisted() {
		return false
	}
	if now.Sub(rec.Event) > c.Window {
		return false
	}
	return rec.Magnitude >= c.Threshold
}

// maxParallelPosts caps concurrent webhook deliveries per channel.
const maxParallelPosts = 4

// dispatch posts one message per eligible record, best effort: a failed
// build or delivery is logged and skipped without aborting the batch.
// The channel errors out only when every delivery failed. Returned ids
// are in no particular order.
func dispatch(
	ctx context.Context,
	cfg Config,
	records []*scraper.Record,
	now time.Time,
	logger *zap.Logger,
	deliver func(ctx context.Context, msg *slack.WebhookMessage) error,
) ([]int64, error) {
	var eligible []*scraper.Record
	for _, rec := range records {
		if cfg.eligible(rec, now) {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		sent     []int64
		failures int
	)
	var g errgroup.Group
	g.SetLimit(maxParallelPosts)
	for _, rec := range eligible {
		g.Go(func() error {
			msg, err := BuildPayload(cfg, rec)
			if err != nil {
				logger.Error("payload build failed", zap.Int64("id", rec.ID), zap.Error(err))
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			if err := deliver(ctx, msg); err != nil {
				logger.Error("webhook delivery failed", zap.Int64("id", rec.ID), zap.Error(err))
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			sent = append(sent, rec.ID)
			mu.Unlock()
			return nil
		})
	}
	// Goroutines never return an error; failures are collected above.
	_ = g.Wait()

	if failures > 0 && len(sent) == 0 {
		return nil, fmt.Errorf("all %d deliveries failed", failures)
	}
	return sent, nil
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/metrics"
)

// ErrStop signals a graceful early stop: the run ends successfully
// without executing the remaining stages. It is a control signal, not
// a failure.
var ErrStop = errors.New("graceful stop")

// PageFetcher performs the conditional HEAD/GET requests.
type PageFetcher interface {
	Head(ctx context.Context) (string, error)
	Get(ctx context.Context) ([]byte, string, error)
}

// BulletinParser converts a page body into event records.
type BulletinParser interface {
	Parse(body []byte) ([]*Record, error)
}

// EngineConfig controls a pipeline run.
type EngineConfig struct {
	// Force bypasses the stored-ETag lookup so the HEAD short-circuit
	// never triggers and the body is always fetched.
	Force bool
	// Window is the rolling recency span used to gate image caching.
	// It matches the notification eligibility window.
	Window time.Duration
	// OverrideNow, when non-zero, anchors the recency window instead of
	// the wall clock. Used for deterministic testing.
	OverrideNow time.Time
}

// Engine sequences the scrape pipeline stages over a RunContext.
type Engine struct {
	cfg     EngineConfig
	store   Store
	fetcher PageFetcher
	parser  BulletinParser
	images  ImageCacher
	slack   Notifier
	discord Notifier
	clock   Clock
	logger  *zap.Logger
}

// NewEngine constructs an Engine. images, slack, and discord may be nil
// when the corresponding stage is unconfigured.
func NewEngine(
	cfg EngineConfig,
	store Store,
	fetcher PageFetcher,
	parser BulletinParser,
	images ImageCacher,
	slack Notifier,
	discord Notifier,
	clock Clock,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		parser:  parser,
		images:  images,
		slack:   slack,
		discord: discord,
		clock:   clock,
		logger:  logger,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, rc *RunContext) error
}

// Run executes one pipeline cycle. A stage returning ErrStop ends the
// run successfully; any other error is terminal and surfaced to the
// caller. Already-committed writes are not rolled back: every persisted
// write is individually idempotent.
func (e *Engine) Run(ctx context.Context) error {
	rc := &RunContext{Now: e.now()}
	stages := []stage{
		{"EnsureSchema", e.ensureSchema},
		{"LoadEtag", e.loadEtag},
		{"CheckHead", e.checkHead},
		{"FetchBody", e.fetchBody},
		{"ParseBody", e.parseBody},
		{"InsertRecords", e.insertRecords},
		{"SaveEtag", e.saveEtag},
		{"CacheImages", e.cacheImages},
		{"NotifySlack", e.notifySlack},
		{"NotifyDiscord", e.notifyDiscord},
	}

	for _, s := range stages {
		e.logger.Debug("stage start", zap.String("stage", s.name))
		if err := s.run(ctx, rc); err != nil {
			if errors.Is(err, ErrStop) {
				e.logger.Info("pipeline stopped early",
					zap.String("stage", s.name),
					zap.String("reason", err.Error()),
				)
				metrics.PipelineRun("stopped")
				return nil
			}
			metrics.PipelineRun("failed")
			return fmt.Errorf("stage %s: %w", s.name, err)
		}
	}

	e.logger.Info("pipeline complete",
		zap.Int("records", len(rc.Records)),
		zap.Int("slack_sent", len(rc.SlackSent)),
		zap.Int("discord_sent", len(rc.DiscordSent)),
	)
	metrics.PipelineRun("ok")
	return nil
}

func (e *Engine) now() time.Time {
	if !e.cfg.OverrideNow.IsZero() {
		return e.cfg.OverrideNow
	}
	return e.clock.Now()
}

func (e *Engine) ensureSchema(ctx context.Context, rc *RunContext) error {
	if err := e.store.EnsureSchema(ctx); err != nil {
		return err
	}
	rc.SchemaReady = true
	return nil
}

func (e *Engine) loadEtag(ctx context.Context, rc *RunContext) error {
	if e.cfg.Force {
		e.logger.Info("force mode, skipping stored etag")
		return nil
	}
	etag, err := e.store.LoadLastEtag(ctx)
	if err != nil {
		return err
	}
	rc.PriorEtag = etag
	return nil
}

func (e *Engine) checkHead(ctx context.Context, rc *RunContext) error {
	if rc.PriorEtag == "" {
		e.logger.Debug("no prior etag, skipping head check")
		return nil
	}
	etag, err := e.fetcher.Head(ctx)
	if err != nil {
		return err
	}
	if etag != "" && etag == rc.PriorEtag {
		return fmt.Errorf("etag %q unchanged: %w", etag, ErrStop)
	}
	return nil
}

func (e *Engine) fetchBody(ctx context.Context, rc *RunContext) error {
	body, etag, err := e.fetcher.Get(ctx)
	if err != nil {
		return err
	}
	// The GET's own ETag is authoritative for persistence, even when it
	// differs from the HEAD answer.
	rc.Body = body
	rc.Etag = etag
	return nil
}

func (e *Engine) parseBody(_ context.Context, rc *RunContext) error {
	records, err := e.parser.Parse(rc.Body)
	if err != nil {
		return err
	}
	rc.Records = records
	metrics.RecordsParsed(len(records))
	e.logger.Debug("parsed bulletin", zap.Int("records", len(records)))
	return nil
}

func (e *Engine) insertRecords(ctx context.Context, rc *RunContext) error {
	inserted := 0
	for _, rec := range rc.Records {
		id, ok, err := e.store.InsertIfNew(ctx, rec)
		if err != nil {
			return err
		}
		if ok {
			rec.ID = id
			inserted++
		}
	}
	metrics.RecordsInserted(inserted)
	e.logger.Info("records persisted",
		zap.Int("parsed", len(rc.Records)),
		zap.Int("inserted", inserted),
	)
	return nil
}

func (e *Engine) saveEtag(ctx context.Context, rc *RunContext) error {
	if rc.Etag == "" {
		e.logger.Warn("origin returned no etag, nothing to persist")
		return nil
	}
	return e.store.SaveEtagIfNew(ctx, rc.Etag)
}

// cacheImages fetches images only for records newly inserted this run
// that fall inside the recency window; old or duplicate records never
// trigger a fetch.
func (e *Engine) cacheImages(ctx context.Context, rc *RunContext) error {
	if e.images == nil {
		return nil
	}
	var urls []string
	for _, rec := range rc.Records {
		if rec.Persisted() && rc.Now.Sub(rec.Event) <= e.cfg.Window {
			urls = append(urls, rec.Img)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return e.images.CacheAll(ctx, urls)
}

func (e *Engine) notifySlack(ctx context.Context, rc *RunContext) error {
	sent, err := e.notify(ctx, e.slack, rc)
	rc.SlackSent = sent
	return err
}

func (e *Engine) notifyDiscord(ctx context.Context, rc *RunContext) error {
	sent, err := e.notify(ctx, e.discord, rc)
	rc.DiscordSent = sent
	return err
}

func (e *Engine) notify(ctx context.Context, n Notifier, rc *RunContext) ([]int64, error) {
	if n == nil {
		return nil, nil
	}
	sent, err := n.Notify(ctx, rc.Records, rc.Now)
	if err != nil {
		return sent, err
	}
	metrics.NotificationsSent(n.Channel(), len(sent))
	return sent, nil
}

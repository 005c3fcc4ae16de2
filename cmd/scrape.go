package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/clock/system"
	"github.com/lindol-ph/lindol/internal/config"
	"github.com/lindol-ph/lindol/internal/imagecache"
	"github.com/lindol-ph/lindol/internal/logging"
	"github.com/lindol-ph/lindol/internal/notify"
	"github.com/lindol-ph/lindol/internal/scraper"
	"github.com/lindol-ph/lindol/internal/store"
)

// newScrapeCmd creates the 'scrape' subcommand, which runs one
// scrape-dedupe-notify cycle and exits. Scheduling repeated runs (e.g.
// via cron) is a deployment concern.
func newScrapeCmd() *cobra.Command {
	var (
		kind  string
		force bool
		dump  bool
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape cycle now",
		Long: `Fetches the bulletin page when its content changed since the last
run, persists newly published records, caches their images, and fans
out webhook notifications for fresh high-significance events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("kind") {
				cfg.Source.Kind = kind
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if quiet {
				cfg.Logging.Quiet = true
			}

			if dump {
				out, err := cfg.Dump()
				if err != nil {
					return err
				}
				cmd.Println(out)
				return nil
			}

			return runScrape(cmd, cfg, force)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "t", string(scraper.KindEarthquake), "bulletin kind: earthquake or tsunami")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "bypass the stored ETag and re-fetch unconditionally")
	cmd.Flags().BoolVarP(&dump, "dump", "x", false, "print the effective configuration and exit")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress console output, log to file only")

	return cmd
}

func runScrape(cmd *cobra.Command, cfg config.Config, force bool) error {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Quiet:       cfg.Logging.Quiet,
		Path:        cfg.Logging.Path,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := cmd.Context()

	st, err := store.New(ctx, store.Config{
		DSN:      cfg.Store.DSN,
		Table:    cfg.Source.Kind,
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	engine, err := buildEngine(cfg, st, force, logger)
	if err != nil {
		return err
	}

	if err := engine.Run(ctx); err != nil {
		logger.Error("scrape run failed", zap.Error(err))
		return err
	}
	return nil
}

// buildEngine wires the pipeline components from configuration.
func buildEngine(cfg config.Config, st *store.Store, force bool, logger *zap.Logger) (*scraper.Engine, error) {
	kind := scraper.Kind(cfg.Source.Kind)
	baseURL := cfg.Source.BaseURL()

	fetcher, err := scraper.NewFetcher(scraper.FetcherConfig{
		URL:       baseURL,
		UserAgent: cfg.Source.UserAgent,
		CAFile:    cfg.Source.CAFile,
		Timeout:   cfg.Source.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	parser, err := scraper.NewParser(kind, baseURL)
	if err != nil {
		return nil, fmt.Errorf("init parser: %w", err)
	}

	images, err := imagecache.New(imagecache.Config{
		Dir:         cfg.Cache.Dir,
		UserAgent:   cfg.Source.UserAgent,
		Timeout:     cfg.Source.Timeout,
		MaxParallel: cfg.Cache.MaxParallel,
	}, fetcher.Transport(), logger)
	if err != nil {
		return nil, fmt.Errorf("init image cache: %w", err)
	}

	notifierCfg, err := cfg.NotifierConfig()
	if err != nil {
		return nil, err
	}
	slack := notify.NewSlackNotifier(notifierCfg, cfg.Notify.Slack.WebhookURL, cfg.Source.Timeout, logger)
	discord := notify.NewDiscordNotifier(notifierCfg, cfg.Notify.Discord.WebhookURL, cfg.Source.Timeout, logger)

	engineCfg := scraper.EngineConfig{
		Force:  force,
		Window: cfg.Notify.Window,
	}
	if cfg.Notify.OverrideEpoch != 0 {
		engineCfg.OverrideNow = time.Unix(cfg.Notify.OverrideEpoch, 0).UTC()
	}

	return scraper.NewEngine(engineCfg, st, fetcher, parser, images, slack, discord, system.New(), logger), nil
}

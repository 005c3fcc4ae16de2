package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/api"
	"github.com/lindol-ph/lindol/internal/config"
	"github.com/lindol-ph/lindol/internal/logging"
	"github.com/lindol-ph/lindol/internal/store"
)

// newServeCmd creates the 'serve' subcommand, which starts the read
// API server and static dashboard over the persisted store.
func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3000, "listen port")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
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

	server := api.NewServer(st, api.Config{
		Kind:         cfg.Source.Kind,
		ImageBaseURL: cfg.Cache.BaseURL,
		StaticDir:    cfg.Server.StaticDir,
		CacheDir:     cfg.Cache.Dir,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.Int("port", cfg.Server.Port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	logger.Info("api server stopped")
	return nil
}

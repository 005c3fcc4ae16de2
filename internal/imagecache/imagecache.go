// Package imagecache downloads per-event images into a local cache
// directory, best effort.
package imagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lindol-ph/lindol/internal/metrics"
)

// Config controls the image cache.
type Config struct {
	// Dir is the cache directory; created when missing.
	Dir string
	// UserAgent matches the page fetcher's request identity.
	UserAgent string
	// Timeout bounds each download.
	Timeout time.Duration
	// MaxParallel caps concurrent downloads across a batch.
	MaxParallel int
}

// Cache fetches and stores event images. Downloads share the page
// fetcher's transport so the same User-Agent/CA configuration applies.
type Cache struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Cache rooted at cfg.Dir.
func New(cfg Config, transport http.RoundTripper, logger *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache path %s is not a directory", cfg.Dir)
	}

	return &Cache{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// CacheAll fetches every URL concurrently and waits for the whole
// batch. A failed download is a logged per-item soft failure; a disk
// I/O error fails the batch.
func (c *Cache) CacheAll(ctx context.Context, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallel)
	for _, u := range urls {
		g.Go(func() error {
			return c.fetchAndCache(ctx, u)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("image batch: %w", err)
	}
	return nil
}

func (c *Cache) fetchAndCache(ctx context.Context, rawURL string) error {
	name, err := cacheFilename(rawURL)
	if err != nil {
		return err
	}
	dst := filepath.Join(c.cfg.Dir, name)

	// A cache hit is a silent success with no network call.
	if _, err := os.Stat(dst); err == nil {
		metrics.ImageCacheOutcome("hit")
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}

	body, err := c.download(ctx, rawURL)
	if err != nil {
		// Origin images are sometimes broken or missing; log and move on.
		c.logger.Warn("image download failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		metrics.ImageCacheOutcome("failed")
		return nil
	}

	if err := os.WriteFile(dst, body, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	c.logger.Debug("image cached", zap.String("file", dst))
	metrics.ImageCacheOutcome("stored")
	return nil
}

func (c *Cache) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// cacheFilename derives the cache filename from the URL's final path
// segment, rejecting anything that would escape the cache directory.
func cacheFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse image url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("image url %q has no usable filename", rawURL)
	}
	return name, nil
}

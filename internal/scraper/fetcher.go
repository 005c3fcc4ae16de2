package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gocolly/colly/v2"
)

// FetcherConfig controls the conditional page fetcher.
type FetcherConfig struct {
	// URL is the bulletin page for the active kind.
	URL string
	// UserAgent is sent on every outbound request.
	UserAgent string
	// CAFile optionally points at a PEM bundle appended to the system
	// roots. The origin's certificate chain is known to be incomplete
	// from default trust stores.
	CAFile string
	// Timeout bounds each request.
	Timeout time.Duration
}

// Fetcher performs conditional HEAD/GET requests against the bulletin
// page using a Colly collector. A fresh collector clone is used per
// request so no visit state leaks between calls.
type Fetcher struct {
	cfg           FetcherConfig
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

// NewFetcher builds a Fetcher. The configured CA bundle, when present,
// is loaded once and shared by every request transport.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("fetcher url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	transport, err := NewTransport(cfg.CAFile)
	if err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}, nil
}

// Transport exposes the shared HTTP transport so sibling components
// (the image cache) reuse the same User-Agent/CA configuration.
func (f *Fetcher) Transport() http.RoundTripper {
	return f.transport
}

// Head issues a HEAD request and returns the ETag the origin reports.
// The caller decides whether the value matches the prior fingerprint.
func (f *Fetcher) Head(ctx context.Context) (string, error) {
	var etag string
	collector, fetchErr := f.newCollector(func(r *colly.Response) {
		etag = r.Headers.Get("ETag")
	})
	if err := f.run(ctx, collector, fetchErr, collector.Head); err != nil {
		return "", fmt.Errorf("head %s: %w", f.cfg.URL, err)
	}
	return etag, nil
}

// Get fetches the full page body together with its own response ETag.
// The GET's ETag is authoritative for persistence; it may legitimately
// differ from the HEAD answer.
func (f *Fetcher) Get(ctx context.Context) ([]byte, string, error) {
	var (
		body []byte
		etag string
	)
	collector, fetchErr := f.newCollector(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		etag = r.Headers.Get("ETag")
	})
	if err := f.run(ctx, collector, fetchErr, collector.Visit); err != nil {
		return nil, "", fmt.Errorf("get %s: %w", f.cfg.URL, err)
	}
	return body, etag, nil
}

func (f *Fetcher) newCollector(onResponse colly.ResponseCallback) (*colly.Collector, *error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var fetchErr error
	collector.OnResponse(onResponse)
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})
	return collector, &fetchErr
}

// run executes one collector request, racing completion against the
// caller's context.
func (f *Fetcher) run(ctx context.Context, collector *colly.Collector, fetchErr *error, visit func(string) error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit(f.cfg.URL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return err
		}
		if *fetchErr != nil {
			return *fetchErr
		}
		return nil
	}
}

// NewTransport builds the pooled HTTP transport used for all outbound
// requests. caFile, when non-empty, must name a PEM bundle which is
// appended to the system roots.
func NewTransport(caFile string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if caFile == "" {
		return transport, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca bundle: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca bundle %s contains no certificates", caFile)
	}
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return transport, nil
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newBulletinServer(t *testing.T, etag, body string, gets *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		if r.Method == http.MethodHead {
			return
		}
		gets.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T, url string) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetcherConfig{
		URL:       url,
		UserAgent: "lindol-test/1.0",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	return f
}

func TestHeadReturnsOriginEtag(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := newBulletinServer(t, `"xxx"`, "ignored", &gets)

	f := newTestFetcher(t, srv.URL)
	etag, err := f.Head(context.Background())
	require.NoError(t, err)
	require.Equal(t, `"xxx"`, etag)
	require.Zero(t, gets.Load(), "head check must not fetch the body")
}

func TestGetReturnsBodyWithItsOwnEtag(t *testing.T) {
	t.Parallel()

	var gets atomic.Int64
	srv := newBulletinServer(t, `"zzz"`, "<html>bulletin</html>", &gets)

	f := newTestFetcher(t, srv.URL)
	body, etag, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "<html>bulletin</html>", string(body))
	require.Equal(t, `"zzz"`, etag)
	require.Equal(t, int64(1), gets.Load())
}

func TestFetchErrorStatusIsFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, srv.URL)

	_, err := f.Head(context.Background())
	require.Error(t, err)

	_, _, err = f.Get(context.Background())
	require.Error(t, err)
}

func TestFetcherSendsConfiguredUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(t, srv.URL)
	_, _, err := f.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "lindol-test/1.0", gotUA.Load())
}

func TestNewFetcherRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewFetcher(FetcherConfig{})
	require.Error(t, err)
}

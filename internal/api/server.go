// Package api exposes the HTTP read interface over the persisted store.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lindol-ph/lindol/internal/scraper"
	"github.com/lindol-ph/lindol/internal/store"
)

// RecordLister is the read-side slice of the store the API needs.
type RecordLister interface {
	ListRecords(ctx context.Context, q store.Query) ([]scraper.Record, error)
}

// Config controls the API server.
type Config struct {
	// Kind names the record resource path, e.g. /api/earthquake.
	Kind string
	// ImageBaseURL is the serving base substituted into record image
	// links at read time.
	ImageBaseURL string
	// StaticDir optionally serves the dashboard assets at /.
	StaticDir string
	// CacheDir serves cached images under the image base path.
	CacheDir string
}

// Server wires HTTP handlers to the record store.
type Server struct {
	router  chi.Router
	records RecordLister
	cfg     Config
	logger  *zap.Logger
}

var validLocationQuery = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)

// NewServer constructs a Server with middleware and routes.
func NewServer(records RecordLister, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Kind == "" {
		cfg.Kind = string(scraper.KindEarthquake)
	}
	s := &Server{
		records: records,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/api/"+cfg.Kind, s.listRecords)

	if cfg.CacheDir != "" {
		base := strings.TrimRight(cfg.ImageBaseURL, "/")
		if base != "" && strings.HasPrefix(base, "/") {
			r.Handle(base+"/*", http.StripPrefix(base+"/", http.FileServer(http.Dir(cfg.CacheDir))))
		}
	}
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "Not Found")
		})
	}

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listRecords serves the paginated record query. Out-of-bounds
// parameters fall back to their defaults rather than erroring, matching
// the dashboard's lenient contract.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r.URL.Query())

	records, err := s.records.ListRecords(r.Context(), q)
	if err != nil {
		s.logger.Error("record query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Error")
		return
	}

	for i := range records {
		records[i].Img = rebaseImage(s.cfg.ImageBaseURL, records[i].Img)
	}
	if records == nil {
		records = []scraper.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func parseQuery(values url.Values) store.Query {
	q := store.Query{Limit: 10, Order: "desc"}

	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 10 {
			q.Limit = n
		}
	}
	if raw := values.Get("magnitude"); raw != "" {
		if m, err := strconv.ParseFloat(raw, 64); err == nil && m > 0 && m < 99 {
			q.MinMagnitude = m
		}
	}
	if order := values.Get("order"); order == "asc" || order == "desc" {
		q.Order = order
	}
	if loc := values.Get("location"); len(loc) > 2 && len(loc) < 64 && validLocationQuery.MatchString(loc) {
		q.Location = loc
	}
	return q
}

// rebaseImage points a source image URL at the local serving base.
func rebaseImage(base, imgURL string) string {
	if base == "" || imgURL == "" {
		return imgURL
	}
	u, err := url.Parse(imgURL)
	if err != nil {
		return imgURL
	}
	return strings.TrimRight(base, "/") + "/" + path.Base(u.Path)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the JSON error envelope the dashboard expects.
func writeError(w http.ResponseWriter, status int, title string) {
	writeJSON(w, status, map[string]any{
		"errors": []map[string]string{{"title": title}},
	})
}

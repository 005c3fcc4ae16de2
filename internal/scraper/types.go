// Package scraper defines core types shared across the scrape pipeline.
package scraper

import (
	"context"
	"time"
)

// Kind selects which bulletin source is scraped. The kind names both the
// upstream subdomain and the record table.
type Kind string

// Supported bulletin kinds.
const (
	KindEarthquake Kind = "earthquake"
	KindTsunami    Kind = "tsunami"
)

// Record is one observed seismic event parsed from a bulletin row.
// Records are append-only: once a row is inserted it is never updated
// or deleted.
type Record struct {
	ID        int64     `json:"id,omitempty"`
	Event     time.Time `json:"event"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Depth     int       `json:"depth"`
	Magnitude float64   `json:"magnitude"`
	Location  string    `json:"location"`
	Province  string    `json:"province"`
	Link      string    `json:"link"`
	Img       string    `json:"img"`
}

// Persisted reports whether the store has assigned this record an id
// during the current run. Records already known to the store keep a
// zero id and never re-notify.
func (r *Record) Persisted() bool {
	return r.ID != 0
}

// RunContext is the transient state threaded through one pipeline run.
// It is owned by a single run and discarded at completion.
type RunContext struct {
	// PriorEtag is the most recently persisted content fingerprint,
	// empty when none exists or force mode bypassed the lookup.
	PriorEtag string
	// Etag is the fingerprint captured by the body GET; it is the value
	// persisted at the end of the run.
	Etag string
	// Body is the raw HTML fetched from the bulletin page.
	Body []byte
	// Records holds the parsed rows in document order.
	Records []*Record
	// SchemaReady is set once schema bootstrap has run.
	SchemaReady bool
	// Now anchors the notification window for this run. It is either
	// the wall clock or an explicit override used for deterministic
	// testing.
	Now time.Time
	// SlackSent and DiscordSent accumulate the ids actually delivered
	// per channel.
	SlackSent   []int64
	DiscordSent []int64
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Store persists event records and the ETag history.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertIfNew(ctx context.Context, rec *Record) (int64, bool, error)
	LoadLastEtag(ctx context.Context) (string, error)
	SaveEtagIfNew(ctx context.Context, etag string) error
}

// ImageCacher downloads and caches event images, best effort.
type ImageCacher interface {
	CacheAll(ctx context.Context, urls []string) error
}

// Notifier delivers eligible records to one outbound channel and
// reports the ids actually sent.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, records []*Record, now time.Time) ([]int64, error)
}

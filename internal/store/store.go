// Package store provides Postgres-backed persistence for event records
// and the ETag history.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lindol-ph/lindol/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const etagTable = "etag"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the narrow slice of pgxpool.Pool the store needs; pgxmock
// satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists event records into one table per bulletin kind plus a
// shared etag table. Every write is individually idempotent; no
// cross-record transaction is used.
type Store struct {
	pool  pool
	table string
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = string(scraper.KindEarthquake)
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = string(scraper.KindEarthquake)
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the record table for the active kind and the
// etag table when the record table does not exist yet. Safe to call on
// every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.tableExists(ctx, s.table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	create := fmt.Sprintf(`
CREATE TABLE %s (
	id BIGSERIAL PRIMARY KEY,
	event TIMESTAMPTZ NOT NULL,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	depth INTEGER NOT NULL,
	magnitude DOUBLE PRECISION NOT NULL,
	location TEXT NOT NULL,
	province TEXT NOT NULL,
	link TEXT NOT NULL,
	img TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	createEtag := fmt.Sprintf(`
CREATE TABLE %s (
	id BIGSERIAL PRIMARY KEY,
	etag TEXT NOT NULL,
	created TIMESTAMPTZ NOT NULL DEFAULT now()
)`, etagTable)
	if _, err := s.pool.Exec(ctx, createEtag); err != nil {
		return fmt.Errorf("create table %s: %w", etagTable, err)
	}
	return nil
}

// tableExists is the Postgres-specific part of schema bootstrap; other
// backends would supply their own catalog query here. to_regclass
// returns NULL for unknown relations.
func (s *Store) tableExists(ctx context.Context, name string) (bool, error) {
	var reg *string
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1)`, name).Scan(&reg); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return reg != nil, nil
}

// InsertIfNew persists a record unless a row with the same event
// timestamp already exists. It returns the assigned id and true when a
// row was inserted, or zero and false when the event was already known.
func (s *Store) InsertIfNew(ctx context.Context, rec *scraper.Record) (int64, bool, error) {
	lookup := fmt.Sprintf(`SELECT id FROM %s WHERE event = $1`, s.table)
	var existing int64
	err := s.pool.QueryRow(ctx, lookup, rec.Event).Scan(&existing)
	switch {
	case err == nil:
		return 0, false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, false, fmt.Errorf("lookup event: %w", err)
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (event, latitude, longitude, depth, magnitude, location, province, link, img)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id`, s.table)
	var id int64
	err = s.pool.QueryRow(ctx, insert,
		rec.Event,
		rec.Latitude,
		rec.Longitude,
		rec.Depth,
		rec.Magnitude,
		rec.Location,
		rec.Province,
		rec.Link,
		rec.Img,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("insert record: %w", err)
	}
	return id, true, nil
}

// LoadLastEtag returns the most recently created etag value, or the
// empty string when none has been stored yet.
func (s *Store) LoadLastEtag(ctx context.Context) (string, error) {
	var etag string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT etag FROM %s ORDER BY created DESC, id DESC LIMIT 1`, etagTable),
	).Scan(&etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load last etag: %w", err)
	}
	return etag, nil
}

// SaveEtagIfNew stores an etag value unless an identical value is
// already present.
func (s *Store) SaveEtagIfNew(ctx context.Context, etag string) error {
	if etag == "" {
		return fmt.Errorf("etag is required")
	}
	var existing int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE etag = $1 LIMIT 1`, etagTable), etag,
	).Scan(&existing)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("lookup etag: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (etag) VALUES ($1)`, etagTable), etag,
	); err != nil {
		return fmt.Errorf("insert etag: %w", err)
	}
	return nil
}

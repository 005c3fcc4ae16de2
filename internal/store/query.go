package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lindol-ph/lindol/internal/scraper"
)

// Query bounds a read-side record listing.
type Query struct {
	// Limit caps the result size; values outside 1..10 fall back to 10.
	Limit int
	// MinMagnitude filters with a strict greater-than.
	MinMagnitude float64
	// Order is "asc" or "desc" by event time; anything else is desc.
	Order string
	// Location, when set, filters on the province suffix.
	Location string
}

const maxQueryLimit = 10

// ListRecords returns persisted records matching the query, newest
// first unless ascending order is requested.
func (s *Store) ListRecords(ctx context.Context, q Query) ([]scraper.Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	dir := "DESC"
	if strings.EqualFold(q.Order, "asc") {
		dir = "ASC"
	}

	sql := fmt.Sprintf(`
SELECT id, event, latitude, longitude, depth, magnitude, location, province, link, img
FROM %s
WHERE magnitude > $1`, s.table)
	args := []any{q.MinMagnitude}
	if q.Location != "" {
		sql += ` AND province ILIKE '%' || $2 || '%'`
		args = append(args, q.Location)
	}
	sql += fmt.Sprintf(` ORDER BY event %s LIMIT %d`, dir, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []scraper.Record
	for rows.Next() {
		var rec scraper.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.Event,
			&rec.Latitude,
			&rec.Longitude,
			&rec.Depth,
			&rec.Magnitude,
			&rec.Location,
			&rec.Province,
			&rec.Link,
			&rec.Img,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/lindol-ph/lindol/internal/scraper"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewWithPool(mock, "earthquake")
	require.NoError(t, err)
	return st, mock
}

func TestNewWithPoolRejectsBadTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "earthquake; DROP TABLE etag")
	require.Error(t, err)
}

func TestEnsureSchemaCreatesMissingTables(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT to_regclass\(\$1\)`).
		WithArgs("earthquake").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow((*string)(nil)))
	mock.ExpectExec("CREATE TABLE earthquake").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE etag").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaNoopWhenTableExists(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	name := "earthquake"
	mock.ExpectQuery(`SELECT to_regclass\(\$1\)`).
		WithArgs("earthquake").
		WillReturnRows(pgxmock.NewRows([]string{"to_regclass"}).AddRow(&name))

	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfNewInsertsUnknownEvent(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	rec := &scraper.Record{
		Event:     time.Date(2019, time.February, 14, 1, 34, 0, 0, time.UTC),
		Latitude:  12.84,
		Longitude: 124.34,
		Depth:     10,
		Magnitude: 3.5,
		Location:  "018 km S 42° E of Barcelona",
		Province:  "SORSOGON",
		Link:      "https://origin.example/2019_0214_0134.html",
		Img:       "https://origin.example/2019_0214_0134.jpg",
	}

	mock.ExpectQuery("SELECT id FROM earthquake WHERE event").
		WithArgs(rec.Event).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO earthquake").
		WithArgs(
			rec.Event,
			rec.Latitude,
			rec.Longitude,
			rec.Depth,
			rec.Magnitude,
			rec.Location,
			rec.Province,
			rec.Link,
			rec.Img,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, inserted, err := st.InsertIfNew(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfNewSkipsKnownEvent(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	event := time.Date(2019, time.February, 13, 20, 33, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id FROM earthquake WHERE event").
		WithArgs(event).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(41)))

	id, inserted, err := st.InsertIfNew(context.Background(), &scraper.Record{Event: event})
	require.NoError(t, err)
	require.False(t, inserted)
	require.Zero(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLastEtagEmptyHistory(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT etag FROM etag ORDER BY created DESC").
		WillReturnError(pgx.ErrNoRows)

	etag, err := st.LoadLastEtag(context.Background())
	require.NoError(t, err)
	require.Empty(t, etag)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadLastEtagReturnsNewest(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT etag FROM etag ORDER BY created DESC").
		WillReturnRows(pgxmock.NewRows([]string{"etag"}).AddRow(`"abc123"`))

	etag, err := st.LoadLastEtag(context.Background())
	require.NoError(t, err)
	require.Equal(t, `"abc123"`, etag)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEtagIfNewInsertsUnknownValue(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM etag WHERE etag").
		WithArgs(`"fresh"`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO etag").
		WithArgs(`"fresh"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveEtagIfNew(context.Background(), `"fresh"`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEtagIfNewSkipsDuplicateValue(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM etag WHERE etag").
		WithArgs(`"seen"`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	require.NoError(t, st.SaveEtagIfNew(context.Background(), `"seen"`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEtagIfNewRejectsEmptyValue(t *testing.T) {
	t.Parallel()

	st, _ := newMockStore(t)
	require.Error(t, st.SaveEtagIfNew(context.Background(), ""))
}

func recordRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "event", "latitude", "longitude", "depth",
		"magnitude", "location", "province", "link", "img",
	})
}

func TestListRecordsDefaultsAndScan(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	event := time.Date(2019, time.February, 14, 1, 34, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, event, .* FROM earthquake WHERE magnitude > \\$1 ORDER BY event DESC LIMIT 10").
		WithArgs(0.0).
		WillReturnRows(recordRows().AddRow(
			int64(7), event, 12.84, 124.34, 10,
			3.5, "018 km S 42° E of Barcelona", "SORSOGON",
			"https://origin.example/a.html", "https://origin.example/a.jpg",
		))

	out, err := st.ListRecords(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(7), out[0].ID)
	require.Equal(t, event, out[0].Event)
	require.Equal(t, "SORSOGON", out[0].Province)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsLocationFilterAndAscOrder(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery(`AND province ILIKE '%' \|\| \$2 \|\| '%' ORDER BY event ASC LIMIT 5`).
		WithArgs(4.0, "samar").
		WillReturnRows(recordRows())

	out, err := st.ListRecords(context.Background(), Query{
		Limit:        5,
		MinMagnitude: 4.0,
		Order:        "asc",
		Location:     "samar",
	})
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecordsOversizedLimitFallsBack(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)

	mock.ExpectQuery(`ORDER BY event DESC LIMIT 10`).
		WithArgs(0.0).
		WillReturnRows(recordRows())

	_, err := st.ListRecords(context.Background(), Query{Limit: 500})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// anyArgs matches n arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

const upsertPattern = `INSERT INTO "events" \(.*"timestamp", "geom"\) VALUES \(.*ST_GeomFromEWKB\(\$30\)\) ON CONFLICT \("acled_id"\) DO UPDATE SET .*"updated_at" = now\(\) WHERE EXCLUDED."timestamp" > "events"."timestamp"`

func TestPostgresStore_UpsertEvent_Applied(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ev := testEvent("FRA1", 100)

	mock.ExpectBegin()
	mock.ExpectExec(upsertPattern).
		WithArgs(anyArgs(len(upsertColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	out, err := s.UpsertEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, Applied, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertEvent_SkippedWhenNotNewer(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(upsertPattern).
		WithArgs(anyArgs(len(upsertColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	out, err := s.UpsertEvent(context.Background(), testEvent("FRA1", 100))
	require.NoError(t, err)
	assert.Equal(t, Skipped, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertEvent_ErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(upsertPattern).
		WithArgs(anyArgs(len(upsertColumns))...).
		WillReturnError(errors.New(`violates check constraint "events_fatalities_check"`))
	mock.ExpectRollback()

	_, err := s.UpsertEvent(context.Background(), testEvent("FRA9", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert event FRA9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertEvent_BindsEventAndGeometry(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ev := testEvent("FRA1", 100)
	point, err := ev.EWKB()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(upsertPattern).
		WithArgs(eventArgs(ev, ev.OccurredOn, point)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err = s.UpsertEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetEvent_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM "events" WHERE "acled_id" = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetEvent(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EventTypes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT "type", "sub_type" FROM "events"`).
		WillReturnRows(pgxmock.NewRows([]string{"type", "sub_type"}).
			AddRow("Riots", "Mob violence").
			AddRow("Battles", "Armed clash").
			AddRow("Riots", "Violent demonstration"))

	groups, err := s.EventTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Battles", groups[0].Type)
	assert.Equal(t, []string{"Violent demonstration", "Mob violence"}, groups[1].SubTypes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO ingest_log`).
		WithArgs(pgxmock.AnyArg(), "acled.csv", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.StartRun(context.Background(), "acled.csv")
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE ingest_log SET status = \$1`).
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "nope", &RunResult{RowsRead: 1})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE ingest_log SET status = \$1, completed_at = \$2, error = \$3 WHERE id = \$4`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "run-1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

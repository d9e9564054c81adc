package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/db"
)

// sqliteTime is the layout of timestamps written by SQLite's strftime default.
const sqliteTime = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements Store using modernc.org/sqlite. Geometry is kept as
// an EWKB blob and bounding boxes are evaluated against latitude/longitude.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	acled_id           TEXT NOT NULL UNIQUE CHECK (acled_id <> ''),
	date               TEXT NOT NULL,
	type               TEXT NOT NULL,
	sub_type           TEXT NOT NULL,
	disorder_type      TEXT NOT NULL,
	actor1             TEXT NOT NULL,
	actor2             TEXT,
	inter1             TEXT NOT NULL,
	inter2             TEXT,
	assoc_actor_1      TEXT,
	assoc_actor_2      TEXT,
	interaction        TEXT NOT NULL,
	iso                INTEGER NOT NULL,
	region             TEXT NOT NULL,
	country            TEXT NOT NULL,
	admin1             TEXT NOT NULL,
	admin2             TEXT,
	admin3             TEXT,
	location           TEXT NOT NULL,
	latitude           REAL NOT NULL CHECK (latitude BETWEEN -90 AND 90),
	longitude          REAL NOT NULL CHECK (longitude BETWEEN -180 AND 180),
	geo_precision      INTEGER NOT NULL CHECK (geo_precision BETWEEN 1 AND 3),
	civilian_targeting INTEGER NOT NULL DEFAULT 0,
	fatalities         INTEGER NOT NULL DEFAULT 0 CHECK (fatalities >= 0),
	source             TEXT NOT NULL,
	source_scale       TEXT NOT NULL,
	notes              TEXT NOT NULL,
	tags               TEXT,
	"timestamp"        INTEGER NOT NULL,
	geom               BLOB NOT NULL,
	imported_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_events_date_id ON events (date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);
CREATE INDEX IF NOT EXISTS idx_events_lat_lon ON events (latitude, longitude);

CREATE TABLE IF NOT EXISTS ingest_log (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TEXT NOT NULL,
	completed_at  TEXT,
	rows_read     INTEGER NOT NULL DEFAULT 0,
	rows_upserted INTEGER NOT NULL DEFAULT 0,
	rows_skipped  INTEGER NOT NULL DEFAULT 0,
	rows_errored  INTEGER NOT NULL DEFAULT 0,
	excluded      TEXT,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_log_started_at ON ingest_log (started_at DESC);
`

var sqliteUpsertSQL = sync.OnceValues(func() (string, error) {
	return db.UpsertSQL(db.UpsertConfig{
		Table:        eventsTable,
		Columns:      upsertColumns,
		ConflictKeys: []string{acled.ColExternalID},
		GuardColumn:  acled.ColTimestamp,
		Touch:        []string{`"updated_at" = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`},
		Placeholder:  db.Question,
	})
})

var sqliteDialect = dialect{
	ph:   db.Question,
	date: func(t time.Time) any { return t.Format(acled.DateLayout) },
	bbox: func(w *where, b *BBox) {
		w.add(`"longitude" BETWEEN %s AND %s`, b.MinLon, b.MaxLon)
		w.add(`"latitude" BETWEEN %s AND %s`, b.MinLat, b.MaxLat)
	},
	typeIn: func(w *where, types []string) {
		args := make([]any, len(types))
		for i, t := range types {
			args[i] = t
		}
		w.add(`"type" IN (`+strings.Repeat("%s, ", len(types)-1)+`%s)`, args...)
	},
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: ensure schema")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertEvent(ctx context.Context, ev *acled.Event) (Outcome, error) {
	query, err := sqliteUpsertSQL()
	if err != nil {
		return 0, err
	}
	point, err := ev.EWKB()
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, query, eventArgs(ev, ev.OccurredOn.Format(acled.DateLayout), point)...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: upsert event %s", ev.ExternalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	if n > 0 {
		return Applied, nil
	}
	return Skipped, nil
}

func (s *SQLiteStore) GetEvent(ctx context.Context, externalID string) (*StoredEvent, error) {
	q := `SELECT ` + quotedSelectList() + `, "geom" FROM "events" WHERE "acled_id" = ?`
	ev, err := scanSQLiteEvent(s.db.QueryRowContext(ctx, q, externalID), nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get event %s", externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get event %s", externalID)
	}
	return ev, nil
}

func (s *SQLiteStore) FindEvents(ctx context.Context, filter EventFilter) (*EventPage, error) {
	q, args := findEventsSQL(sqliteDialect, `"geom"`, filter)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find events")
	}
	defer rows.Close() //nolint:errcheck

	page := &EventPage{Events: []StoredEvent{}}
	for rows.Next() {
		ev, err := scanSQLiteEvent(rows, &page.TotalCount)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		page.Events = append(page.Events, *ev)
	}
	return page, eris.Wrap(rows.Err(), "sqlite: iterate events")
}

func (s *SQLiteStore) EventTypes(ctx context.Context) ([]acled.TypeGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT "type", "sub_type" FROM "events"`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: event types")
	}
	defer rows.Close() //nolint:errcheck

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event type")
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate event types")
	}
	return acled.OrderTypes(pairs), nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, fileName string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_log (id, file_name, status, started_at) VALUES (?, ?, ?, ?)`,
		id, fileName, string(RunRunning), formatSQLiteTime(time.Now()),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: start run for %s", fileName)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *RunResult) error {
	excluded, err := json.Marshal(result.Excluded)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal exclusions")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_log SET status = ?, completed_at = ?, rows_read = ?, rows_upserted = ?, rows_skipped = ?, rows_errored = ?, excluded = ? WHERE id = ?`,
		string(RunComplete), formatSQLiteTime(time.Now()), result.RowsRead, result.RowsUpserted, result.RowsSkipped, result.RowsErrored, string(excluded), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "complete run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(RunFailed), formatSQLiteTime(time.Now()), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "fail run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, status, started_at, completed_at, rows_read, rows_upserted, rows_skipped, rows_errored, excluded, error
		 FROM ingest_log ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt string
		var completedAt, excluded, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.FileName, &r.Status, &startedAt, &completedAt,
			&r.RowsRead, &r.RowsUpserted, &r.RowsSkipped, &r.RowsErrored, &excluded, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if r.StartedAt, err = time.Parse(sqliteTime, startedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse started_at")
		}
		if completedAt.Valid {
			t, err := time.Parse(sqliteTime, completedAt.String)
			if err != nil {
				return nil, eris.Wrap(err, "sqlite: parse completed_at")
			}
			r.CompletedAt = &t
		}
		if err := decodeExcluded([]byte(excluded.String), &r.Excluded); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func checkRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", op, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanSQLiteEvent mirrors scanPostgresEvent for text-encoded dates and times.
func scanSQLiteEvent(row scannable, total *int) (*StoredEvent, error) {
	var se StoredEvent
	var date, importedAt, updatedAt string
	var point []byte
	dest := []any{&se.ID, &se.ExternalID, &date}
	dest = append(dest, eventDest(&se.Event)...)
	dest = append(dest, &importedAt, &updatedAt, &point)
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if se.OccurredOn, err = time.Parse(acled.DateLayout, date); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse date of %s", se.ExternalID)
	}
	if se.ImportedAt, err = time.Parse(sqliteTime, importedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse imported_at of %s", se.ExternalID)
	}
	if se.UpdatedAt, err = time.Parse(sqliteTime, updatedAt); err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse updated_at of %s", se.ExternalID)
	}
	return withGeometry(&se, point)
}

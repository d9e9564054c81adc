package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/db"
)

// PostgresStore implements Store on PostGIS using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS events (
	id                 BIGSERIAL PRIMARY KEY,
	acled_id           TEXT NOT NULL UNIQUE CHECK (acled_id <> ''),
	date               DATE NOT NULL,
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
	latitude           DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
	longitude          DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
	geo_precision      SMALLINT NOT NULL CHECK (geo_precision BETWEEN 1 AND 3),
	civilian_targeting BOOLEAN NOT NULL DEFAULT false,
	fatalities         INTEGER NOT NULL DEFAULT 0 CHECK (fatalities >= 0),
	source             TEXT NOT NULL,
	source_scale       TEXT NOT NULL,
	notes              TEXT NOT NULL,
	tags               TEXT,
	"timestamp"        BIGINT NOT NULL,
	geom               geometry(Point, 4326) NOT NULL,
	imported_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_geom ON events USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_events_date_id ON events (date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (type);

CREATE TABLE IF NOT EXISTS ingest_log (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	rows_read     INTEGER NOT NULL DEFAULT 0,
	rows_upserted INTEGER NOT NULL DEFAULT 0,
	rows_skipped  INTEGER NOT NULL DEFAULT 0,
	rows_errored  INTEGER NOT NULL DEFAULT 0,
	excluded      JSONB,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_log_started_at ON ingest_log (started_at DESC);
`

var postgresUpsertSQL = sync.OnceValues(func() (string, error) {
	return db.UpsertSQL(db.UpsertConfig{
		Table:        eventsTable,
		Columns:      upsertColumns,
		ConflictKeys: []string{acled.ColExternalID},
		GuardColumn:  acled.ColTimestamp,
		ValueExprs:   map[string]string{geomColumn: "ST_GeomFromEWKB(%s)"},
		Touch:        []string{`"updated_at" = now()`},
	})
})

var postgresDialect = dialect{
	ph:   db.Dollar,
	date: func(t time.Time) any { return t },
	bbox: func(w *where, b *BBox) {
		w.add(`"geom" && ST_MakeEnvelope(%s, %s, %s, %s, 4326)`, b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	},
	typeIn: func(w *where, types []string) {
		w.add(`"type" = ANY(%s)`, types)
	},
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: ensure schema")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertEvent(ctx context.Context, ev *acled.Event) (Outcome, error) {
	query, err := postgresUpsertSQL()
	if err != nil {
		return 0, err
	}
	point, err := ev.EWKB()
	if err != nil {
		return 0, err
	}

	var outcome Outcome
	err = db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, eventArgs(ev, ev.OccurredOn, point)...)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert event %s", ev.ExternalID)
		}
		outcome = Skipped
		if tag.RowsAffected() > 0 {
			outcome = Applied
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, externalID string) (*StoredEvent, error) {
	q := `SELECT ` + quotedSelectList() + `, ST_AsEWKB("geom") FROM "events" WHERE "acled_id" = $1`
	ev, err := scanPostgresEvent(s.pool.QueryRow(ctx, q, externalID), nil)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get event %s", externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get event %s", externalID)
	}
	return ev, nil
}

func (s *PostgresStore) FindEvents(ctx context.Context, filter EventFilter) (*EventPage, error) {
	q, args := findEventsSQL(postgresDialect, `ST_AsEWKB("geom")`, filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find events")
	}
	defer rows.Close()

	page := &EventPage{Events: []StoredEvent{}}
	for rows.Next() {
		ev, err := scanPostgresEvent(rows, &page.TotalCount)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		page.Events = append(page.Events, *ev)
	}
	return page, eris.Wrap(rows.Err(), "postgres: iterate events")
}

func (s *PostgresStore) EventTypes(ctx context.Context) ([]acled.TypeGroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT "type", "sub_type" FROM "events"`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: event types")
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event type")
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate event types")
	}
	return acled.OrderTypes(pairs), nil
}

func (s *PostgresStore) StartRun(ctx context.Context, fileName string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_log (id, file_name, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, fileName, string(RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: start run for %s", fileName)
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *RunResult) error {
	excluded, err := json.Marshal(result.Excluded)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal exclusions")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_log SET status = $1, completed_at = $2, rows_read = $3, rows_upserted = $4, rows_skipped = $5, rows_errored = $6, excluded = $7 WHERE id = $8`,
		string(RunComplete), time.Now().UTC(), result.RowsRead, result.RowsUpserted, result.RowsSkipped, result.RowsErrored, excluded, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: complete run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_log SET status = $1, completed_at = $2, error = $3 WHERE id = $4`,
		string(RunFailed), time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: fail run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_name, status, started_at, completed_at, rows_read, rows_upserted, rows_skipped, rows_errored, excluded, error
		 FROM ingest_log ORDER BY started_at DESC LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var excluded []byte
		var errMsg *string
		if err := rows.Scan(&r.ID, &r.FileName, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.RowsRead, &r.RowsUpserted, &r.RowsSkipped, &r.RowsErrored, &excluded, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := decodeExcluded(excluded, &r.Excluded); err != nil {
			return nil, err
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// scanPostgresEvent scans a row of selectColumns followed by the EWKB point
// and, when total is non-nil, the window count.
func scanPostgresEvent(row pgx.Row, total *int) (*StoredEvent, error) {
	var se StoredEvent
	var point []byte
	dest := []any{&se.ID, &se.ExternalID, &se.OccurredOn}
	dest = append(dest, eventDest(&se.Event)...)
	dest = append(dest, &se.ImportedAt, &se.UpdatedAt, &point)
	if total != nil {
		dest = append(dest, total)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return withGeometry(&se, point)
}

func withGeometry(se *StoredEvent, point []byte) (*StoredEvent, error) {
	if len(point) == 0 {
		return se, nil
	}
	p, err := acled.DecodePoint(point)
	if err != nil {
		return nil, eris.Wrapf(err, "store: geometry of %s", se.ExternalID)
	}
	se.Geometry = p
	return se, nil
}

func decodeExcluded(raw []byte, dst *map[string]int) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return eris.Wrap(json.Unmarshal(raw, dst), "store: decode exclusions")
}

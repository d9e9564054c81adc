// Package store persists canonical conflict events and the ingest run log.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/acled-ingest/internal/acled"
)

// Outcome is the result of a single conditional upsert.
type Outcome int

const (
	// Applied means the event was inserted or replaced by a strictly newer version.
	Applied Outcome = iota + 1
	// Skipped means the stored event was as fresh or fresher; nothing changed.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// StoredEvent is an event as read back from storage.
type StoredEvent struct {
	ID int64 `json:"id"`
	acled.Event
	Geometry   *geom.Point `json:"-"`
	ImportedAt time.Time   `json:"imported_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// BBox is a lon/lat bounding box in WGS 84.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// EventFilter selects events for listing. Zero dates are unbounded.
type EventFilter struct {
	DateFrom time.Time
	DateTo   time.Time
	BBox     *BBox
	Types    []string
	Limit    int
}

// EventPage is one page of events plus the total number of matches.
type EventPage struct {
	Events     []StoredEvent
	TotalCount int
}

// RunStatus is the lifecycle state of an ingest run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunResult holds the counters recorded when a run completes.
type RunResult struct {
	RowsRead     int            `json:"rows_read" yaml:"rows_read"`
	RowsUpserted int            `json:"rows_upserted" yaml:"rows_upserted"`
	RowsSkipped  int            `json:"rows_skipped" yaml:"rows_skipped"`
	RowsErrored  int            `json:"rows_errored" yaml:"rows_errored"`
	Excluded     map[string]int `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

// Run is a row of the ingest run log: one attempt at one file.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	FileName    string     `json:"file_name" yaml:"file_name"`
	Status      RunStatus  `json:"status" yaml:"status"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RunResult   `yaml:",inline"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Store defines the persistence interface for ingestion and the query API.
type Store interface {
	// Events

	// UpsertEvent inserts ev, or replaces the stored event with the same
	// external ID when ev.Timestamp is strictly greater. The existence check,
	// freshness comparison, and write happen in one atomic statement inside
	// a transaction scoped to this event alone.
	UpsertEvent(ctx context.Context, ev *acled.Event) (Outcome, error)
	GetEvent(ctx context.Context, externalID string) (*StoredEvent, error)
	FindEvents(ctx context.Context, filter EventFilter) (*EventPage, error)
	EventTypes(ctx context.Context) ([]acled.TypeGroup, error)
	// EventTile renders filtered events in web mercator tile z/x/y as a
	// Mapbox Vector Tile. Drivers without MVT support return ErrUnsupported.
	EventTile(ctx context.Context, z, x, y int, filter EventFilter) ([]byte, error)

	// Ingest runs
	StartRun(ctx context.Context, fileName string) (string, error)
	CompleteRun(ctx context.Context, runID string, result *RunResult) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Ping(ctx context.Context) error

	// EnsureSchema creates missing tables and indexes. It is idempotent and
	// never alters existing objects.
	EnsureSchema(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

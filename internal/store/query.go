package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/db"
)

const (
	eventsTable = "events"
	geomColumn  = "geom"

	// DefaultLimit applies when a filter carries no limit.
	DefaultLimit = 2000
	// MaxLimit caps a single page of events.
	MaxLimit = 10000
)

// upsertColumns is the argument order shared by both drivers' upserts.
var upsertColumns = append(append([]string{}, acled.CanonicalColumns...), geomColumn)

// selectColumns lists the read-side columns; the geometry expression and the
// window count are appended per driver.
var selectColumns = append([]string{"id"}, append(append([]string{}, acled.CanonicalColumns...), "imported_at", "updated_at")...)

// eventArgs returns upsert arguments in upsertColumns order. date is the
// driver's encoding of the event date.
func eventArgs(ev *acled.Event, date any, geomEWKB []byte) []any {
	return []any{
		ev.ExternalID, date, ev.Type, ev.SubType, ev.DisorderType,
		ev.Actor1, ev.Actor2, ev.Inter1, ev.Inter2, ev.AssocActor1, ev.AssocActor2, ev.Interaction,
		ev.CountryCode, ev.Region, ev.Country, ev.Admin1, ev.Admin2, ev.Admin3, ev.Location,
		ev.Latitude, ev.Longitude, ev.GeoPrecision,
		ev.CivilianTargeting, ev.Fatalities,
		ev.Source, ev.SourceScale, ev.Notes, ev.Tags,
		ev.Timestamp,
		geomEWKB,
	}
}

// eventDest returns scan destinations for the columns between "date" and
// "imported_at" in selectColumns. Drivers scan the key, date, and audit
// columns themselves since their encodings differ.
func eventDest(ev *acled.Event) []any {
	return []any{
		&ev.Type, &ev.SubType, &ev.DisorderType,
		&ev.Actor1, &ev.Actor2, &ev.Inter1, &ev.Inter2, &ev.AssocActor1, &ev.AssocActor2, &ev.Interaction,
		&ev.CountryCode, &ev.Region, &ev.Country, &ev.Admin1, &ev.Admin2, &ev.Admin3, &ev.Location,
		&ev.Latitude, &ev.Longitude, &ev.GeoPrecision,
		&ev.CivilianTargeting, &ev.Fatalities,
		&ev.Source, &ev.SourceScale, &ev.Notes, &ev.Tags,
		&ev.Timestamp,
	}
}

func quotedSelectList() string {
	quoted := make([]string, len(selectColumns))
	for i, c := range selectColumns {
		quoted[i] = `"` + c + `"`
	}
	return strings.Join(quoted, ", ")
}

// dialect captures the few places where the two drivers' SQL differs.
type dialect struct {
	ph     db.Placeholder
	date   func(time.Time) any
	bbox   func(w *where, b *BBox)
	typeIn func(w *where, types []string)
}

// where accumulates conditions and their bind arguments.
type where struct {
	ph    db.Placeholder
	conds []string
	args  []any
}

// add appends a condition. Each %s in cond is replaced by the next placeholder.
func (w *where) add(cond string, args ...any) {
	phs := make([]any, len(args))
	for i := range args {
		phs[i] = w.ph(len(w.args) + i + 1)
	}
	w.conds = append(w.conds, fmt.Sprintf(cond, phs...))
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// normalizeLimit clamps limit to (0, MaxLimit].
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// findEventsSQL renders the listing query for filter. geomExpr selects the
// point as EWKB bytes.
func findEventsSQL(d dialect, geomExpr string, filter EventFilter) (string, []any) {
	w := &where{ph: d.ph}
	d.apply(w, filter)

	limitPH := d.ph(len(w.args) + 1)
	args := append(w.args, normalizeLimit(filter.Limit))

	q := fmt.Sprintf(`SELECT %s, %s, COUNT(*) OVER() FROM %q%s ORDER BY "date" DESC, "id" DESC LIMIT %s`,
		quotedSelectList(), geomExpr, eventsTable, w.String(), limitPH)
	return q, args
}

// apply adds the filter's conditions to w. A zero field adds nothing.
func (d dialect) apply(w *where, filter EventFilter) {
	if !filter.DateFrom.IsZero() {
		w.add(`"date" >= %s`, d.date(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		w.add(`"date" <= %s`, d.date(filter.DateTo))
	}
	if filter.BBox != nil {
		d.bbox(w, filter.BBox)
	}
	if len(filter.Types) > 0 {
		d.typeIn(w, filter.Types)
	}
}

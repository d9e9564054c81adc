package acled

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the only accepted event_date format.
const DateLayout = "2006-01-02"

// Reason identifies why a row was excluded from persistence.
type Reason string

const (
	ReasonInvalidCoordinates Reason = "invalid_coordinates"
	ReasonInvalidPrecision   Reason = "invalid_geo_precision"
)

// Exclusions reports rows dropped by the domain filters. ByReason counts per
// filter: a row failing both filters is counted under both reasons. Rows is
// the number of distinct excluded rows.
type Exclusions struct {
	ByReason map[Reason]int `json:"by_reason" yaml:"by_reason"`
	Rows     int            `json:"rows" yaml:"rows"`
}

// Total returns the sum of the per-reason counters.
func (x Exclusions) Total() int {
	var n int
	for _, c := range x.ByReason {
		n += c
	}
	return n
}

// NormalizeResult is the typed output of Normalize.
type NormalizeResult struct {
	Events   []Event
	Read     int
	Excluded Exclusions
}

// ParseError reports a value that could not be coerced. It fails the whole
// batch: a bad date or number means the export is malformed, not that one
// observation is wrong.
type ParseError struct {
	Row    int // 1-based data row
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("acled: row %d: column %s: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNegative = eris.New("must not be negative")

// Normalize validates and types rows whose header uses export column names.
// Steps run in order: header mapping, date parsing, numeric coercion, boolean
// derivation, null normalization, then the coordinate and precision filters.
// Coercion failures and missing required columns return an error for the
// whole batch; out-of-domain rows are excluded and counted.
func Normalize(header []string, rows [][]string) (*NormalizeResult, error) {
	idx, err := indexColumns(MapHeader(header))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(rows))
	for i, row := range rows {
		ev, err := coerceRow(i+1, row, idx)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	res := &NormalizeResult{
		Read:     len(rows),
		Excluded: Exclusions{ByReason: map[Reason]int{}},
	}

	// Both filters evaluate every coerced row; counts are not deduplicated.
	badCoords := make([]bool, len(events))
	for i := range events {
		if !ValidCoordinates(events[i].Latitude, events[i].Longitude) {
			badCoords[i] = true
			res.Excluded.ByReason[ReasonInvalidCoordinates]++
		}
	}
	badPrecision := make([]bool, len(events))
	for i := range events {
		if !ValidPrecision(events[i].GeoPrecision) {
			badPrecision[i] = true
			res.Excluded.ByReason[ReasonInvalidPrecision]++
		}
	}

	res.Events = events[:0]
	for i, ev := range events {
		if badCoords[i] || badPrecision[i] {
			res.Excluded.Rows++
			continue
		}
		res.Events = append(res.Events, ev)
	}

	return res, nil
}

// ValidCoordinates reports whether lat is in [-90, 90] and lon in [-180, 180].
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ValidPrecision reports whether p is a known geo precision level (1, 2 or 3).
func ValidPrecision(p int) bool {
	return p >= 1 && p <= 3
}

// indexColumns maps canonical names to positions and checks that every
// canonical column is present.
func indexColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	var missing []string
	for _, c := range CanonicalColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("acled: header missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// rowReader pulls canonical columns out of a single raw row.
type rowReader struct {
	n   int
	row []string
	idx map[string]int
}

func (r rowReader) get(col string) string {
	i := r.idx[col]
	if i >= len(r.row) {
		return ""
	}
	return r.row[i]
}

// nullable maps an empty or blank value to nil so storage gets NULL, not "".
func (r rowReader) nullable(col string) *string {
	v := r.get(col)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func (r rowReader) fail(col string, err error) *ParseError {
	return &ParseError{Row: r.n, Column: col, Value: r.get(col), Err: err}
}

func (r rowReader) int(col string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(r.get(col)))
	if err != nil {
		return 0, r.fail(col, err)
	}
	return v, nil
}

func (r rowReader) float(col string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.get(col)), 64)
	if err != nil {
		return 0, r.fail(col, err)
	}
	return v, nil
}

func coerceRow(n int, row []string, idx map[string]int) (Event, error) {
	r := rowReader{n: n, row: row, idx: idx}

	date, err := time.Parse(DateLayout, strings.TrimSpace(r.get(ColDate)))
	if err != nil {
		return Event{}, r.fail(ColDate, err)
	}

	iso, err := r.int(ColCountryCode)
	if err != nil {
		return Event{}, err
	}
	lat, err := r.float(ColLatitude)
	if err != nil {
		return Event{}, err
	}
	lon, err := r.float(ColLongitude)
	if err != nil {
		return Event{}, err
	}
	precision, err := r.int(ColGeoPrecision)
	if err != nil {
		return Event{}, err
	}

	fatalities := 0
	if strings.TrimSpace(r.get(ColFatalities)) != "" {
		fatalities, err = r.int(ColFatalities)
		if err != nil {
			return Event{}, err
		}
		if fatalities < 0 {
			return Event{}, r.fail(ColFatalities, errNegative)
		}
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(r.get(ColTimestamp)), 10, 64)
	if err != nil {
		return Event{}, r.fail(ColTimestamp, err)
	}

	ev := Event{
		ExternalID:   r.get(ColExternalID),
		OccurredOn:   date,
		Type:         r.get(ColType),
		SubType:      r.get(ColSubType),
		DisorderType: r.get(ColDisorderType),
		Actor1:       r.get(ColActor1),
		Actor2:       r.nullable(ColActor2),
		Inter1:       r.get(ColInter1),
		Inter2:       r.nullable(ColInter2),
		AssocActor1:  r.nullable(ColAssocActor1),
		AssocActor2:  r.nullable(ColAssocActor2),
		Interaction:  r.get(ColInteraction),
		CountryCode:  iso,
		Region:       r.get(ColRegion),
		Country:      r.get(ColCountry),
		Admin1:       r.get(ColAdmin1),
		Admin2:       r.nullable(ColAdmin2),
		Admin3:       r.nullable(ColAdmin3),
		Location:     r.get(ColLocation),
		Latitude:     lat,
		Longitude:    lon,
		GeoPrecision: precision,

		CivilianTargeting: r.get(ColCivilianTargeting) != "",
		Fatalities:        fatalities,

		Source:      r.get(ColSource),
		SourceScale: r.get(ColSourceScale),
		Notes:       r.get(ColNotes),
		Tags:        r.nullable(ColTags),
		Timestamp:   ts,
	}

	return ev, nil
}

package acled

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of stored event geometry (WGS 84).
const SRID = 4326

// Event is a validated, typed conflict event keyed by its ACLED ID.
// Optional text fields are nil when the export left them empty.
type Event struct {
	ExternalID   string    `json:"acled_id"`
	OccurredOn   time.Time `json:"date"`
	Type         string    `json:"type"`
	SubType      string    `json:"sub_type"`
	DisorderType string    `json:"disorder_type"`

	Actor1      string  `json:"actor1"`
	Actor2      *string `json:"actor2"`
	Inter1      string  `json:"inter1"`
	Inter2      *string `json:"inter2"`
	AssocActor1 *string `json:"assoc_actor_1"`
	AssocActor2 *string `json:"assoc_actor_2"`
	Interaction string  `json:"interaction"`

	CountryCode int     `json:"iso"`
	Region      string  `json:"region"`
	Country     string  `json:"country"`
	Admin1      string  `json:"admin1"`
	Admin2      *string `json:"admin2"`
	Admin3      *string `json:"admin3"`
	Location    string  `json:"location"`

	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	GeoPrecision int     `json:"geo_precision"`

	CivilianTargeting bool `json:"civilian_targeting"`
	Fatalities        int  `json:"fatalities"`

	Source      string  `json:"source"`
	SourceScale string  `json:"source_scale"`
	Notes       string  `json:"notes"`
	Tags        *string `json:"tags"`

	// Timestamp is the upstream version token; a stored event is only
	// replaced by one carrying a strictly greater value.
	Timestamp int64 `json:"timestamp"`
}

// Point returns the event location as a WGS 84 point (x = longitude, y = latitude).
func (e *Event) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{e.Longitude, e.Latitude}).SetSRID(SRID)
}

// EWKB encodes the event location as little-endian EWKB with SRID 4326.
func (e *Event) EWKB() ([]byte, error) {
	data, err := ewkb.Marshal(e.Point(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "acled: encode point for %s", e.ExternalID)
	}
	return data, nil
}

// DecodePoint parses an EWKB point as produced by EWKB.
func DecodePoint(data []byte) (*geom.Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "acled: decode point")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("acled: expected point geometry, got %T", g)
	}
	return p, nil
}

package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// MaxTileZoom is the deepest zoom level served as a vector tile.
const MaxTileZoom = 22

// tileExtent and tileBuffer are the MVT grid size and edge buffer in tile
// units.
const (
	tileExtent = 4096
	tileBuffer = 64
)

// tileLayer is the layer name clients style against.
const tileLayer = "events"

// ErrUnsupported is returned by drivers that lack a capability.
var ErrUnsupported = eris.New("store: not supported by this driver")

// ValidTile reports whether z/x/y addresses a tile in the web mercator
// pyramid.
func ValidTile(z, x, y int) bool {
	if z < 0 || z > MaxTileZoom {
		return false
	}
	n := 1 << z
	return x >= 0 && x < n && y >= 0 && y < n
}

// eventTileSQL renders the MVT query. $1..$3 are z, x, y; filter conditions
// follow. BBox is ignored since the tile envelope bounds the query.
func eventTileSQL(z, x, y int, filter EventFilter) (string, []any) {
	w := &where{ph: postgresDialect.ph, args: []any{z, x, y}}
	w.conds = append(w.conds, `"geom" && ST_Transform(ST_TileEnvelope($1, $2, $3), 4326)`)
	filter.BBox = nil
	postgresDialect.apply(w, filter)

	q := fmt.Sprintf(`SELECT ST_AsMVT(q, '%s', %d, 'geom') FROM (
	SELECT "acled_id", to_char("date", 'YYYY-MM-DD') AS "date", "type", "sub_type", "country", "fatalities",
		ST_AsMVTGeom(ST_Transform("geom", 3857), ST_TileEnvelope($1, $2, $3), %d, %d, true) AS "geom"
	FROM %q%s
) q`, tileLayer, tileExtent, tileExtent, tileBuffer, eventsTable, w.String())
	return q, w.args
}

// EventTile renders the events inside tile z/x/y as a Mapbox Vector Tile.
// An empty tile is returned as an empty slice.
func (s *PostgresStore) EventTile(ctx context.Context, z, x, y int, filter EventFilter) ([]byte, error) {
	if !ValidTile(z, x, y) {
		return nil, eris.Errorf("postgres: invalid tile %d/%d/%d", z, x, y)
	}

	q, args := eventTileSQL(z, x, y, filter)
	var tile []byte
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&tile); err != nil {
		return nil, eris.Wrapf(err, "postgres: event tile %d/%d/%d", z, x, y)
	}
	if tile == nil {
		tile = []byte{}
	}
	return tile, nil
}

// EventTile is not available on SQLite, which has no MVT encoder.
func (s *SQLiteStore) EventTile(context.Context, int, int, int, EventFilter) ([]byte, error) {
	return nil, ErrUnsupported
}

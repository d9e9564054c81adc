package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/store"
)

const defaultRuns = 20

// featureCollection is a GeoJSON FeatureCollection with paging metadata.
type featureCollection struct {
	Type        string             `json:"type"`
	Features    []*geojson.Feature `json:"features"`
	TotalCount  int                `json:"total_count"`
	IsTruncated bool               `json:"is_truncated"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents serves GET /api/events. date_from and date_to are
// required; limit, bbox, and types are optional.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, ok := parseDateRange(w, q, true)
	if !ok {
		return
	}

	filter := store.EventFilter{
		DateFrom: from,
		DateTo:   to,
		Types:    parseTypes(q.Get("types")),
		Limit:    parseLimit(q.Get("limit"), store.DefaultLimit, store.MaxLimit),
	}
	if raw := q.Get("bbox"); raw != "" {
		bbox, err := parseBBox(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_bbox", "bbox must be minLon,minLat,maxLon,maxLat: %v", err)
			return
		}
		filter.BBox = bbox
	}
	page, err := s.events.FindEvents(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: find events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load events")
		return
	}

	fc := featureCollection{
		Type:        "FeatureCollection",
		Features:    make([]*geojson.Feature, 0, len(page.Events)),
		TotalCount:  page.TotalCount,
		IsTruncated: page.TotalCount > filter.Limit,
	}
	for i := range page.Events {
		fc.Features = append(fc.Features, toFeature(&page.Events[i]))
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "acledID")
	ev, err := s.events.GetEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no event with id %s", id)
		return
	}
	if err != nil {
		zap.L().Error("api: get event", zap.String("external_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load event")
		return
	}
	writeJSON(w, http.StatusOK, toFeature(ev))
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	groups, err := s.events.EventTypes(r.Context())
	if err != nil {
		zap.L().Error("api: event types", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load event types")
		return
	}
	if groups == nil {
		groups = []acled.TypeGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.events.ListRuns(r.Context(), parseLimit(r.URL.Query().Get("limit"), defaultRuns, 500))
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleEventTile serves GET /api/tiles/{z}/{x}/{y}.mvt. The date range and
// types filters are optional here.
func (s *Server) handleEventTile(w http.ResponseWriter, r *http.Request) {
	var zxy [3]int
	for i, key := range []string{"z", "x", "y"} {
		n, err := strconv.Atoi(chi.URLParam(r, key))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tile", "%s must be an integer", key)
			return
		}
		zxy[i] = n
	}
	if !store.ValidTile(zxy[0], zxy[1], zxy[2]) {
		writeError(w, http.StatusBadRequest, "invalid_tile", "no tile %d/%d/%d", zxy[0], zxy[1], zxy[2])
		return
	}

	q := r.URL.Query()
	from, to, ok := parseDateRange(w, q, false)
	if !ok {
		return
	}

	tile, err := s.events.EventTile(r.Context(), zxy[0], zxy[1], zxy[2], store.EventFilter{
		DateFrom: from,
		DateTo:   to,
		Types:    parseTypes(q.Get("types")),
	})
	if errors.Is(err, store.ErrUnsupported) {
		writeError(w, http.StatusNotImplemented, "not_implemented", "vector tiles need the postgres store")
		return
	}
	if err != nil {
		zap.L().Error("api: event tile", zap.Ints("tile", zxy[:]), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to render tile")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.WriteHeader(http.StatusOK)
	w.Write(tile) //nolint:errcheck
}

// parseDateRange reads date_from and date_to. When required is false either
// may be absent. On failure the error response is already written.
func parseDateRange(w http.ResponseWriter, q url.Values, required bool) (from, to time.Time, ok bool) {
	var dates [2]time.Time
	for i, key := range []string{"date_from", "date_to"} {
		raw := q.Get(key)
		if raw == "" {
			if !required {
				continue
			}
			writeError(w, http.StatusBadRequest, "missing_parameter", "Missing required parameter: %s", key)
			return from, to, false
		}
		d, err := time.Parse(acled.DateLayout, raw)
		if err != nil || d.Format(acled.DateLayout) != raw {
			writeError(w, http.StatusBadRequest, "invalid_date", "%s must be a valid date in YYYY-MM-DD format", key)
			return from, to, false
		}
		dates[i] = d
	}
	if !dates[0].IsZero() && !dates[1].IsZero() && dates[0].After(dates[1]) {
		writeError(w, http.StatusBadRequest, "invalid_date_range", "date_from cannot exceed date_to")
		return from, to, false
	}
	return dates[0], dates[1], true
}

// parseTypes splits a comma-separated types list, dropping blanks.
func parseTypes(raw string) []string {
	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// parseLimit clamps raw to [1, max]. Missing or non-numeric values give def.
func parseLimit(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

func parseBBox(raw string) (*store.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, errors.New("want 4 values")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	b := &store.BBox{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return nil, errors.New("min exceeds max")
	}
	if !acled.ValidCoordinates(b.MinLat, b.MinLon) || !acled.ValidCoordinates(b.MaxLat, b.MaxLon) {
		return nil, errors.New("out of range")
	}
	return b, nil
}

// toFeature renders a stored event as a GeoJSON point feature keyed by its
// ACLED ID. Every other column is a property.
func toFeature(se *store.StoredEvent) *geojson.Feature {
	f := &geojson.Feature{
		ID: se.ExternalID,
		Properties: map[string]any{
			acled.ColDate:              se.OccurredOn.Format(acled.DateLayout),
			acled.ColType:              se.Type,
			acled.ColSubType:           se.SubType,
			acled.ColDisorderType:      se.DisorderType,
			acled.ColActor1:            se.Actor1,
			acled.ColActor2:            se.Actor2,
			acled.ColInter1:            se.Inter1,
			acled.ColInter2:            se.Inter2,
			acled.ColAssocActor1:       se.AssocActor1,
			acled.ColAssocActor2:       se.AssocActor2,
			acled.ColInteraction:       se.Interaction,
			acled.ColCountryCode:       se.CountryCode,
			acled.ColRegion:            se.Region,
			acled.ColCountry:           se.Country,
			acled.ColAdmin1:            se.Admin1,
			acled.ColAdmin2:            se.Admin2,
			acled.ColAdmin3:            se.Admin3,
			acled.ColLocation:          se.Location,
			acled.ColLatitude:          se.Latitude,
			acled.ColLongitude:         se.Longitude,
			acled.ColGeoPrecision:      se.GeoPrecision,
			acled.ColCivilianTargeting: se.CivilianTargeting,
			acled.ColFatalities:        se.Fatalities,
			acled.ColSource:            se.Source,
			acled.ColSourceScale:       se.SourceScale,
			acled.ColNotes:             se.Notes,
			acled.ColTags:              se.Tags,
			acled.ColTimestamp:         se.Timestamp,
			"imported_at":              se.ImportedAt,
			"updated_at":               se.UpdatedAt,
		},
	}
	if se.Geometry != nil {
		f.Geometry = se.Geometry
	} else {
		f.Geometry = se.Point()
	}
	return f
}

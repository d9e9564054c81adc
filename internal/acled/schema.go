// Package acled maps, validates, and types conflict-event rows from ACLED
// CSV exports into canonical events ready for storage.
package acled

import "strings"

// Canonical column names. They double as the storage column names.
const (
	ColExternalID        = "acled_id"
	ColDate              = "date"
	ColDisorderType      = "disorder_type"
	ColType              = "type"
	ColSubType           = "sub_type"
	ColActor1            = "actor1"
	ColActor2            = "actor2"
	ColInter1            = "inter1"
	ColInter2            = "inter2"
	ColAssocActor1       = "assoc_actor_1"
	ColAssocActor2       = "assoc_actor_2"
	ColInteraction       = "interaction"
	ColCountryCode       = "iso"
	ColRegion            = "region"
	ColCountry           = "country"
	ColAdmin1            = "admin1"
	ColAdmin2            = "admin2"
	ColAdmin3            = "admin3"
	ColLocation          = "location"
	ColLatitude          = "latitude"
	ColLongitude         = "longitude"
	ColGeoPrecision      = "geo_precision"
	ColCivilianTargeting = "civilian_targeting"
	ColFatalities        = "fatalities"
	ColSource            = "source"
	ColSourceScale       = "source_scale"
	ColNotes             = "notes"
	ColTags              = "tags"
	ColTimestamp         = "timestamp"
)

// ColumnMapping translates ACLED export header names to canonical names.
var ColumnMapping = map[string]string{
	"event_id_cnty":      ColExternalID,
	"event_date":         ColDate,
	"disorder_type":      ColDisorderType,
	"event_type":         ColType,
	"sub_event_type":     ColSubType,
	"actor1":             ColActor1,
	"actor2":             ColActor2,
	"inter1":             ColInter1,
	"inter2":             ColInter2,
	"assoc_actor_1":      ColAssocActor1,
	"assoc_actor_2":      ColAssocActor2,
	"interaction":        ColInteraction,
	"iso":                ColCountryCode,
	"region":             ColRegion,
	"country":            ColCountry,
	"admin1":             ColAdmin1,
	"admin2":             ColAdmin2,
	"admin3":             ColAdmin3,
	"location":           ColLocation,
	"latitude":           ColLatitude,
	"longitude":          ColLongitude,
	"geo_precision":      ColGeoPrecision,
	"civilian_targeting": ColCivilianTargeting,
	"fatalities":         ColFatalities,
	"source":             ColSource,
	"source_scale":       ColSourceScale,
	"notes":              ColNotes,
	"tags":               ColTags,
	"timestamp":          ColTimestamp,
}

// CanonicalColumns lists every canonical column in storage order.
var CanonicalColumns = []string{
	ColExternalID, ColDate, ColType, ColSubType, ColDisorderType,
	ColActor1, ColActor2, ColInter1, ColInter2, ColAssocActor1, ColAssocActor2, ColInteraction,
	ColCountryCode, ColRegion, ColCountry, ColAdmin1, ColAdmin2, ColAdmin3, ColLocation,
	ColLatitude, ColLongitude, ColGeoPrecision,
	ColCivilianTargeting, ColFatalities,
	ColSource, ColSourceScale, ColNotes, ColTags,
	ColTimestamp,
}

// CanonicalName returns the canonical name for an export column. Unknown
// columns are returned unchanged so they flow through and are ignored.
func CanonicalName(external string) string {
	if c, ok := ColumnMapping[strings.TrimSpace(external)]; ok {
		return c
	}
	return external
}

// MapHeader renames an export header row to canonical names.
func MapHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = CanonicalName(h)
	}
	return out
}

package store

import (
	"time"

	"github.com/sells-group/acled-ingest/internal/acled"
)

func strPtr(s string) *string { return &s }

// testEvent returns a valid event with the given key and version.
func testEvent(id string, ts int64) *acled.Event {
	return &acled.Event{
		ExternalID:   id,
		OccurredOn:   time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
		Type:         "Protests",
		SubType:      "Peaceful protest",
		DisorderType: "Demonstrations",
		Actor1:       "Protesters (France)",
		Inter1:       "Protesters",
		AssocActor1:  strPtr("CGT: General Confederation of Labor (France)"),
		Interaction:  "Protesters only",
		CountryCode:  250,
		Region:       "Europe",
		Country:      "France",
		Admin1:       "Normandie",
		Admin2:       strPtr("Eure"),
		Location:     "Etrepagny",
		Latitude:     49.3165,
		Longitude:    1.6123,
		GeoPrecision: 1,
		Source:       "France 3 Regions",
		SourceScale:  "National",
		Notes:        "Around 50 people gathered outside the town hall.",
		Timestamp:    ts,
	}
}

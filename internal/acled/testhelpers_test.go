package acled

// exportHeader is the column order of a standard ACLED export.
var exportHeader = []string{
	"event_id_cnty", "event_date", "disorder_type", "event_type", "sub_event_type",
	"actor1", "assoc_actor_1", "inter1", "actor2", "assoc_actor_2", "inter2", "interaction",
	"iso", "region", "country", "admin1", "admin2", "admin3", "location",
	"latitude", "longitude", "geo_precision",
	"source", "source_scale", "notes", "fatalities", "tags", "civilian_targeting", "timestamp",
}

// sampleRow returns a valid export row; overrides replace values by export column name.
func sampleRow(overrides map[string]string) []string {
	base := map[string]string{
		"event_id_cnty":      "FRA37186",
		"event_date":         "2024-12-15",
		"disorder_type":      "Demonstrations",
		"event_type":         "Protests",
		"sub_event_type":     "Peaceful protest",
		"actor1":             "Protesters (France)",
		"assoc_actor_1":      "Attac; CGT: General Confederation of Labor (France)",
		"inter1":             "Protesters",
		"actor2":             "",
		"assoc_actor_2":      "",
		"inter2":             "",
		"interaction":        "Protesters only",
		"iso":                "250",
		"region":             "Europe",
		"country":            "France",
		"admin1":             "Normandie",
		"admin2":             "Eure",
		"admin3":             "Les Andelys",
		"location":           "Etrepagny",
		"latitude":           "49.3165",
		"longitude":          "1.6123",
		"geo_precision":      "1",
		"source":             "France 3 Regions",
		"source_scale":       "National",
		"notes":              "On 15 December 2024, around 50 people gathered outside the town hall.",
		"fatalities":         "0",
		"tags":               "crowd size=around 50",
		"civilian_targeting": "",
		"timestamp":          "1734567890",
	}
	for k, v := range overrides {
		base[k] = v
	}
	row := make([]string, len(exportHeader))
	for i, h := range exportHeader {
		row[i] = base[h]
	}
	return row
}

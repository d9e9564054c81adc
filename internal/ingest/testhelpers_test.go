package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/acled-ingest/internal/store"
)

var exportHeader = []string{
	"event_id_cnty", "event_date", "disorder_type", "event_type", "sub_event_type",
	"actor1", "assoc_actor_1", "inter1", "actor2", "assoc_actor_2", "inter2", "interaction",
	"iso", "region", "country", "admin1", "admin2", "admin3", "location",
	"latitude", "longitude", "geo_precision",
	"source", "source_scale", "notes", "fatalities", "tags", "civilian_targeting", "timestamp",
}

// exportRow returns a valid export row for id; overrides replace values by
// export column name.
func exportRow(id string, overrides map[string]string) []string {
	base := map[string]string{
		"event_id_cnty":  id,
		"event_date":     "2024-12-15",
		"disorder_type":  "Demonstrations",
		"event_type":     "Protests",
		"sub_event_type": "Peaceful protest",
		"actor1":         "Protesters (France)",
		"assoc_actor_1":  "Attac; CGT: General Confederation of Labor (France)",
		"inter1":         "Protesters",
		"interaction":    "Protesters only",
		"iso":            "250",
		"region":         "Europe",
		"country":        "France",
		"admin1":         "Normandie",
		"admin2":         "Eure",
		"location":       "Etrepagny",
		"latitude":       "49.3165",
		"longitude":      "1.6123",
		"geo_precision":  "1",
		"source":         "France 3 Regions",
		"source_scale":   "National",
		"notes":          "On 15 December 2024, around 50 people gathered, then dispersed.",
		"fatalities":     "0",
		"timestamp":      "1734567890",
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

// exportCSV renders header plus rows with the given delimiter.
func exportCSV(t *testing.T, delim rune, rows ...[]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	require.NoError(t, w.Write(exportHeader))
	require.NoError(t, w.WriteAll(rows))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.EnsureSchema(context.Background()))
	return st
}

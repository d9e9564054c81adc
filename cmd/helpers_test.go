package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/acled-ingest/internal/config"
)

const exportFixture = `event_id_cnty,event_date,disorder_type,event_type,sub_event_type,actor1,assoc_actor_1,inter1,actor2,assoc_actor_2,inter2,interaction,iso,region,country,admin1,admin2,admin3,location,latitude,longitude,geo_precision,source,source_scale,notes,fatalities,tags,civilian_targeting,timestamp
FRA1,2024-12-15,Demonstrations,Protests,Peaceful protest,Protesters (France),,Protesters,,,,Protesters only,250,Europe,France,Normandie,Eure,,Etrepagny,49.3165,1.6123,1,France 3 Regions,National,"Around 50 people gathered, then dispersed.",0,crowd size=around 50,,1734567890
KEN1,2024-12-16,Political violence,Riots,Mob violence,Rioters (Kenya),,Rioters,Civilians (Kenya),,Civilians,Rioters-Civilians,404,Eastern Africa,Kenya,Nairobi,Westlands,,Nairobi,-1.2921,36.8219,1,The Standard,National,A mob attacked a trader.,1,,Civilian targeting,1734567999
`

// useTestConfig points the global config at a SQLite store and fresh
// directories, returning the incoming and archive paths.
func useTestConfig(t *testing.T) (incoming, archive string) {
	t.Helper()
	dir := t.TempDir()
	incoming = filepath.Join(dir, "incoming")
	archive = filepath.Join(dir, "archive")

	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "acled.db"),
		},
		Ingest: config.IngestConfig{
			IncomingDir: incoming,
			ArchiveDir:  archive,
			Pattern:     "*acled*.csv",
			SniffBytes:  8192,
			Interval:    time.Hour,
		},
		Server: config.ServerConfig{Port: 8080, RateLimit: 20, CORSOrigins: []string{"*"}},
		Log:    config.LogConfig{Level: "info", Format: "json"},
	}
	return incoming, archive
}

func writeExport(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

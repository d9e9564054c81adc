package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acled-ingest/internal/store"
)

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2025-03-01_ACLED_export.CSV", nil)
	writeFile(t, dir, "acled_b.csv", nil)
	writeFile(t, dir, "other.csv", nil)
	writeFile(t, dir, "acled_notes.txt", nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "acled_dir.csv"), 0o755))

	paths, err := Discover(dir, DefaultPattern)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "2025-03-01_ACLED_export.CSV"),
		filepath.Join(dir, "acled_b.csv"),
	}, paths)
}

func TestDiscover_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "incoming")
	paths, err := Discover(dir, DefaultPattern)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.DirExists(t, dir)
}

func TestDiscover_BadPattern(t *testing.T) {
	_, err := Discover(t.TempDir(), "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad pattern")
}

func TestArchive_Naming(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "archive")
	src := writeFile(t, in, "acled_2025.csv", []byte("x"))

	dest, err := Archive(src, out, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "acled_2025_20250304_050607.csv"), dest)
	assert.NoFileExists(t, src)
	assert.FileExists(t, dest)
}

func TestArchive_Collision(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, out, "acled_2025_20250304_050607.csv", []byte("earlier"))
	src := writeFile(t, in, "acled_2025.csv", []byte("x"))

	dest, err := Archive(src, out, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "acled_2025_20250304_050607_1.csv"), dest)
}

func newTestRunner(t *testing.T, st *store.SQLiteStore, m *Metrics, opts ...ProcessorOption) (*Runner, string, string) {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	opts = append(opts, WithMetrics(m))
	r := NewRunner(NewProcessor(st, opts...), NewRunLog(st), m, RunnerConfig{IncomingDir: in, ArchiveDir: out})
	r.now = func() time.Time { return fixedNow }
	return r, in, out
}

func TestRunner_RunOnce(t *testing.T) {
	st := newTestStore(t)
	m := NewMetrics(prometheus.NewRegistry())
	r, in, out := newTestRunner(t, st, m)

	good := writeFile(t, in, "acled_good.csv", exportCSV(t, ',', exportRow("FRA1", nil)))
	bad := writeFile(t, in, "acled_bad.csv", exportCSV(t, ',', exportRow("FRA2", map[string]string{"iso": "France"})))
	writeFile(t, in, "unrelated.csv", []byte("a,b\n1,2\n"))

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 2)
	assert.Equal(t, 1, report.Failed())

	// Sorted by name: bad before good.
	assert.Equal(t, bad, report.Files[0].Path)
	assert.NotEmpty(t, report.Files[0].Error)
	assert.Empty(t, report.Files[0].Archived)
	assert.FileExists(t, bad)

	assert.Equal(t, good, report.Files[1].Path)
	assert.Equal(t, filepath.Join(out, "acled_good_20250304_050607.csv"), report.Files[1].Archived)
	assert.NoFileExists(t, good)
	assert.Equal(t, 1, report.Files[1].Summary.Upserted)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := map[string]store.RunStatus{}
	for _, run := range runs {
		statuses[run.FileName] = run.Status
	}
	assert.Equal(t, store.RunFailed, statuses["acled_bad.csv"])
	assert.Equal(t, store.RunComplete, statuses["acled_good.csv"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("failed")))
}

func TestRunner_RunOnce_NoFiles(t *testing.T) {
	st := newTestStore(t)
	r, _, _ := newTestRunner(t, st, nil)

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Files)
}

func TestRunner_RunOnce_DryRunLeavesFiles(t *testing.T) {
	st := newTestStore(t)
	r, in, _ := newTestRunner(t, st, nil, WithDryRun(true))
	path := writeFile(t, in, "acled.csv", exportCSV(t, ',', exportRow("FRA1", nil)))

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Files, 1)
	assert.Empty(t, report.Files[0].Archived)
	assert.FileExists(t, path)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunner_RetryAfterFix(t *testing.T) {
	st := newTestStore(t)
	r, in, _ := newTestRunner(t, st, nil)
	path := writeFile(t, in, "acled.csv", exportCSV(t, ',', exportRow("FRA1", map[string]string{"timestamp": "soon"})))

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())

	writeFile(t, in, "acled.csv", exportCSV(t, ',', exportRow("FRA1", nil)))
	report, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	assert.NoFileExists(t, path)
}

func TestRunner_Watch(t *testing.T) {
	st := newTestStore(t)
	r, in, _ := newTestRunner(t, st, nil)
	writeFile(t, in, "acled.csv", exportCSV(t, ',', exportRow("FRA1", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Watch(ctx, time.Hour))

	_, err := st.GetEvent(context.Background(), "FRA1")
	assert.NoError(t, err)
}

func TestRunner_Watch_InvalidInterval(t *testing.T) {
	r := NewRunner(NewProcessor(&fakeWriter{}), nil, nil, RunnerConfig{IncomingDir: t.TempDir()})
	err := r.Watch(context.Background(), 0)
	require.Error(t, err)
}

func TestRunner_ProcessPath_DoesNotArchive(t *testing.T) {
	st := newTestStore(t)
	r, _, out := newTestRunner(t, st, nil)
	path := writeFile(t, t.TempDir(), "manual export.csv", exportCSV(t, ';', exportRow("FRA1", nil)))

	res := r.ProcessPath(context.Background(), path)
	require.Empty(t, res.Error)
	assert.Empty(t, res.Archived)
	assert.Equal(t, 1, res.Summary.Upserted)
	assert.FileExists(t, path)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunComplete, runs[0].Status)
	assert.Equal(t, "manual export.csv", runs[0].FileName)
}

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// DefaultPattern matches ACLED export file names, compared case-insensitively.
const DefaultPattern = "*acled*.csv"

// archiveStampLayout is the timestamp suffix added to archived file names.
const archiveStampLayout = "20060102_150405"

// RunnerConfig holds the directories and pattern used by a Runner.
type RunnerConfig struct {
	IncomingDir string
	ArchiveDir  string
	Pattern     string
}

// FileResult is the outcome of one discovered file.
type FileResult struct {
	Path     string        `json:"path" yaml:"path"`
	Summary  *BatchSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Archived string        `json:"archived,omitempty" yaml:"archived,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunReport collects the file results of one scan.
type RunReport struct {
	Started time.Time    `json:"started" yaml:"started"`
	Files   []FileResult `json:"files" yaml:"files"`
}

// Failed returns the number of files that were left in place.
func (r *RunReport) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Error != "" {
			n++
		}
	}
	return n
}

// Runner scans the incoming directory, processes each matching file, and
// archives the ones that succeed. Failed files stay put for the next scan.
type Runner struct {
	proc    *Processor
	runs    *RunLog
	metrics *Metrics
	cfg     RunnerConfig
	now     func() time.Time
}

// NewRunner creates a Runner. runs and metrics may be nil.
func NewRunner(proc *Processor, runs *RunLog, metrics *Metrics, cfg RunnerConfig) *Runner {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	return &Runner{
		proc:    proc,
		runs:    runs,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce processes every file currently matching the pattern, in name
// order. A file's failure never stops the scan; the returned error is
// reserved for discovery failures and cancellation.
func (r *Runner) RunOnce(ctx context.Context) (*RunReport, error) {
	log := zap.L().With(zap.String("component", "ingest.runner"))
	report := &RunReport{Started: r.now(), Files: []FileResult{}}

	paths, err := Discover(r.cfg.IncomingDir, r.cfg.Pattern)
	if err != nil {
		return report, err
	}
	if len(paths) == 0 {
		log.Debug("ingest: no files found",
			zap.String("dir", r.cfg.IncomingDir),
			zap.String("pattern", r.cfg.Pattern),
		)
		return report, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "ingest: scan cancelled")
		}
		report.Files = append(report.Files, r.processOne(ctx, log, path))
	}

	log.Info("ingest: scan complete",
		zap.Int("files", len(report.Files)),
		zap.Int("failed", report.Failed()),
	)
	return report, nil
}

func (r *Runner) processOne(ctx context.Context, log *zap.Logger, path string) FileResult {
	log = log.With(zap.String("file", filepath.Base(path)))
	res := r.process(ctx, log, path)
	if res.Error != "" || r.proc.DryRun() {
		return res
	}

	dest, err := Archive(path, r.cfg.ArchiveDir, r.now())
	if err != nil {
		r.metrics.incFiles("archive_failed")
		log.Error("ingest: archive failed", zap.Error(err))
		return res
	}
	res.Archived = dest
	log.Info("ingest: file archived", zap.String("archived", dest))
	return res
}

// ProcessPath runs a single file outside the incoming directory. The run is
// logged like a scanned file but the file is never moved.
func (r *Runner) ProcessPath(ctx context.Context, path string) FileResult {
	log := zap.L().With(zap.String("component", "ingest.runner"), zap.String("file", filepath.Base(path)))
	return r.process(ctx, log, path)
}

func (r *Runner) process(ctx context.Context, log *zap.Logger, path string) FileResult {
	res := FileResult{Path: path}

	var runID string
	if !r.proc.DryRun() {
		runID = r.runs.Start(ctx, filepath.Base(path))
	}

	summary, err := r.proc.ProcessFile(ctx, path)
	res.Summary = summary
	if err != nil {
		res.Error = err.Error()
		r.runs.Fail(ctx, runID, err)
		r.metrics.incFiles("failed")
		log.Error("ingest: file failed, leaving in place", zap.Error(err))
		return res
	}
	r.runs.Complete(ctx, runID, summary)
	r.metrics.incFiles("processed")
	return res
}

// Watch runs RunOnce immediately and then every interval until ctx is
// cancelled. Scan errors are logged and the loop continues.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return eris.Errorf("ingest: watch interval must be positive, got %s", interval)
	}

	log := zap.L().With(zap.String("component", "ingest.runner"))
	log.Info("starting ingest watcher",
		zap.String("dir", r.cfg.IncomingDir),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("ingest: scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("ingest watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Discover lists regular files in dir whose names match pattern, ignoring
// case, sorted by name. dir is created when missing.
func Discover(dir, pattern string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ingest: create incoming dir %s", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read incoming dir %s", dir)
	}

	fold := cases.Fold()
	foldedPattern := fold.String(pattern)
	if _, err := filepath.Match(foldedPattern, ""); err != nil {
		return nil, eris.Wrapf(err, "ingest: bad pattern %q", pattern)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(foldedPattern, fold.String(e.Name())); ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Archive moves path into archiveDir as <stem>_<YYYYMMDD_HHMMSS><ext>,
// adding a counter when that name is already taken. It returns the new path.
func Archive(path, archiveDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "ingest: create archive dir %s", archiveDir)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := stem + "_" + now.Format(archiveStampLayout)

	dest := filepath.Join(archiveDir, name+ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); err != nil {
			break
		}
		dest = filepath.Join(archiveDir, name+"_"+strconv.Itoa(i)+ext)
	}

	if err := os.Rename(path, dest); err != nil {
		return "", eris.Wrapf(err, "ingest: archive %s", base)
	}
	return dest, nil
}

package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/store"
)

// RunRecorder persists run-log entries. store.Store satisfies it.
type RunRecorder interface {
	StartRun(ctx context.Context, fileName string) (string, error)
	CompleteRun(ctx context.Context, runID string, result *store.RunResult) error
	FailRun(ctx context.Context, runID string, errMsg string) error
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// RunLog records one entry per processed file. Write failures are logged and
// swallowed so the run log can never fail a batch. A nil *RunLog is a no-op.
type RunLog struct {
	rec RunRecorder
	log *zap.Logger
}

// NewRunLog creates a RunLog backed by rec.
func NewRunLog(rec RunRecorder) *RunLog {
	return &RunLog{rec: rec, log: zap.L().With(zap.String("component", "ingest.runlog"))}
}

// Start opens an entry for fileName. It returns "" when the entry could not
// be written; later calls with an empty ID do nothing.
func (l *RunLog) Start(ctx context.Context, fileName string) string {
	if l == nil {
		return ""
	}
	id, err := l.rec.StartRun(ctx, fileName)
	if err != nil {
		l.log.Warn("ingest: run log start failed", zap.String("file", fileName), zap.Error(err))
		return ""
	}
	return id
}

// Complete closes the entry with the batch counters.
func (l *RunLog) Complete(ctx context.Context, runID string, s *BatchSummary) {
	if l == nil || runID == "" {
		return
	}
	result := &store.RunResult{
		RowsRead:     s.RowsRead,
		RowsUpserted: s.Upserted,
		RowsSkipped:  s.Skipped,
		RowsErrored:  s.Errored,
		Excluded:     s.Excluded,
	}
	if err := l.rec.CompleteRun(ctx, runID, result); err != nil {
		l.log.Warn("ingest: run log complete failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// Fail closes the entry with the batch error.
func (l *RunLog) Fail(ctx context.Context, runID string, cause error) {
	if l == nil || runID == "" {
		return
	}
	if err := l.rec.FailRun(ctx, runID, cause.Error()); err != nil {
		l.log.Warn("ingest: run log failure not recorded", zap.String("run_id", runID), zap.Error(err))
	}
}

// ListRecent returns the newest entries first.
func (l *RunLog) ListRecent(ctx context.Context, limit int) ([]store.Run, error) {
	if l == nil {
		return nil, nil
	}
	return l.rec.ListRuns(ctx, limit)
}

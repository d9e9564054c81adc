package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/csvfile"
	"github.com/sells-group/acled-ingest/internal/resilience"
)

// DefaultSniffBytes is how much of a file is sampled to detect its delimiter.
const DefaultSniffBytes = 8192

// BatchSummary is the outcome of one file.
type BatchSummary struct {
	File         string         `json:"file" yaml:"file"`
	Delimiter    string         `json:"delimiter" yaml:"delimiter"`
	RowsRead     int            `json:"rows_read" yaml:"rows_read"`
	Excluded     map[string]int `json:"excluded" yaml:"excluded"`
	ExcludedRows int            `json:"excluded_rows" yaml:"excluded_rows"`
	UpsertCounts `yaml:",inline"`
	Anomalies    []string      `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
	DryRun       bool          `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Processor runs one file at a time through delimiter detection,
// normalization, and the upsert.
type Processor struct {
	upserter   *Upserter
	metrics    *Metrics
	sniffBytes int
	dryRun     bool
	retry      *resilience.Policy
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithSniffBytes sets the delimiter sample size.
func WithSniffBytes(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.sniffBytes = n
		}
	}
}

// WithDryRun stops after normalization; nothing is written.
func WithDryRun(dryRun bool) ProcessorOption {
	return func(p *Processor) { p.dryRun = dryRun }
}

// WithMetrics records row counters to m.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithRetry sets the per-record retry policy for transient write failures.
func WithRetry(policy resilience.Policy) ProcessorOption {
	return func(p *Processor) { p.retry = &policy }
}

// NewProcessor creates a Processor writing events through w.
func NewProcessor(w EventWriter, opts ...ProcessorOption) *Processor {
	p := &Processor{sniffBytes: DefaultSniffBytes}
	for _, opt := range opts {
		opt(p)
	}
	p.upserter = NewUpserter(w, p.metrics)
	if p.retry != nil {
		p.upserter.SetRetryPolicy(*p.retry)
	}
	return p
}

// DryRun reports whether the processor skips writes.
func (p *Processor) DryRun() bool { return p.dryRun }

// ProcessFile opens path and processes it.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*BatchSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return p.ProcessReader(ctx, filepath.Base(path), f)
}

// ProcessReader processes one export read from r. An error means the batch
// as a whole failed (unreadable or structurally malformed input) and nothing
// was written. Per-record write failures are reported in the summary.
func (p *Processor) ProcessReader(ctx context.Context, name string, r io.Reader) (*BatchSummary, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "ingest.batch"), zap.String("file", name))

	br := bufio.NewReaderSize(r, p.sniffBytes)
	sample, err := br.Peek(p.sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, eris.Wrapf(err, "ingest: sample %s", name)
	}

	delim, err := csvfile.SniffDelimiter(sample)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: detect delimiter of %s", name)
	}

	summary := &BatchSummary{
		File:      name,
		Delimiter: string(delim),
		Excluded:  map[string]int{},
		DryRun:    p.dryRun,
	}
	if delim != ',' {
		anomaly := fmt.Sprintf("non-comma delimiter %q", delim)
		summary.Anomalies = append(summary.Anomalies, anomaly)
		log.Warn("ingest: non-comma delimiter detected", zap.String("delimiter", string(delim)))
	}

	header, rows, err := csvfile.ReadAll(ctx, br, delim)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", name)
	}

	norm, err := acled.Normalize(header, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: normalize %s", name)
	}

	summary.RowsRead = norm.Read
	summary.ExcludedRows = norm.Excluded.Rows
	p.metrics.addRows("read", norm.Read)
	for reason, n := range norm.Excluded.ByReason {
		summary.Excluded[string(reason)] = n
		p.metrics.addExcluded(string(reason), n)
		log.Warn("ingest: rows excluded",
			zap.String("reason", string(reason)),
			zap.Int("count", n),
		)
	}

	switch {
	case p.dryRun:
		log.Info("ingest: dry run, skipping writes", zap.Int("events", len(norm.Events)))
	case len(norm.Events) == 0:
		log.Info("ingest: no events survived normalization")
	default:
		counts, err := p.upserter.Apply(ctx, norm.Events)
		summary.UpsertCounts = *counts
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
	}

	summary.Duration = time.Since(start)
	log.Info("ingest: batch complete",
		zap.Int("rows_read", summary.RowsRead),
		zap.Int("excluded_rows", summary.ExcludedRows),
		zap.Int("upserted", summary.Upserted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

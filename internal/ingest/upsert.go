// Package ingest runs ACLED export files through normalization and the
// freshness-gated upsert, and handles discovery and archival of input files.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/resilience"
	"github.com/sells-group/acled-ingest/internal/store"
)

// EventWriter applies a single event atomically. store.Store satisfies it.
type EventWriter interface {
	UpsertEvent(ctx context.Context, ev *acled.Event) (store.Outcome, error)
}

// RecordError describes one event whose write failed.
type RecordError struct {
	ExternalID string `json:"external_id" yaml:"external_id"`
	Message    string `json:"message" yaml:"message"`
}

// UpsertCounts aggregates per-record outcomes of Apply.
type UpsertCounts struct {
	Upserted int           `json:"upserted" yaml:"upserted"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Errored  int           `json:"errored" yaml:"errored"`
	Errors   []RecordError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Upserter applies events one at a time, in order, each in its own unit of
// work. Transient failures are retried per record; a write that still fails
// is recorded and the remaining events run.
type Upserter struct {
	writer  EventWriter
	metrics *Metrics
	policy  resilience.Policy
}

// NewUpserter creates an Upserter writing through w. metrics may be nil.
func NewUpserter(w EventWriter, metrics *Metrics) *Upserter {
	return &Upserter{writer: w, metrics: metrics, policy: resilience.DefaultPolicy()}
}

// SetRetryPolicy replaces the per-record retry policy.
func (u *Upserter) SetRetryPolicy(p resilience.Policy) {
	u.policy = p
}

// Apply writes events in document order. Write errors never escape; the
// returned error is non-nil only when ctx ends before every event was
// attempted, in which case counts cover the events already applied.
func (u *Upserter) Apply(ctx context.Context, events []acled.Event) (*UpsertCounts, error) {
	log := zap.L().With(zap.String("component", "ingest.upsert"))
	counts := &UpsertCounts{}

	for i := range events {
		if err := ctx.Err(); err != nil {
			u.record(counts)
			return counts, eris.Wrapf(err, "ingest: apply stopped after %d of %d events", i, len(events))
		}

		ev := &events[i]
		outcome, err := resilience.DoVal(ctx, u.policy, func(ctx context.Context) (store.Outcome, error) {
			return u.writer.UpsertEvent(ctx, ev)
		})
		if err != nil {
			counts.Errored++
			counts.Errors = append(counts.Errors, RecordError{ExternalID: ev.ExternalID, Message: err.Error()})
			log.Warn("ingest: event write failed",
				zap.String("external_id", ev.ExternalID),
				zap.Error(err),
			)
			continue
		}

		switch outcome {
		case store.Applied:
			counts.Upserted++
		case store.Skipped:
			counts.Skipped++
		}
	}

	u.record(counts)
	return counts, nil
}

func (u *Upserter) record(c *UpsertCounts) {
	u.metrics.addRows("upserted", c.Upserted)
	u.metrics.addRows("skipped", c.Skipped)
	u.metrics.addRows("errored", c.Errored)
}

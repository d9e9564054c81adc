package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ingest counters. A nil *Metrics records nothing.
type Metrics struct {
	rows     *prometheus.CounterVec
	excluded *prometheus.CounterVec
	files    *prometheus.CounterVec
}

// NewMetrics creates the ingest counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acled",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Rows processed, by outcome (read, upserted, skipped, errored).",
		}, []string{"outcome"}),
		excluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acled",
			Subsystem: "ingest",
			Name:      "excluded_total",
			Help:      "Rows excluded by a domain filter, by reason.",
		}, []string{"reason"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acled",
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Input files handled, by status (processed, failed, archive_failed).",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.rows, m.excluded, m.files)
	}
	return m
}

func (m *Metrics) addRows(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rows.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) addExcluded(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.excluded.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) incFiles(status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(status).Inc()
}

package store

import (
	"context"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/rzpsarthak13/holdthis/internal/core"
)

// Metrics holds the counters of one store. Every store owns its own
// metrics.Set so that two stores in one process never share series.
type Metrics struct {
	set *metrics.Set

	sets          *metrics.Counter
	gets          *metrics.Counter
	buffered      *metrics.Counter
	flushes       *metrics.Counter
	flushErrors   *metrics.Counter
	purgedRows    *metrics.Counter
	flushDuration *metrics.Histogram
}

func newMetrics() *Metrics {
	set := metrics.NewSet()
	return &Metrics{
		set:           set,
		sets:          set.NewCounter("holdthis_sets_total"),
		gets:          set.NewCounter("holdthis_gets_total"),
		buffered:      set.NewCounter("holdthis_buffered_total"),
		flushes:       set.NewCounter("holdthis_flushes_total"),
		flushErrors:   set.NewCounter("holdthis_flush_errors_total"),
		purgedRows:    set.NewCounter("holdthis_purged_rows_total"),
		flushDuration: set.NewHistogram("holdthis_flush_duration_seconds"),
	}
}

// OnFlush records a flush event.
func (m *Metrics) OnFlush(_ context.Context, event core.FlushEvent) {
	m.flushes.Inc()
	if event.Err != nil {
		m.flushErrors.Inc()
	}
	m.flushDuration.Update(event.Duration.Seconds())
}

// WritePrometheus writes every series in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

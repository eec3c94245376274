package api

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"query5/internal/engine"
	"query5/internal/models"
)

type Metrics struct {
	queries   *prometheus.CounterVec
	duration  prometheus.Histogram
	scanned   prometheus.Counter
	matched   prometheus.Counter
	tableRows *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "query5",
			Name:      "queries_total",
			Help:      "Queries executed, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "query5",
			Name:      "query_duration_seconds",
			Help:      "Wall time of query execution.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "query5",
			Name:      "lineitems_scanned_total",
			Help:      "Line items scanned by query workers.",
		}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "query5",
			Name:      "lineitems_matched_total",
			Help:      "Line items that satisfied the join and contributed revenue.",
		}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "query5",
			Name:      "table_rows",
			Help:      "Rows loaded per table.",
		}, []string{"table"}),
	}
	reg.MustRegister(m.queries, m.duration, m.scanned, m.matched, m.tableRows)
	return m
}

func queryStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrRegionNotFound), errors.Is(err, engine.ErrAmbiguousRegion):
		return "region_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *Metrics) observe(err error, elapsed time.Duration, res *models.Result) {
	m.queries.WithLabelValues(queryStatus(err)).Inc()
	m.duration.Observe(elapsed.Seconds())
	if res != nil {
		m.scanned.Add(float64(res.Scanned))
		m.matched.Add(float64(res.Matched))
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsInsertedTotal  prometheus.Counter
	InsertFailuresTotal  prometheus.Counter
	EventsDroppedTotal   prometheus.Counter
	EventsRequeuedTotal  prometheus.Counter
	QueueDepth           prometheus.Gauge
	FailedQueueDepth     prometheus.Gauge
	BatchSizeCurrent     prometheus.Gauge
	FlushDurationSeconds prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		EventsInsertedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_audit_events_inserted_total",
			Help: "Audit events durably written by the batch consumer",
		}),
		InsertFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_audit_insert_failures_total",
			Help: "Audit events whose batch insert failed, counted per event",
		}),
		EventsDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_audit_events_dropped_total",
			Help: "Audit events discarded because the failed queue was at its cap",
		}),
		EventsRequeuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_audit_events_requeued_total",
			Help: "Failed audit events moved back to the main queue for retry",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "filegate_audit_queue_depth",
			Help: "Main audit queue depth at the last flush",
		}),
		FailedQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "filegate_audit_failed_queue_depth",
			Help: "Failed audit queue depth at the last report",
		}),
		BatchSizeCurrent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "filegate_audit_batch_size",
			Help: "Adaptive batch size chosen at the last flush",
		}),
		FlushDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "filegate_audit_flush_duration_seconds",
			Help:    "Batch insert latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

func (m *Metrics) RecordInserted(n int) {
	m.EventsInsertedTotal.Add(float64(n))
}

func (m *Metrics) RecordInsertFailures(n int) {
	m.InsertFailuresTotal.Add(float64(n))
}

func (m *Metrics) RecordDropped(n int) {
	m.EventsDroppedTotal.Add(float64(n))
}

func (m *Metrics) RecordRequeued(n int) {
	m.EventsRequeuedTotal.Add(float64(n))
}

func (m *Metrics) ObserveFlush(batchSize int, depth int64, d time.Duration) {
	m.BatchSizeCurrent.Set(float64(batchSize))
	m.QueueDepth.Set(float64(depth))
	m.FlushDurationSeconds.Observe(d.Seconds())
}

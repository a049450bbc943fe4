package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AdmissionsTotal      *prometheus.CounterVec
	QuotaRejectionsTotal prometheus.Counter
	SharedTierErrors     prometheus.Counter
	FailOpenTotal        prometheus.Counter
	LegacyBypassTotal    prometheus.Counter
	AdmitDurationSeconds prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		AdmissionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "filegate_admissions_total",
			Help: "Admission decisions by deciding layer and outcome",
		}, []string{"layer", "outcome"}),
		QuotaRejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_quota_rejections_total",
			Help: "Requests rejected by the monthly quota gate",
		}),
		SharedTierErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_shared_tier_errors_total",
			Help: "Shared cache round trips that failed or timed out",
		}),
		FailOpenTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_fail_open_total",
			Help: "Admissions granted on the fail-open path during degradation",
		}),
		LegacyBypassTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "filegate_legacy_bypass_total",
			Help: "Requests passed through unauthenticated for pre-migration tenants",
		}),
		AdmitDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "filegate_admit_duration_seconds",
			Help:    "End-to-end admission check latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

func (m *Metrics) RecordAdmission(layer string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.AdmissionsTotal.WithLabelValues(layer, outcome).Inc()
}

func (m *Metrics) RecordQuotaRejection() {
	m.QuotaRejectionsTotal.Inc()
}

func (m *Metrics) RecordSharedTierError() {
	m.SharedTierErrors.Inc()
}

func (m *Metrics) RecordFailOpen() {
	m.FailOpenTotal.Inc()
}

func (m *Metrics) RecordLegacyBypass() {
	m.LegacyBypassTotal.Inc()
}

func (m *Metrics) ObserveAdmitDuration(d time.Duration) {
	m.AdmitDurationSeconds.Observe(d.Seconds())
}

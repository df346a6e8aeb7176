package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks        *prometheus.CounterVec
	StoreFailures prometheus.Counter
	BreakerState  prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_ratelimit_checks_total",
			Help: "Notification rate limit checks by bucket and outcome",
		}, []string{"bucket", "outcome"}),
		StoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flock_ratelimit_store_failures_total",
			Help: "Primary bucket store errors that fell back to memory",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flock_ratelimit_degraded",
			Help: "1 while the primary bucket store circuit is open",
		}),
	}
}

func (m *Metrics) RecordCheck(bucket string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Checks.WithLabelValues(bucket, outcome).Inc()
}

func (m *Metrics) IncrementStoreFailures() {
	m.StoreFailures.Inc()
}

func (m *Metrics) SetDegraded(open bool) {
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}

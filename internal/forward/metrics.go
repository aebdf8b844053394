package forward

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts forwarding outcomes per sink. Sink failures never reach the
// original caller, so these counters and the logs are the only way to see
// them.
type Metrics struct {
	dispatched *prometheus.CounterVec
	failures   *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

// NewMetrics registers the forwarding counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forward_dispatched_total",
			Help: "Forwarding calls that completed successfully, per sink.",
		}, []string{"sink"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forward_failures_total",
			Help: "Forwarding calls that failed after the retry budget, per sink.",
		}, []string{"sink"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "forward_dropped_total",
			Help: "Forwarding tasks dropped because the sink queue was full.",
		}, []string{"sink"}),
	}
}

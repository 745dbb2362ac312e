package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "webhook_breaker_state",
			Help: "Per-endpoint webhook breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"endpoint"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_breaker_transitions_total",
			Help: "Webhook breaker state transitions",
		},
		[]string{"endpoint", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_breaker_opened_total",
			Help: "Times a webhook breaker tripped open",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}

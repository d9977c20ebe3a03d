package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcoderd_upstream_breaker_state",
		Help: "Upstream circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"upstream"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_upstream_breaker_trips_total",
		Help: "Transitions of an upstream circuit breaker to open",
	}, []string{"upstream", "reason"})
)

var breakerStateValue = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// SetCircuitBreakerState records the breaker state of an upstream
// (configsvc, workday). Unknown states are ignored.
func SetCircuitBreakerState(upstream, state string) {
	if v, ok := breakerStateValue[state]; ok {
		breakerState.WithLabelValues(upstream).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(upstream, reason string) {
	breakerTrips.WithLabelValues(upstream, reason).Inc()
}

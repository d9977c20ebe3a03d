package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_outbound_requests_total",
		Help: "Outbound HTTP requests by upstream and status class",
	}, []string{"upstream", "class"})

	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcoderd_api_requests_total",
		Help: "Admin API requests by route and status code",
	}, []string{"route", "code"})
)

// IncOutbound records an outbound request. status 0 means a transport error.
func IncOutbound(upstream string, status int) {
	outboundRequests.WithLabelValues(upstream, statusClass(status)).Inc()
}

// IncAPIRequest records an admin API request.
func IncAPIRequest(route string, status int) {
	apiRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

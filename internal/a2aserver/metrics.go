package a2aserver

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks request counts as Prometheus counters. /metrics reports
// their current values as plain JSON rather than the Prometheus exposition
// format, so the server can sit behind scrapers that don't speak it while
// still accumulating counts the idiomatic way.
type metrics struct {
	requestsTotal  prometheus.Counter
	requestsFailed prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxy_a2a_requests_total",
			Help: "Total A2A requests handled, across both wire bindings.",
		}),
		requestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oxy_a2a_requests_failed_total",
			Help: "A2A requests that returned a 4xx or 5xx status.",
		}),
	}
}

func (m *metrics) recordRequest(failed bool) {
	m.requestsTotal.Inc()
	if failed {
		m.requestsFailed.Inc()
	}
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}

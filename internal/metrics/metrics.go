// Package metrics registers the Prometheus collectors exposed on /metrics
// in serve mode.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evcal_http_requests_total",
		Help: "HTTP requests served, by path and status code.",
	}, []string{"path", "code"})

	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evcal_refresh_total",
		Help: "Calendar rebuilds from the definition file, by result.",
	}, []string{"result"})

	LastRefreshTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evcal_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful calendar rebuild.",
	})

	CalendarEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "evcal_calendar_events",
		Help: "Number of events in the currently published calendar.",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, RefreshTotal, LastRefreshTS, CalendarEvents)
}

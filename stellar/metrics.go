package stellar

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // registered once with the default registry served by promhttp
var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stellarsvc",
		Name:      "requests_total",
		Help:      "Requests served by type and result.",
	}, []string{"type", "result"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stellarsvc",
		Name:      "request_duration_seconds",
		Help:      "Time taken to serve requests by type.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8), //nolint:gomnd // 5ms to ~80s
	}, []string{"type"})
)

// observe accounts a served request.
func observe(typ string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	requests.WithLabelValues(typ, result).Inc()
	duration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

var (
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inatfetch_api_calls_total",
			Help: "Total iNaturalist API calls that reached the network",
		},
		[]string{"endpoint", "status"},
	)

	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inatfetch_api_latency_seconds",
			Help:    "iNaturalist API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inatfetch_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"endpoint", "result"},
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inatfetch_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the request throttle",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	ObservationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inatfetch_observations_processed_total",
			Help: "Observations processed by outcome (kept, filtered, malformed)",
		},
		[]string{"outcome"},
	)
)

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return eris.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}

package probe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "probe_health_checks_total",
		Help: "Total number of completed probe cycles by verdict.",
	}, []string{"status"})
	responseTimeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "probe_response_time_seconds",
		Help:    "Distribution of full probe cycle durations.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})
	beaconBlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "probe_beacon_block_height",
		Help: "Last observed beacon chain head slot.",
	})
)

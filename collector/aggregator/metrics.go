package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	windowsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregator_windows_open",
		Help: "Number of consensus windows currently awaiting quorum.",
	})
	alertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aggregator_alerts_created_total",
		Help: "Total alerts raised by quorum transitions.",
	})
	windowsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_windows_closed_total",
		Help: "Total consensus windows closed by reason.",
	}, []string{"reason"})
)

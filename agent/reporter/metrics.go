package reporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporter_reports_submitted_total",
		Help: "Total reports the collector accepted by status.",
	}, []string{"status"})
	submitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_submit_failures_total",
		Help: "Total report submissions that exhausted retries or were rejected.",
	})
	consensusRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporter_consensus_rejections_total",
		Help: "Total unhealthy observations peers declined to confirm.",
	})
)

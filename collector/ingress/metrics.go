package ingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_reports_received_total",
		Help: "Accepted agent reports by reported status.",
	}, []string{"status"})
	reportsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_reports_rejected_total",
		Help: "Rejected agent reports by rejection reason.",
	}, []string{"reason"})
)

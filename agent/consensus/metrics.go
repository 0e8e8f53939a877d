package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "consensus_requests_total",
		Help: "Total consensus polls broadcast to peers.",
	})
	responsesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_responses_received_total",
		Help: "Total peer votes received for our polls by verdict.",
	}, []string{"agree"})
	requestsAnswered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consensus_requests_answered_total",
		Help: "Total peer polls answered by verdict.",
	}, []string{"agree"})
)

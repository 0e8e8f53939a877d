package p2p

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedPeersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "p2p_connected_peers",
		Help: "Number of identified peer connections.",
	})
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_messages_sent_total",
		Help: "Total peer messages handed to outbound buffers by type.",
	}, []string{"type"})
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p2p_messages_received_total",
		Help: "Total valid peer messages received by type.",
	}, []string{"type"})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_messages_dropped_total",
		Help: "Total peer messages dropped by rate limiting or full buffers.",
	})
	dialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_dial_failures_total",
		Help: "Total failed bootstrap peer dial attempts.",
	})
)

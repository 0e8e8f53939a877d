package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_sessions",
		Help: "Number of connected observer sessions.",
	})
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_messages_sent_total",
		Help: "Total messages delivered to observer sessions by type.",
	}, []string{"type"})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_messages_dropped_total",
		Help: "Total messages dropped because a session was not writable.",
	})
)

package p2p

import (
	leakybucket "github.com/kevinms/leakybucket-go"
)

const (
	// Sustained inbound message rate allowed per remote agent.
	messagesPerSecond = 2.0
	// Burst capacity per remote agent.
	messageBurst = 20
)

type rateLimiter struct {
	collector *leakybucket.Collector
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		collector: leakybucket.NewCollector(messagesPerSecond, messageBurst, true /* deleteEmptyBuckets */),
	}
}

// allow consumes one message credit for the remote agent, reporting
// whether the message may be processed.
func (r *rateLimiter) allow(agentID string) bool {
	if r.collector.Remaining(agentID) < 1 {
		return false
	}
	r.collector.Add(agentID, 1)
	return true
}

func (r *rateLimiter) free() {
	r.collector.Free()
}

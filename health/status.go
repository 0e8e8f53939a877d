// Package health defines the validator health statuses exchanged between
// agents, peers, and the collector, along with the probe result record
// they travel in.
package health

// Status is the health verdict attached to a probe result or an agent
// report. Agents only ever observe the first two values; the consensus
// statuses are produced by the collector's aggregator when a window
// closes.
type Status string

const (
	// Healthy indicates the beacon node answered its health endpoint.
	Healthy Status = "HEALTHY"
	// Unhealthy indicates the beacon node failed all probe attempts.
	Unhealthy Status = "UNHEALTHY"
	// ConsensusReached marks reports whose window reached quorum.
	ConsensusReached Status = "CONSENSUS_REACHED"
	// ConsensusFailed marks reports whose window was cancelled or aged out.
	ConsensusFailed Status = "CONSENSUS_FAILED"
)

// Valid reports whether s is one of the four wire statuses.
func (s Status) Valid() bool {
	switch s {
	case Healthy, Unhealthy, ConsensusReached, ConsensusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is an aggregator-produced final status.
func (s Status) Terminal() bool {
	return s == ConsensusReached || s == ConsensusFailed
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

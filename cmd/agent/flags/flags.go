// Package flags defines the command line flags specific to the Sentinel
// agent binary.
package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// AgentIDFlag identifies this agent to the collector. Required.
	AgentIDFlag = &cli.StringFlag{
		Name:  "agent-id",
		Usage: "The unique id this agent registered with at the management layer",
	}
	// AgentAPIKeyFlag is the credential submitted with every report. Required.
	AgentAPIKeyFlag = &cli.StringFlag{
		Name:  "agent-api-key",
		Usage: "API key authorizing this agent's report submissions",
	}
	// ValidatorIDFlag is the validator this agent watches. Required.
	ValidatorIDFlag = &cli.StringFlag{
		Name:  "validator-id",
		Usage: "The id of the validator this agent monitors",
	}
	// BackendAPIURLFlag is the collector base URL.
	BackendAPIURLFlag = &cli.StringFlag{
		Name:  "backend-api-url",
		Usage: "Base URL of the collector's report API",
		Value: "http://localhost:3001",
	}
	// BeaconNodeURLFlag is the monitored beacon node base URL.
	BeaconNodeURLFlag = &cli.StringFlag{
		Name:  "beacon-node-url",
		Usage: "Base URL of the beacon node whose health is probed",
		Value: "http://localhost:5052",
	}
	// HealthCheckIntervalFlag is the probe cycle cadence.
	HealthCheckIntervalFlag = &cli.DurationFlag{
		Name:  "health-check-interval",
		Usage: "How often the beacon node health endpoint is probed",
		Value: 30 * time.Second,
	}
	// HealthCheckTimeoutFlag bounds a single probe attempt.
	HealthCheckTimeoutFlag = &cli.DurationFlag{
		Name:  "health-check-timeout",
		Usage: "Timeout for a single health probe attempt",
		Value: 10 * time.Second,
	}
	// HealthCheckRetriesFlag is the number of probe attempts per cycle.
	HealthCheckRetriesFlag = &cli.IntFlag{
		Name:  "health-check-retries",
		Usage: "Probe attempts per cycle before the node is declared unhealthy",
		Value: 3,
	}
	// EnableP2PFlag turns on the peer fabric.
	EnableP2PFlag = &cli.BoolFlag{
		Name:  "p2p-enabled",
		Usage: "Enable the peer fabric used to confirm outages with other agents",
	}
	// P2PPortFlag is the peer fabric listen port.
	P2PPortFlag = &cli.IntFlag{
		Name:  "p2p-port",
		Usage: "The port used to listen for inbound peer connections",
		Value: 3003,
	}
	// P2PDiscoveryIntervalFlag is the bootstrap redial cadence.
	P2PDiscoveryIntervalFlag = &cli.DurationFlag{
		Name:  "p2p-discovery-interval",
		Usage: "How often disconnected bootstrap peers are redialed",
		Value: 60 * time.Second,
	}
	// P2PBootstrapPeersFlag lists peers to dial at startup. An entry
	// ending in .yaml is read as a file holding a list of peer URLs.
	P2PBootstrapPeersFlag = &cli.StringSliceFlag{
		Name:  "p2p-bootstrap-peers",
		Usage: "Peer websocket URL to dial at startup. This flag may be used multiple times, entries may be comma separated, and an entry may name a yaml file with a list of peers.",
	}
	// ConsensusThresholdFlag is the number of unhealthy witnesses the
	// reporter requires before submitting an unhealthy report.
	ConsensusThresholdFlag = &cli.IntFlag{
		Name:  "consensus-threshold",
		Usage: "Distinct unhealthy witnesses (this agent included) required before reporting an outage",
		Value: 2,
	}
	// ConsensusTimeoutFlag bounds a peer consensus poll.
	ConsensusTimeoutFlag = &cli.DurationFlag{
		Name:  "consensus-timeout",
		Usage: "How long a peer consensus poll waits for verdicts",
		Value: 120 * time.Second,
	}
	// RequestTimeoutFlag bounds a collector API request.
	RequestTimeoutFlag = &cli.DurationFlag{
		Name:  "request-timeout",
		Usage: "Timeout for a single collector API request",
		Value: 10 * time.Second,
	}
	// MaxRetriesFlag caps report submission attempts.
	MaxRetriesFlag = &cli.IntFlag{
		Name:  "max-retries",
		Usage: "Attempts per report submission before it is dropped",
		Value: 3,
	}
	// MonitoringPortFlag defines the agent's prometheus port.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8081,
	}
)

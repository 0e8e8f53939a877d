// Package params holds the runtime configuration for the Sentinel agent
// and collector processes.
package params

import (
	"time"

	"github.com/pkg/errors"
)

// AgentConfig carries every knob the agent daemon honors. Field defaults
// mirror DefaultAgentConfig; required fields have none.
type AgentConfig struct {
	AgentID     string
	AgentAPIKey string
	ValidatorID string

	BackendAPIURL string
	BeaconNodeURL string

	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	HealthCheckRetries  int

	P2PEnabled           bool
	P2PPort              int
	P2PDiscoveryInterval time.Duration
	P2PBootstrapPeers    []string

	ConsensusThreshold int
	ConsensusTimeout   time.Duration

	RequestTimeout time.Duration
	MaxRetries     int
}

// DefaultAgentConfig returns an AgentConfig with every optional knob at
// its documented default. Required identity fields are left empty.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		BackendAPIURL:        "http://localhost:3001",
		BeaconNodeURL:        "http://localhost:5052",
		HealthCheckInterval:  30 * time.Second,
		HealthCheckTimeout:   10 * time.Second,
		HealthCheckRetries:   3,
		P2PEnabled:           false,
		P2PPort:              3003,
		P2PDiscoveryInterval: 60 * time.Second,
		ConsensusThreshold:   2,
		ConsensusTimeout:     120 * time.Second,
		RequestTimeout:       10 * time.Second,
		MaxRetries:           3,
	}
}

// Validate rejects configurations the agent cannot start with.
func (c *AgentConfig) Validate() error {
	if c.AgentID == "" {
		return errors.New("agent-id is required")
	}
	if c.AgentAPIKey == "" {
		return errors.New("agent-api-key is required")
	}
	if c.ValidatorID == "" {
		return errors.New("validator-id is required")
	}
	if c.BackendAPIURL == "" {
		return errors.New("backend-api-url cannot be empty")
	}
	if c.BeaconNodeURL == "" {
		return errors.New("beacon-node-url cannot be empty")
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New("health-check-interval must be positive")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health-check-timeout must be positive")
	}
	if c.HealthCheckRetries < 1 {
		return errors.New("health-check-retries must be at least 1")
	}
	if c.P2PEnabled && (c.P2PPort < 1024 || c.P2PPort > 65535) {
		return errors.Errorf("p2p-port %d outside of usable range 1024-65535", c.P2PPort)
	}
	if c.ConsensusThreshold < 1 {
		return errors.New("consensus-threshold must be at least 1")
	}
	if c.ConsensusTimeout <= 0 {
		return errors.New("consensus-timeout must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("max-retries must be at least 1")
	}
	return nil
}

// CollectorConfig carries the collector daemon's knobs.
type CollectorConfig struct {
	HTTPHost string
	HTTPPort int

	DataDir  string
	SeedFile string

	ConsensusThreshold int
	WindowTTL          time.Duration
	SweepInterval      time.Duration

	CORSDomains []string
}

// DefaultCollectorConfig returns a CollectorConfig with documented defaults.
func DefaultCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		HTTPHost:           "127.0.0.1",
		HTTPPort:           3001,
		ConsensusThreshold: 2,
		WindowTTL:          10 * time.Minute,
		SweepInterval:      5 * time.Minute,
		CORSDomains:        []string{"*"},
	}
}

// Validate rejects configurations the collector cannot start with.
func (c *CollectorConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return errors.Errorf("http-port %d outside of usable range", c.HTTPPort)
	}
	if c.DataDir == "" {
		return errors.New("datadir cannot be empty")
	}
	if c.ConsensusThreshold < 1 {
		return errors.New("consensus-threshold must be at least 1")
	}
	if c.WindowTTL <= 0 {
		return errors.New("window-ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep-interval must be positive")
	}
	return nil
}

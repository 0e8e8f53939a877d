// Package flags defines the command line flags specific to the Sentinel
// collector binary.
package flags

import (
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// HTTPHostFlag is the report API listen host.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "http-host",
		Usage: "Host on which the report API listens",
		Value: "127.0.0.1",
	}
	// HTTPPortFlag is the report API listen port.
	HTTPPortFlag = &cli.IntFlag{
		Name:  "http-port",
		Usage: "Port on which the report API listens",
		Value: 3001,
	}
	// SeedFileFlag points at the registry import file.
	SeedFileFlag = &cli.StringFlag{
		Name:  "seed-file",
		Usage: "Path to a yaml file with validators, agents and webhooks to import at startup",
	}
	// ConsensusThresholdFlag is the quorum size for alerts.
	ConsensusThresholdFlag = &cli.IntFlag{
		Name:  "consensus-threshold",
		Usage: "Distinct unhealthy agents required before an alert is raised",
		Value: 2,
	}
	// WindowTTLFlag bounds how long a consensus window may stay open.
	WindowTTLFlag = &cli.DurationFlag{
		Name:  "window-ttl",
		Usage: "How long an open consensus window waits for quorum before aging out",
		Value: 10 * time.Minute,
	}
	// SweepIntervalFlag is the cadence of the window aging sweep.
	SweepIntervalFlag = &cli.DurationFlag{
		Name:  "sweep-interval",
		Usage: "How often open consensus windows are checked for aging out",
		Value: 5 * time.Minute,
	}
	// CORSDomainsFlag lists origins allowed on the report API.
	CORSDomainsFlag = &cli.StringFlag{
		Name:  "cors-domains",
		Usage: "Comma separated list of origins allowed to access the report API",
		Value: "*",
	}
	// WebhookTimeoutFlag bounds a single webhook delivery.
	WebhookTimeoutFlag = &cli.DurationFlag{
		Name:  "webhook-timeout",
		Usage: "Timeout for a single webhook delivery",
		Value: 10 * time.Second,
	}
	// MonitoringPortFlag defines the collector's prometheus port.
	MonitoringPortFlag = &cli.IntFlag{
		Name:  "monitoring-port",
		Usage: "Port used to listening and respond metrics for prometheus.",
		Value: 8080,
	}
)

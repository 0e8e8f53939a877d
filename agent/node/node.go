// Package node defines the Sentinel agent runtime. It builds the agent
// configuration from CLI flags, wires the probe, peer fabric, consensus
// and reporter services into a registry, and manages their lifecycle.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/trinnode/Sentinel/agent/beacon"
	"github.com/trinnode/Sentinel/agent/consensus"
	"github.com/trinnode/Sentinel/agent/p2p"
	"github.com/trinnode/Sentinel/agent/probe"
	"github.com/trinnode/Sentinel/agent/reporter"
	"github.com/trinnode/Sentinel/cmd"
	"github.com/trinnode/Sentinel/cmd/agent/flags"
	"github.com/trinnode/Sentinel/monitoring/prometheus"
	"github.com/trinnode/Sentinel/runtime"
	"github.com/trinnode/Sentinel/runtime/tracing"
	"github.com/trinnode/Sentinel/runtime/version"
	"github.com/trinnode/Sentinel/shared/params"
)

var log = logrus.WithField("prefix", "node")

// AgentNode handles the services running a Sentinel agent. It manages
// the lifecycle of the entire system and registers services to a
// service registry.
type AgentNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *params.AgentConfig
	services *runtime.ServiceRegistry
	lock     sync.RWMutex
	stop     chan struct{} // Channel to wait for termination notifications.
}

// New creates a new node instance, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*AgentNode, error) {
	if err := tracing.Setup(
		tracingName(cliCtx, "sentinel-agent"),
		cliCtx.String(cmd.TracingEndpointFlag.Name),
		cliCtx.Float64(cmd.TraceSampleFractionFlag.Name),
		cliCtx.Bool(cmd.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	cfg, err := configFromFlags(cliCtx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &AgentNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := node.registerProbe(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerP2P(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerConsensus(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerReporter(); err != nil {
		cancel()
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheus(); err != nil {
			cancel()
			return nil, err
		}
	}

	return node, nil
}

// Start the agent and kick off every registered service.
func (n *AgentNode) Start() {
	n.lock.Lock()

	log.WithFields(logrus.Fields{
		"version":   version.GetVersion(),
		"validator": n.cfg.ValidatorID,
	}).Info("Starting Sentinel agent")

	n.services.StartAll()

	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the agent node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *AgentNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping Sentinel agent")
	n.services.StopAll()
	n.cancel()
	close(n.stop)
}

func configFromFlags(cliCtx *cli.Context) (*params.AgentConfig, error) {
	cfg := params.DefaultAgentConfig()
	cfg.AgentID = cliCtx.String(flags.AgentIDFlag.Name)
	cfg.AgentAPIKey = cliCtx.String(flags.AgentAPIKeyFlag.Name)
	cfg.ValidatorID = cliCtx.String(flags.ValidatorIDFlag.Name)
	cfg.BackendAPIURL = cliCtx.String(flags.BackendAPIURLFlag.Name)
	cfg.BeaconNodeURL = cliCtx.String(flags.BeaconNodeURLFlag.Name)
	cfg.HealthCheckInterval = cliCtx.Duration(flags.HealthCheckIntervalFlag.Name)
	cfg.HealthCheckTimeout = cliCtx.Duration(flags.HealthCheckTimeoutFlag.Name)
	cfg.HealthCheckRetries = cliCtx.Int(flags.HealthCheckRetriesFlag.Name)
	cfg.P2PEnabled = cliCtx.Bool(flags.EnableP2PFlag.Name)
	cfg.P2PPort = cliCtx.Int(flags.P2PPortFlag.Name)
	cfg.P2PDiscoveryInterval = cliCtx.Duration(flags.P2PDiscoveryIntervalFlag.Name)
	cfg.ConsensusThreshold = cliCtx.Int(flags.ConsensusThresholdFlag.Name)
	cfg.ConsensusTimeout = cliCtx.Duration(flags.ConsensusTimeoutFlag.Name)
	cfg.RequestTimeout = cliCtx.Duration(flags.RequestTimeoutFlag.Name)
	cfg.MaxRetries = cliCtx.Int(flags.MaxRetriesFlag.Name)
	cfg.P2PBootstrapPeers = cliCtx.StringSlice(flags.P2PBootstrapPeersFlag.Name)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func tracingName(cliCtx *cli.Context, fallback string) string {
	if name := cliCtx.String(cmd.TracingProcessNameFlag.Name); name != "" {
		return name
	}
	return fallback
}

func (n *AgentNode) registerProbe() error {
	client, err := beacon.NewClient(n.cfg.BeaconNodeURL, beacon.WithTimeout(n.cfg.HealthCheckTimeout))
	if err != nil {
		return err
	}
	svc, err := probe.NewService(n.ctx, &probe.Config{
		Client:      client,
		ValidatorID: n.cfg.ValidatorID,
		Interval:    n.cfg.HealthCheckInterval,
		Timeout:     n.cfg.HealthCheckTimeout,
		Retries:     n.cfg.HealthCheckRetries,
	})
	if err != nil {
		return err
	}
	return n.services.RegisterService(svc)
}

func (n *AgentNode) registerP2P() error {
	if !n.cfg.P2PEnabled {
		return nil
	}
	svc, err := p2p.NewService(n.ctx, &p2p.Config{
		AgentID:           n.cfg.AgentID,
		ValidatorID:       n.cfg.ValidatorID,
		Port:              n.cfg.P2PPort,
		DiscoveryInterval: n.cfg.P2PDiscoveryInterval,
		BootstrapPeers:    n.cfg.P2PBootstrapPeers,
	})
	if err != nil {
		return err
	}
	return n.services.RegisterService(svc)
}

func (n *AgentNode) registerConsensus() error {
	var fabric p2p.P2P = &standaloneFabric{}
	if n.cfg.P2PEnabled {
		var svc *p2p.Service
		if err := n.services.FetchService(&svc); err != nil {
			return err
		}
		fabric = svc
	}
	var prober *probe.Service
	if err := n.services.FetchService(&prober); err != nil {
		return err
	}
	svc, err := consensus.NewService(n.ctx, &consensus.Config{
		AgentID:     n.cfg.AgentID,
		ValidatorID: n.cfg.ValidatorID,
		P2P:         fabric,
		Prober:      prober,
	})
	if err != nil {
		return err
	}
	return n.services.RegisterService(svc)
}

func (n *AgentNode) registerReporter() error {
	var prober *probe.Service
	if err := n.services.FetchService(&prober); err != nil {
		return err
	}
	var cons *consensus.Service
	if err := n.services.FetchService(&cons); err != nil {
		return err
	}
	svc, err := reporter.NewService(n.ctx, &reporter.Config{
		AgentID:          n.cfg.AgentID,
		AgentAPIKey:      n.cfg.AgentAPIKey,
		ValidatorID:      n.cfg.ValidatorID,
		CollectorURL:     n.cfg.BackendAPIURL,
		RequestTimeout:   n.cfg.RequestTimeout,
		MaxRetries:       n.cfg.MaxRetries,
		Threshold:        n.cfg.ConsensusThreshold,
		ConsensusTimeout: n.cfg.ConsensusTimeout,
		Requester:        cons,
		Results:          prober,
	})
	if err != nil {
		return err
	}
	return n.services.RegisterService(svc)
}

func (n *AgentNode) registerPrometheus() error {
	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", n.cliCtx.String(cmd.MonitoringHostFlag.Name), n.cliCtx.Int(flags.MonitoringPortFlag.Name)),
		n.services,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return n.services.RegisterService(service)
}

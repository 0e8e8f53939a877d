// Package node defines the Sentinel collector runtime. It opens the
// database, imports the seed registry, and wires the broadcast, webhook,
// aggregator and ingress services into a registry.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/trinnode/Sentinel/cmd"
	"github.com/trinnode/Sentinel/cmd/collector/flags"
	"github.com/trinnode/Sentinel/collector/aggregator"
	"github.com/trinnode/Sentinel/collector/broadcast"
	"github.com/trinnode/Sentinel/collector/db"
	"github.com/trinnode/Sentinel/collector/db/kv"
	"github.com/trinnode/Sentinel/collector/ingress"
	"github.com/trinnode/Sentinel/collector/webhook"
	"github.com/trinnode/Sentinel/monitoring/backup"
	"github.com/trinnode/Sentinel/monitoring/prometheus"
	"github.com/trinnode/Sentinel/runtime"
	"github.com/trinnode/Sentinel/runtime/tracing"
	"github.com/trinnode/Sentinel/runtime/version"
	"github.com/trinnode/Sentinel/shared/params"
)

var log = logrus.WithField("prefix", "node")

// CollectorNode handles the services running the Sentinel collector. It
// manages the lifecycle of the entire system and registers services to
// a service registry.
type CollectorNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *params.CollectorConfig
	services *runtime.ServiceRegistry
	lock     sync.RWMutex
	stop     chan struct{} // Channel to wait for termination notifications.
	db       db.Database
}

// New creates a new node instance, sets up configuration options, and
// registers every required service.
func New(cliCtx *cli.Context) (*CollectorNode, error) {
	if err := tracing.Setup(
		tracingName(cliCtx, "sentinel-collector"),
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
	node := &CollectorNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := node.startDB(cliCtx); err != nil {
		cancel()
		return nil, err
	}

	if err := node.registerBroadcast(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerWebhooks(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerAggregator(); err != nil {
		cancel()
		return nil, err
	}
	if err := node.registerIngress(); err != nil {
		cancel()
		return nil, err
	}
	if !cliCtx.Bool(cmd.DisableMonitoringFlag.Name) {
		if err := node.registerPrometheus(cliCtx); err != nil {
			cancel()
			return nil, err
		}
	}

	return node, nil
}

// Start the collector and kick off every registered service.
func (c *CollectorNode) Start() {
	c.lock.Lock()

	log.WithFields(logrus.Fields{
		"version": version.GetVersion(),
	}).Info("Starting Sentinel collector")

	c.services.StartAll()

	stop := c.stop
	c.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go c.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the collector node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (c *CollectorNode) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()

	log.Info("Stopping Sentinel collector")
	c.services.StopAll()
	if err := c.db.Close(); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	c.cancel()
	close(c.stop)
}

func configFromFlags(cliCtx *cli.Context) (*params.CollectorConfig, error) {
	cfg := params.DefaultCollectorConfig()
	cfg.HTTPHost = cliCtx.String(flags.HTTPHostFlag.Name)
	cfg.HTTPPort = cliCtx.Int(flags.HTTPPortFlag.Name)
	cfg.DataDir = cliCtx.String(cmd.DataDirFlag.Name)
	cfg.SeedFile = cliCtx.String(flags.SeedFileFlag.Name)
	cfg.ConsensusThreshold = cliCtx.Int(flags.ConsensusThresholdFlag.Name)
	cfg.WindowTTL = cliCtx.Duration(flags.WindowTTLFlag.Name)
	cfg.SweepInterval = cliCtx.Duration(flags.SweepIntervalFlag.Name)
	cfg.CORSDomains = strings.Split(cliCtx.String(flags.CORSDomainsFlag.Name), ",")
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

func (c *CollectorNode) startDB(cliCtx *cli.Context) error {
	baseDir := cliCtx.String(cmd.DataDirFlag.Name)
	dbPath := filepath.Join(baseDir, kv.DirName)
	clearDB := cliCtx.Bool(cmd.ClearDB.Name)
	forceClearDB := cliCtx.Bool(cmd.ForceClearDB.Name)

	log.WithField("database-path", dbPath).Info("Checking DB")

	d, err := db.NewDB(dbPath)
	if err != nil {
		return err
	}
	clearDBConfirmed := false
	if clearDB && !forceClearDB {
		actionText := "This will delete your collector database stored in your data directory. " +
			"Your database backups will not be removed - do you want to proceed? (Y/N)"
		deniedText := "Database will not be deleted. No changes have been made."
		clearDBConfirmed, err = cmd.ConfirmAction(actionText, deniedText)
		if err != nil {
			return err
		}
	}
	if clearDBConfirmed || forceClearDB {
		log.Warning("Removing database")
		if err := d.Close(); err != nil {
			return errors.Wrap(err, "could not close db prior to clearing")
		}
		if err := d.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
		d, err = db.NewDB(dbPath)
		if err != nil {
			return errors.Wrap(err, "could not create new database")
		}
	}
	c.db = d

	if c.cfg.SeedFile != "" {
		reg, err := params.LoadSeedRegistry(c.cfg.SeedFile)
		if err != nil {
			return errors.Wrap(err, "could not load seed registry")
		}
		if err := c.db.ImportSeedRegistry(c.ctx, reg); err != nil {
			return errors.Wrap(err, "could not import seed registry")
		}
	}
	return nil
}

func (c *CollectorNode) registerBroadcast() error {
	return c.services.RegisterService(broadcast.NewService(c.ctx))
}

func (c *CollectorNode) registerWebhooks() error {
	svc, err := webhook.NewService(c.ctx, &webhook.Config{
		Database:        c.db,
		DeliveryTimeout: c.cliCtx.Duration(flags.WebhookTimeoutFlag.Name),
	})
	if err != nil {
		return err
	}
	return c.services.RegisterService(svc)
}

func (c *CollectorNode) registerAggregator() error {
	var b *broadcast.Service
	if err := c.services.FetchService(&b); err != nil {
		return err
	}
	var w *webhook.Service
	if err := c.services.FetchService(&w); err != nil {
		return err
	}
	svc, err := aggregator.NewService(c.ctx, &aggregator.Config{
		Database:      c.db,
		Broadcaster:   b,
		Webhooks:      w,
		Threshold:     c.cfg.ConsensusThreshold,
		WindowTTL:     c.cfg.WindowTTL,
		SweepInterval: c.cfg.SweepInterval,
	})
	if err != nil {
		return err
	}
	return c.services.RegisterService(svc)
}

func (c *CollectorNode) registerIngress() error {
	var agg *aggregator.Service
	if err := c.services.FetchService(&agg); err != nil {
		return err
	}
	var b *broadcast.Service
	if err := c.services.FetchService(&b); err != nil {
		return err
	}
	svc, err := ingress.NewService(c.ctx, &ingress.Config{
		Host:        c.cfg.HTTPHost,
		Port:        c.cfg.HTTPPort,
		CORSDomains: c.cfg.CORSDomains,
		Database:    c.db,
		Aggregator:  agg,
		Broadcaster: b,
		WSHandler:   b.Handler(),
	})
	if err != nil {
		return err
	}
	return c.services.RegisterService(svc)
}

func (c *CollectorNode) registerPrometheus(cliCtx *cli.Context) error {
	var additionalHandlers []prometheus.Handler
	if cliCtx.Bool(cmd.EnableDBBackupsFlag.Name) {
		additionalHandlers = append(
			additionalHandlers,
			prometheus.Handler{
				Path:    "/db/backup",
				Handler: backup.Handler(c.db, cliCtx.String(cmd.BackupOutputDirFlag.Name)),
			},
		)
	}

	service := prometheus.NewService(
		fmt.Sprintf("%s:%d", cliCtx.String(cmd.MonitoringHostFlag.Name), cliCtx.Int(flags.MonitoringPortFlag.Name)),
		c.services,
		additionalHandlers...,
	)
	hook := prometheus.NewLogrusCollector()
	logrus.AddHook(hook)
	return c.services.RegisterService(service)
}

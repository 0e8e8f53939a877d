// Package main defines the Sentinel collector entrypoint. The collector
// ingests agent health reports over HTTP, aggregates them into per-validator
// consensus verdicts, and fans out status updates to websocket subscribers
// and registered webhooks.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/trinnode/Sentinel/cmd"
	"github.com/trinnode/Sentinel/cmd/collector/flags"
	"github.com/trinnode/Sentinel/collector/node"
	"github.com/trinnode/Sentinel/runtime/logutil"
	"github.com/trinnode/Sentinel/runtime/version"
)

var log = logrus.WithField("prefix", "main")

func startCollector(cliCtx *cli.Context) error {
	verbosity := cliCtx.String(cmd.VerbosityFlag.Name)
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	collector, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	collector.Start()
	return nil
}

var appFlags = []cli.Flag{
	flags.HTTPHostFlag,
	flags.HTTPPortFlag,
	flags.SeedFileFlag,
	flags.ConsensusThresholdFlag,
	flags.WindowTTLFlag,
	flags.SweepIntervalFlag,
	flags.CORSDomainsFlag,
	flags.WebhookTimeoutFlag,
	flags.MonitoringPortFlag,
	cmd.VerbosityFlag,
	cmd.DataDirFlag,
	cmd.ClearDB,
	cmd.ForceClearDB,
	cmd.EnableTracingFlag,
	cmd.TracingProcessNameFlag,
	cmd.TracingEndpointFlag,
	cmd.TraceSampleFractionFlag,
	cmd.MonitoringHostFlag,
	cmd.DisableMonitoringFlag,
	cmd.LogFormat,
	cmd.LogFileName,
	cmd.ConfigFileFlag,
	cmd.EnableDBBackupsFlag,
	cmd.BackupOutputDirFlag,
}

func init() {
	appFlags = cmd.WrapFlags(appFlags)
}

func main() {
	app := cli.App{}
	app.Name = "sentinel-collector"
	app.Usage = "aggregates validator health reports from Sentinel agents into consensus status"
	app.Version = version.GetVersion()
	app.Flags = appFlags
	app.Action = startCollector
	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if err := cmd.LoadFlagsFromConfig(ctx, appFlags); err != nil {
			return err
		}

		format := ctx.String(cmd.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// If persistent log files are written - we disable the log messages coloring because
			// the colors are ANSI codes and seen as Gibberish in the log files.
			formatter.DisableColors = ctx.String(cmd.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(cmd.LogFileName.Name)
		if logFileName != "" {
			if err := logutil.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configuring logging to disk.")
			}
		}

		goruntime.GOMAXPROCS(goruntime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

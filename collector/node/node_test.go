package node

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/urfave/cli/v2"

	"github.com/trinnode/Sentinel/cmd"
	"github.com/trinnode/Sentinel/cmd/collector/flags"
	"github.com/trinnode/Sentinel/collector/aggregator"
	"github.com/trinnode/Sentinel/collector/broadcast"
	"github.com/trinnode/Sentinel/collector/db"
	"github.com/trinnode/Sentinel/collector/ingress"
	"github.com/trinnode/Sentinel/collector/types"
	"github.com/trinnode/Sentinel/collector/webhook"
	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

// newCLIContext registers every flag the collector node reads so
// defaults flow in the same way they do from the real app.
func newCLIContext(t *testing.T, dataDir string) *cli.Context {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)
	all := []cli.Flag{
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
		cmd.EnableDBBackupsFlag,
		cmd.BackupOutputDirFlag,
	}
	for _, f := range all {
		require.NoError(t, f.Apply(set))
	}
	cliCtx := cli.NewContext(&app, set, nil)
	require.NoError(t, cliCtx.Set(cmd.DataDirFlag.Name, dataDir))
	require.NoError(t, cliCtx.Set(cmd.DisableMonitoringFlag.Name, "true"))
	return cliCtx
}

// Test that the collector node can build with default flag values.
func TestNode_Builds(t *testing.T) {
	cliCtx := newCLIContext(t, t.TempDir())

	n, err := New(cliCtx)
	require.NoError(t, err, "Failed to create CollectorNode")

	assert.Equal(t, "127.0.0.1", n.cfg.HTTPHost)
	assert.Equal(t, 3001, n.cfg.HTTPPort)
	assert.Equal(t, 2, n.cfg.ConsensusThreshold)
	assert.DeepEqual(t, []string{"*"}, n.cfg.CORSDomains)

	var b *broadcast.Service
	require.NoError(t, n.services.FetchService(&b))
	var w *webhook.Service
	require.NoError(t, n.services.FetchService(&w))
	var agg *aggregator.Service
	require.NoError(t, n.services.FetchService(&agg))
	var ing *ingress.Service
	require.NoError(t, n.services.FetchService(&ing))

	require.NoError(t, n.db.Close())
}

func TestNode_ImportsSeedRegistry(t *testing.T) {
	seed := `validators:
  - id: validator-1
    userId: user-1
    name: Mainnet Validator
    beaconNodeUrl: http://localhost:5052
    isActive: true
agents:
  - id: agent-1
    validatorId: validator-1
    apiKey: key-1
    isActive: true
webhooks:
  - id: webhook-1
    userId: user-1
    url: https://hooks.example.com/sentinel
    secret: shhh
    events:
      - validator.consensus_reached
    isActive: true
`
	seedFile := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(seed), 0600))

	cliCtx := newCLIContext(t, t.TempDir())
	require.NoError(t, cliCtx.Set(flags.SeedFileFlag.Name, seedFile))

	n, err := New(cliCtx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, n.db.Close())
	}()

	ctx := context.Background()
	v, err := n.db.Validator(ctx, "validator-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", v.UserID)
	assert.Equal(t, "Mainnet Validator", v.Name)
	assert.Equal(t, true, v.IsActive)

	a, err := n.db.Agent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "validator-1", a.ValidatorID)
	assert.Equal(t, "key-1", a.APIKey)

	hooks, err := n.db.WebhookConfigs(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, len(hooks))
	assert.Equal(t, "https://hooks.example.com/sentinel", hooks[0].URL)
}

func TestNode_RejectsMalformedSeedFile(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte("validators:\n  - userId: user-1\n"), 0600))

	cliCtx := newCLIContext(t, t.TempDir())
	require.NoError(t, cliCtx.Set(flags.SeedFileFlag.Name, seedFile))

	_, err := New(cliCtx)
	require.ErrorContains(t, "could not load seed registry", err)
}

// TestClearDB tests clearing the database.
func TestClearDB(t *testing.T) {
	hook := logtest.NewGlobal()
	dataDir := t.TempDir()

	first, err := New(newCLIContext(t, dataDir))
	require.NoError(t, err)
	require.NoError(t, first.db.SaveValidator(context.Background(), &types.Validator{ID: "stale"}))
	require.NoError(t, first.db.Close())

	cliCtx := newCLIContext(t, dataDir)
	require.NoError(t, cliCtx.Set(cmd.ForceClearDB.Name, "true"))
	second, err := New(cliCtx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, second.db.Close())
	}()

	require.LogsContain(t, hook, "Removing database")
	_, err = second.db.Validator(context.Background(), "stale")
	require.ErrorIs(t, err, db.ErrNotFound)
}

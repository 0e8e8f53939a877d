package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/trinnode/Sentinel/testing/assert"
	"github.com/trinnode/Sentinel/testing/require"
)

func TestLoadFlagsFromConfig(t *testing.T) {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)

	configFile := filepath.Join(t.TempDir(), "flags_test.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("verbosity: debug\nmonitoring-host: 0.0.0.0\n"), 0644))

	wrapped := WrapFlags([]cli.Flag{VerbosityFlag, MonitoringHostFlag, ConfigFileFlag})
	for _, f := range wrapped {
		require.NoError(t, f.Apply(set))
	}
	cliCtx := cli.NewContext(&app, set, nil)
	require.NoError(t, cliCtx.Set(ConfigFileFlag.Name, configFile))

	require.NoError(t, LoadFlagsFromConfig(cliCtx, wrapped))
	assert.Equal(t, "debug", cliCtx.String(VerbosityFlag.Name))
	assert.Equal(t, "0.0.0.0", cliCtx.String(MonitoringHostFlag.Name))
}

func TestLoadFlagsFromConfig_NoConfigFile(t *testing.T) {
	app := cli.App{}
	set := flag.NewFlagSet("test", 0)

	wrapped := WrapFlags([]cli.Flag{VerbosityFlag, ConfigFileFlag})
	for _, f := range wrapped {
		require.NoError(t, f.Apply(set))
	}
	cliCtx := cli.NewContext(&app, set, nil)

	require.NoError(t, LoadFlagsFromConfig(cliCtx, wrapped))
	assert.Equal(t, "info", cliCtx.String(VerbosityFlag.Name))
}

func TestWrapFlags_CoversEveryFlagType(t *testing.T) {
	flags := []cli.Flag{
		&cli.BoolFlag{Name: "bool"},
		&cli.DurationFlag{Name: "duration"},
		&cli.Float64Flag{Name: "float64"},
		&cli.IntFlag{Name: "int"},
		&cli.StringFlag{Name: "string"},
		&cli.StringSliceFlag{Name: "string-slice"},
		&cli.Uint64Flag{Name: "uint64"},
		&cli.UintFlag{Name: "uint"},
	}
	wrapped := WrapFlags(flags)
	require.Equal(t, len(flags), len(wrapped))
	for i, f := range wrapped {
		assert.Equal(t, flags[i].Names()[0], f.Names()[0])
	}
}

package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/config"
	"github.com/st3v3nmw/splitbrain/internal/simnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	commands "github.com/urfave/cli/v3"
)

func app() *commands.Command {
	configFlag := &commands.StringFlag{Name: "config", Value: config.DefaultPath}

	return &commands.Command{
		Name: "splitbrain",
		Commands: []*commands.Command{
			{Name: "init", Action: InitConfig},
			{Name: "validate", Flags: []commands.Flag{configFlag}, Action: ValidateConfig},
			{
				Name: "run",
				Flags: []commands.Flag{
					configFlag,
					&commands.BoolFlag{Name: "verbose"},
					&commands.BoolFlag{Name: "simulate"},
					&commands.BoolFlag{Name: "enable"},
					&commands.StringFlag{Name: "metrics-addr"},
				},
				Action: RunScenario,
			},
		},
	}
}

func TestInitConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cluster")

	require.NoError(t, app().Run(context.Background(), []string{"splitbrain", "init", dir}))

	info, err := os.Stat(filepath.Join(dir, "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "run.sh should be executable")

	cfg, err := config.Load(filepath.Join(dir, config.DefaultPath))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	err = app().Run(context.Background(), []string{"splitbrain", "init", dir})
	assert.ErrorContains(t, err, "already exists")
}

func TestValidateConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "splitbrain.yaml")

	require.NoError(t, config.SaveTo(config.Default(), path))
	assert.NoError(t, app().Run(context.Background(), []string{"splitbrain", "validate", "--config", path}))

	bad := "topology:\n  - [1, 1]\n  - [0, 1]\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0644))
	err := app().Run(context.Background(), []string{"splitbrain", "validate", "--config", path})
	assert.ErrorContains(t, err, "not symmetric")
}

func TestRunSimulated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "splitbrain.yaml")

	cfg := config.Default()
	cfg.WorkingDir = filepath.Join(dir, "runs")
	cfg.Log.Level = "error"
	cfg.Timeouts.PollInterval = 5 * time.Millisecond
	cfg.Timeouts.Convergence = 2 * time.Second
	require.NoError(t, config.SaveTo(cfg, path))

	err := app().Run(context.Background(), []string{"splitbrain", "run", "--config", path, "--simulate", "--enable"})
	require.NoError(t, err)

	runs, err := os.ReadDir(cfg.WorkingDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = os.Stat(filepath.Join(cfg.WorkingDir, runs[0].Name(), "TestPartitionRecoveryResults.tar.xz"))
	assert.NoError(t, err)
}

func TestRunUnknownScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splitbrain.yaml")
	require.NoError(t, config.SaveTo(config.Default(), path))

	err := app().Run(context.Background(), []string{"splitbrain", "run", "--config", path, "nope"})
	assert.ErrorContains(t, err, "scenario \"nope\" not found")
}

func TestNewEnv(t *testing.T) {
	cfg := config.Default()
	cfg.WorkingDir = t.TempDir()

	cfg.Scenario.Simulate = true
	env := NewEnv(cfg, nil, 1)
	_, simulated := env.Edge.(*simnet.Network)
	assert.True(t, simulated)

	cfg.Scenario.Simulate = false
	env = NewEnv(cfg, nil, 1)
	_, simulated = env.Edge.(*simnet.Network)
	assert.False(t, simulated)
	assert.Equal(t, "127.0.0.1:9000", env.Provider.Endpoint(0))
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/cli"
	"github.com/st3v3nmw/splitbrain/internal/config"
	commands "github.com/urfave/cli/v3"
)

func main() {
	configFlag := &commands.StringFlag{
		Name:    "config",
		Usage:   "Path to the cluster config file",
		Aliases: []string{"c"},
		Value:   config.DefaultPath,
	}

	verboseFlag := &commands.BoolFlag{
		Name:    "verbose",
		Usage:   "Include node status fields in situation reports",
		Aliases: []string{"v"},
		Value:   false,
	}

	timeoutFlag := &commands.DurationFlag{
		Name:  "timeout",
		Usage: "Per-node query timeout",
		Value: 2 * time.Second,
	}

	cmd := &commands.Command{
		Name:  "splitbrain",
		Usage: "Partition and heal ledger clusters, then check they converge",
		Commands: []*commands.Command{
			{
				Name:      "init",
				Usage:     "Write a default config and run.sh",
				ArgsUsage: "[path]",
				Action:    cli.InitConfig,
			},
			{
				Name:   "validate",
				Usage:  "Check the config file and its topology matrices",
				Flags:  []commands.Flag{configFlag},
				Action: cli.ValidateConfig,
			},
			{
				Name:      "run",
				Usage:     "Run a partition scenario",
				ArgsUsage: "[scenario]",
				Flags: []commands.Flag{
					configFlag,
					verboseFlag,
					&commands.BoolFlag{
						Name:  "simulate",
						Usage: "Run against the in-process simulated network",
					},
					&commands.BoolFlag{
						Name:  "enable",
						Usage: "Enable scenarios regardless of scenario.enabled",
					},
					&commands.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve prometheus metrics on this address",
					},
				},
				Action: cli.RunScenario,
			},
			{
				Name:      "sitrep",
				Usage:     "Show which chain head each node follows",
				ArgsUsage: "<endpoint...>",
				Flags:     []commands.Flag{verboseFlag, timeoutFlag},
				Action:    cli.Sitrep,
			},
			{
				Name:      "classify",
				Usage:     "Classify the nodes as convergent or divergent",
				ArgsUsage: "<endpoint...>",
				Flags: []commands.Flag{
					timeoutFlag,
					&commands.IntFlag{
						Name:  "standard",
						Usage: "Nodes that must share a head (default: all)",
					},
				},
				Action: cli.Classify,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/st3v3nmw/splitbrain/internal/config"
	commands "github.com/urfave/cli/v3"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

const runShContent = `#!/bin/bash

# This script starts one ledger node.
# splitbrain passes --port, --working-dir, --config and, for the genesis
# node, --genesis. "$@" forwards them to your program.

echo "Replace this line with the command that runs your node"
# Examples:
#   go run ./cmd/node "$@"
#   ./my-node "$@"
`

// InitConfig writes a default splitbrain.yaml and run.sh into the target
// directory.
func InitConfig(ctx context.Context, cmd *commands.Command) error {
	targetPath := "."
	if cmd.NArg() > 0 {
		targetPath = cmd.Args().First()
	}

	// Create directory if specified
	if targetPath != "." {
		if err := os.MkdirAll(targetPath, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", targetPath, err)
		}
	}

	configPath := filepath.Join(targetPath, config.DefaultPath)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	if err := config.SaveTo(config.Default(), configPath); err != nil {
		return err
	}

	runShPath := filepath.Join(targetPath, "run.sh")
	if _, err := os.Stat(runShPath); os.IsNotExist(err) {
		if err := os.WriteFile(runShPath, []byte(runShContent), 0755); err != nil {
			return fmt.Errorf("failed to create run.sh: %w", err)
		}
	}

	if targetPath == "." {
		fmt.Println("Created splitbrain config in current directory.")
	} else {
		fmt.Printf("Created splitbrain config in directory: %s\n", targetPath)
	}

	fmt.Println("  run.sh            - Starts one node")
	fmt.Println("  splitbrain.yaml   - Topology, partition and timeouts")
	fmt.Println()
	fmt.Println("Set scenario.enabled, then run 'splitbrain run'.")

	return nil
}

// ValidateConfig loads the config file and reports every problem in it.
func ValidateConfig(ctx context.Context, cmd *commands.Command) error {
	path := cmd.String("config")

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("%s %s\n", red("✗"), path)
		return err
	}

	m, _ := cfg.TopologyMatrix()
	p, _ := cfg.PartitionMatrix()
	edges, _ := m.Difference(p)

	fmt.Printf("%s %s\n", green("✓"), path)
	fmt.Printf("  topology:  %d nodes, %s\n", m.Size(), m)
	fmt.Printf("  partition: %s\n", p)
	fmt.Printf("  changed edges: %v\n", edges)

	return nil
}

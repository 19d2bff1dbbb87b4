package node

import (
	"context"

	"github.com/st3v3nmw/splitbrain/internal/netconfig"
)

// Driver is the control interface of one node process.
type Driver interface {
	// Start launches the process with cfg. It returns once the process has
	// been spawned; liveness is established through Probe.
	Start(ctx context.Context, cfg netconfig.NodeConfig) error
	// Apply hands a new peer list and connectivity target to the running
	// process without restarting it.
	Apply(ctx context.Context, cfg netconfig.NodeConfig) error
	// Probe is a cheap liveness check that never waits on consensus.
	Probe(ctx context.Context) bool
	// Stop tears the process down. When archiveDir is not empty the
	// process's logs and state are copied there first.
	Stop(ctx context.Context, archiveDir string) error
}

// DriverFactory builds the driver for node id. workingDir is the run
// directory owned by the cluster.
type DriverFactory func(id int, workingDir string) Driver

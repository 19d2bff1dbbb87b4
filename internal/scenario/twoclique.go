package scenario

import (
	"fmt"

	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/topology"
)

// TwoCliqueOptions parameterizes the partition recovery scenario.
type TwoCliqueOptions struct {
	// Bridge is the node whose removal splits the topology.
	Bridge int
	// Left and Right receive transactions while the cliques are apart.
	Left      int
	Right     int
	LeftTxns  int
	RightTxns int

	DivergentStandard  int
	ConvergentStandard int

	// Archive names the results bundle written at teardown.
	Archive string
}

func DefaultTwoCliqueOptions() TwoCliqueOptions {
	return TwoCliqueOptions{
		Bridge:             2,
		Left:               0,
		Right:              4,
		LeftTxns:           2,
		RightTxns:          4,
		DivergentStandard:  3,
		ConvergentStandard: 4,
		Archive:            "TestPartitionRecoveryResults",
	}
}

func init() {
	Register("two-clique", &Scenario{
		Name: "Two-Clique Partition Recovery",
		Summary: `Isolates the bridge node of a chain so both halves extend their own
ledger, then heals the partition with the bridge dialing every peer and
expects the cluster to settle on a single chain head.`,
		Build: func() *Suite { return TwoClique(DefaultTwoCliqueOptions()) },
	})
}

// TwoClique builds the partition recovery suite. Topology and partition
// matrices come from the environment's config.
func TwoClique(opts TwoCliqueOptions) *Suite {
	var full, split *topology.Matrix

	return NewSuite().
		Setup(func(env *Env) {
			var err error
			full, err = env.Config.TopologyMatrix()
			env.Must(err, "Check the topology matrix in the config file.")

			split, err = env.Config.PartitionMatrix()
			env.Must(err, "Check the partition matrix in the config file.")

			for _, id := range []int{opts.Bridge, opts.Left, opts.Right} {
				if id < 0 || id >= full.Size() {
					env.Fatalf("node %d is outside the %d-node topology", id, full.Size())
				}
			}

			err = env.Cluster.Initialize(full, env.Provider, env.Edge, env.Config.Blacklist)
			env.Must(err, "The cluster could not be configured from the topology.")
		}).
		Phase("genesis", func(env *Env) {
			err := env.Cluster.DoGenesis(env.Context(), env.Config.Timeouts.Genesis)
			env.Must(err, "The genesis node never came up. Check its log in the run directory.")
		}).
		Phase("launch", func(env *Env) {
			err := env.Cluster.Launch(env.Context(), env.Config.Timeouts.Launch)
			env.Must(err, "Every node must accept connections on its port after startup.")
			env.Report()
		}).
		Phase("partition", func(env *Env) {
			err := env.Cluster.Update(env.Context(), split, nil, env.Config.Timeouts.Settle)
			env.Must(err, "Nodes must accept a new peer list through POST /admin/config.")
			env.Report()
		}).
		Phase("extend both cliques", func(env *Env) {
			env.Submit(opts.Left, opts.LeftTxns, "left")
			env.Submit(opts.Right, opts.RightTxns, "right")
		}).
		Phase("diverged", func(env *Env) {
			env.AwaitVerdict(oracle.Divergent, opts.DivergentStandard)
			env.HoldVerdict(oracle.Divergent, opts.DivergentStandard, 3*env.Config.Timeouts.PollInterval)
			env.Report()
		}).
		Phase("heal", func(env *Env) {
			cfg, err := env.Cluster.Configuration(opts.Bridge)
			env.Must(err, "The bridge node configuration is unavailable.")

			cfg.InitialConnectivity = full.Degree(opts.Bridge)
			err = env.Cluster.SetConfiguration(opts.Bridge, cfg)
			env.Must(err, "The bridge node rejected its new connectivity.")

			err = env.Cluster.Update(env.Context(), full, nil, env.Config.Timeouts.Settle)
			env.Must(err, "Nodes must accept their restored peers through POST /admin/config.")
		}).
		Phase("converged", func(env *Env) {
			env.AwaitVerdict(oracle.Convergent, opts.ConvergentStandard)
			env.Report()
		}).
		Teardown(func(env *Env) {
			if endpoints := env.Cluster.Endpoints(); env.Failed() && len(endpoints) > 0 {
				fmt.Fprintln(env.Out)
				env.Reporter.Report(env.Context(), endpoints, max(env.Verbosity, 1))
			}

			env.Cluster.Shutdown(env.Context(), opts.Archive)
		})
}

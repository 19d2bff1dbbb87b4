package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/sitrep"
	commands "github.com/urfave/cli/v3"
)

// Sitrep prints a one-off situation report for the given endpoints.
func Sitrep(ctx context.Context, cmd *commands.Command) error {
	endpoints := cmd.Args().Slice()
	if len(endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required\nUsage: splitbrain sitrep <endpoint...>")
	}

	timeout := cmd.Duration("timeout")
	verbosity := 1
	if cmd.Bool("verbose") {
		verbosity = 2
	}

	q := oracle.NewHTTPQuerier(timeout)
	sitrep.New(q, os.Stdout, sitrep.WithTimeout(timeout)).Report(ctx, endpoints, verbosity)

	return nil
}

// Classify samples the endpoints once and prints the verdict. It exits
// non-zero unless the verdict is convergent.
func Classify(ctx context.Context, cmd *commands.Command) error {
	endpoints := cmd.Args().Slice()
	if len(endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required\nUsage: splitbrain classify --standard N <endpoint...>")
	}

	standard := cmd.Int("standard")
	if standard == 0 {
		standard = len(endpoints)
	}

	o := oracle.New(oracle.NewHTTPQuerier(cmd.Duration("timeout")), cmd.Duration("timeout"))

	started := time.Now()
	verdict, samples := o.Check(ctx, endpoints, standard)

	fmt.Printf("%s (standard %d, %d/%d answered in %s)\n", verdict, standard,
		len(samples), len(endpoints), time.Since(started).Round(time.Millisecond))
	for _, g := range oracle.Groups(samples) {
		fmt.Printf("  %s length=%d nodes=%v\n", g.Head, g.Length, g.NodeIDs)
	}

	if verdict != oracle.Convergent {
		return fmt.Errorf("cluster is %s", verdict)
	}

	return nil
}

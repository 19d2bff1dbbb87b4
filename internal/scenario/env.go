package scenario

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/cluster"
	"github.com/st3v3nmw/splitbrain/internal/config"
	"github.com/st3v3nmw/splitbrain/internal/logger"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/poll"
	"github.com/st3v3nmw/splitbrain/internal/sitrep"
	"github.com/st3v3nmw/splitbrain/internal/workload"
	"go.uber.org/zap"
)

// Env is everything a phase may act on.
type Env struct {
	Cluster  *cluster.Controller
	Oracle   *oracle.Oracle
	Reporter *sitrep.Reporter
	Clients  workload.Factory
	Provider *netconfig.Provider
	Edge     netconfig.EdgeController
	Config   *config.Config
	Logger   *zap.Logger

	// Out receives marks and situation reports. Default: stdout.
	Out io.Writer
	// Verbosity is passed to situation reports.
	Verbosity int

	ctx    context.Context
	failed bool
}

// Context returns the context of the running suite.
func (e *Env) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}

	return e.ctx
}

// Failed reports whether setup or a phase has failed. Teardown uses it.
func (e *Env) Failed() bool {
	return e.failed
}

// Fatalf fails the current phase.
func (e *Env) Fatalf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}

// Must fails the current phase when err is not nil.
func (e *Env) Must(err error, help string) {
	if err != nil {
		e.Fatalf("%v\n\n  %s", err, strings.ReplaceAll(help, "\n", "\n  "))
	}
}

// Report prints a situation report when verbosity allows.
func (e *Env) Report() {
	if e.Verbosity > 0 {
		fmt.Fprintln(e.Out)
		e.Reporter.Report(e.Context(), e.Cluster.Endpoints(), e.Verbosity)
		fmt.Fprintln(e.Out)
	}
}

// Submit sends n transactions to node id and waits for each to commit.
func (e *Env) Submit(id, n int, keyPrefix string) {
	endpoints := e.Cluster.Endpoints()
	if id < 0 || id >= len(endpoints) {
		e.Fatalf("cannot submit to unknown node %d", id)
	}

	client := e.Clients(endpoints[id])
	for i := range n {
		key := fmt.Sprintf("%s-%d", keyPrefix, i)
		if err := client.Set(e.Context(), key, fmt.Sprintf("v%d", i)); err != nil {
			e.Fatalf("node %d rejected %s: %v", id, key, err)
		}

		if err := client.WaitForCommit(e.Context()); err != nil {
			e.Fatalf("node %d did not commit %s: %v", id, key, err)
		}
	}

	e.Logger.Info("transactions committed", logger.NodeID(id), zap.Int("count", n), zap.String("prefix", keyPrefix))
}

// AwaitVerdict polls the oracle until it reports want at the given
// standard, failing the phase after the convergence timeout.
func (e *Env) AwaitVerdict(want oracle.Verdict, standard int) {
	endpoints := e.Cluster.Endpoints()
	timeouts := e.Config.Timeouts

	var last oracle.Verdict
	var samples []oracle.Sample
	started := time.Now()

	ok := poll.Eventually(e.Context(), func() bool {
		last, samples = e.Oracle.Check(e.Context(), endpoints, standard)
		return last == want
	}, timeouts.Convergence, timeouts.PollInterval)

	if !ok {
		e.Fatalf("expected %s at standard %d within %s, last verdict was %s\n\n%s",
			want, standard, timeouts.Convergence, last, describe(samples))
	}

	e.Logger.Info("verdict reached",
		zap.Stringer("verdict", want), zap.Int("standard", standard),
		logger.Duration(time.Since(started)))
}

// HoldVerdict fails unless the oracle keeps reporting want for window.
func (e *Env) HoldVerdict(want oracle.Verdict, standard int, window time.Duration) {
	endpoints := e.Cluster.Endpoints()

	var last oracle.Verdict
	ok := poll.Consistently(e.Context(), func() bool {
		last, _ = e.Oracle.Check(e.Context(), endpoints, standard)
		return last == want
	}, window, e.Config.Timeouts.PollInterval)

	if !ok {
		e.Fatalf("expected %s to hold for %s, got %s", want, window, last)
	}
}

func describe(samples []oracle.Sample) string {
	if len(samples) == 0 {
		return "no node answered"
	}

	var b strings.Builder
	for _, g := range oracle.Groups(samples) {
		fmt.Fprintf(&b, "  head %s (length %d): nodes %v\n", g.Head, g.Length, g.NodeIDs)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (e *Env) defaults() {
	if e.Out == nil {
		e.Out = os.Stdout
	}

	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
}

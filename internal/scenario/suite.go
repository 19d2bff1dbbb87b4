package scenario

import (
	"context"
	"fmt"

	"github.com/fatih/color"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	checkMark = green("✓")
	crossMark = red("✗")
)

// Suite is an ordered list of phases run against one Env.
type Suite struct {
	setupFn    func(*Env)
	phases     []Phase
	teardownFn func(*Env)
}

// Phase is a named step. It fails by panicking, usually through Env.Fatalf.
type Phase struct {
	Name string
	Fn   func(*Env)
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{phases: make([]Phase, 0)}
}

// Setup adds a function that runs before all phases.
func (s *Suite) Setup(fn func(*Env)) *Suite {
	s.setupFn = fn
	return s
}

// Phase appends a phase.
func (s *Suite) Phase(name string, fn func(*Env)) *Suite {
	s.phases = append(s.phases, Phase{Name: name, Fn: fn})
	return s
}

// Teardown adds a function that runs after the phases, even when one failed.
func (s *Suite) Teardown(fn func(*Env)) *Suite {
	s.teardownFn = fn
	return s
}

// Len returns the number of phases.
func (s *Suite) Len() int {
	return len(s.phases)
}

// Run executes the suite, stopping at the first failed phase or when ctx
// is done, and reports whether every phase passed. Nothing runs unless
// scenarios are enabled in the environment's config.
func (s *Suite) Run(ctx context.Context, env *Env) (passed bool) {
	env.defaults()

	if !env.Config.Scenario.Enabled {
		fmt.Fprintf(env.Out, "%s scenario disabled, set scenario.enabled or pass --enable\n", yellow("SKIPPED"))
		return true
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	env.ctx = ctx

	var failed bool
	defer func() {
		// Teardown must still reach the nodes after an interrupt.
		env.ctx = context.WithoutCancel(ctx)
		env.failed = failed
		if s.teardownFn != nil && !s.guard(env, "TEARDOWN", s.teardownFn, false) {
			failed = true
		}

		if failed {
			fmt.Fprintf(env.Out, "\n%s %s\n", bold("FAILED"), crossMark)
		} else {
			fmt.Fprintf(env.Out, "\n%s %s\n", bold("PASSED"), checkMark)
		}

		passed = !failed
	}()

	// Run setup function if defined
	if s.setupFn != nil && !s.guard(env, "SETUP", s.setupFn, false) {
		failed = true
	}

	// Run each phase, stopping on first failure or cancellation
	for _, phase := range s.phases {
		if failed {
			break
		}

		if err := ctx.Err(); err != nil {
			fmt.Fprintf(env.Out, "%s %s\n", crossMark, phase.Name)
			fmt.Fprintf(env.Out, "\n%s\n", err)
			failed = true
			break
		}

		if !s.guard(env, phase.Name, phase.Fn, true) {
			failed = true
		}
	}

	return !failed
}

// guard runs fn, converting a panic into a failed mark.
func (s *Suite) guard(env *Env, name string, fn func(*Env), markPass bool) (ok bool) {
	defer func() {
		err := recover()
		if err != nil {
			ok = false

			fmt.Fprintf(env.Out, "%s %s\n", crossMark, name)
			fmt.Fprintf(env.Out, "\n%v\n", err)
		}
	}()

	fn(env)

	if markPass {
		fmt.Fprintf(env.Out, "%s %s\n", checkMark, name)
	}

	return true
}

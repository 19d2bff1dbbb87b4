package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/st3v3nmw/splitbrain/internal/logger"
	"github.com/st3v3nmw/splitbrain/internal/metrics"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/poll"
	"go.uber.org/zap"
)

const defaultPollInterval = 100 * time.Millisecond

// Controller drives one node through its lifecycle and guards every
// transition with the current state.
type Controller struct {
	id     int
	driver Driver
	logger *zap.Logger

	pollInterval time.Duration
	startTimeout time.Duration

	// opMu serializes lifecycle operations; mu guards state and config.
	opMu   sync.Mutex
	mu     sync.RWMutex
	state  State
	config netconfig.NodeConfig
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithPollInterval sets how often Start probes for liveness.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithStartTimeout bounds how long Start waits for the node to probe live.
// Zero leaves the wait bounded only by the caller's context.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.startTimeout = d
	}
}

// NewController creates a controller for node id in state NotStarted.
func NewController(id int, driver Driver, opts ...Option) *Controller {
	c := &Controller{
		id:           id,
		driver:       driver,
		logger:       zap.NewNop(),
		pollInterval: defaultPollInterval,
		state:        NotStarted,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.NodeID(id))

	return c
}

func (c *Controller) ID() int {
	return c.id
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Config returns a copy of the config the node is currently running with.
func (c *Controller) Config() netconfig.NodeConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.config.Clone()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("node state changed",
		zap.String("from", prev.String()), logger.State(s.String()))
}

// Start spawns the process and waits until it probes live or ctx is done.
// On failure the process is torn down and the node ends in Failed.
func (c *Controller) Start(ctx context.Context, cfg netconfig.NodeConfig) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	defer func() {
		metrics.NodeOperations.WithLabelValues("start", metrics.Result(err)).Inc()
	}()

	if s := c.State(); !s.startable() {
		return &StateError{NodeID: c.id, Op: "start", State: s}
	}

	c.setState(Starting)
	started := time.Now()

	if err := c.driver.Start(ctx, cfg); err != nil {
		c.fail(err)
		return fmt.Errorf("node %d: start: %w", c.id, err)
	}

	waitCtx := ctx
	if c.startTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.startTimeout)
		defer cancel()
	}

	if err := poll.Until(waitCtx, c.driver.Probe, c.pollInterval); err != nil {
		c.fail(err)
		return fmt.Errorf("node %d: not live after %s: %w", c.id, time.Since(started).Round(time.Millisecond), err)
	}

	c.mu.Lock()
	c.config = cfg.Clone()
	c.mu.Unlock()
	c.setState(Live)

	c.logger.Info("node live", logger.Endpoint(cfg.Endpoint), logger.Duration(time.Since(started)))
	return nil
}

// fail tears down a process that never became live.
func (c *Controller) fail(cause error) {
	// The start context may already be done; teardown gets its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.driver.Stop(ctx, ""); err != nil {
		c.logger.Warn("teardown after failed start", logger.Err(err))
	}

	c.setState(Failed)
	c.logger.Warn("node failed to start", logger.Err(cause))
}

// Apply reconfigures a live node in place. It is rejected unless the node
// is Live. On driver failure the node stays Live with its previous config.
func (c *Controller) Apply(ctx context.Context, cfg netconfig.NodeConfig) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if s := c.State(); s != Live {
		metrics.NodeOperations.WithLabelValues("apply", "rejected").Inc()
		return &ReconfigurationRejectedError{NodeID: c.id, State: s}
	}

	defer func() {
		metrics.NodeOperations.WithLabelValues("apply", metrics.Result(err)).Inc()
	}()

	c.setState(Reconfiguring)
	err = c.driver.Apply(ctx, cfg)

	if err == nil {
		c.mu.Lock()
		c.config = cfg.Clone()
		c.mu.Unlock()
	}
	c.setState(Live)

	if err != nil {
		return fmt.Errorf("node %d: apply config: %w", c.id, err)
	}

	c.logger.Debug("node reconfigured",
		zap.Ints("peers", cfg.Peers), zap.Int("initial_connectivity", cfg.InitialConnectivity))
	return nil
}

// Probe reports whether the node is Live and its process answers.
func (c *Controller) Probe(ctx context.Context) bool {
	if c.State() != Live {
		return false
	}

	return c.driver.Probe(ctx)
}

// Terminate stops the node, archiving into archiveDir when it is not
// empty. It always leaves the node Stopped and is safe to call repeatedly.
func (c *Controller) Terminate(ctx context.Context, archiveDir string) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.State() {
	case NotStarted, Stopped:
		return nil
	}

	defer func() {
		metrics.NodeOperations.WithLabelValues("stop", metrics.Result(err)).Inc()
	}()

	c.setState(Stopping)
	err = c.driver.Stop(ctx, archiveDir)
	c.setState(Stopped)

	if err != nil {
		return fmt.Errorf("node %d: stop: %w", c.id, err)
	}

	c.logger.Info("node stopped", logger.Archive(archiveDir))
	return nil
}

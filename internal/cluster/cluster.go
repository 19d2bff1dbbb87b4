package cluster

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/st3v3nmw/splitbrain/internal/logger"
	"github.com/st3v3nmw/splitbrain/internal/metrics"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/node"
	"github.com/st3v3nmw/splitbrain/internal/poll"
	"github.com/st3v3nmw/splitbrain/internal/topology"
	"github.com/st3v3nmw/splitbrain/pkg/threadsafe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// rollbackTimeout bounds cleanup work that runs after the caller's
// context has already expired.
const rollbackTimeout = 30 * time.Second

// member pairs a node's intended config with the controller running it.
type member struct {
	config netconfig.NodeConfig
	ctrl   *node.Controller
}

// Controller coordinates N node controllers as a unit. It is the only
// component that starts, reconfigures or stops node processes.
type Controller struct {
	logger       *zap.Logger
	factory      node.DriverFactory
	baseDir      string
	genesisNodes []int
	pollInterval time.Duration
	startTimeout time.Duration

	runID      string
	workingDir string

	// opMu serializes lifecycle operations; mu guards the fields below.
	opMu      sync.Mutex
	mu        sync.RWMutex
	phase     Phase
	matrix    *topology.Matrix
	provider  *netconfig.Provider
	edge      netconfig.EdgeController
	blacklist map[int][]int
	overrides map[int]int
	members   []*member
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithWorkingDir sets the base directory; each run gets its own
// subdirectory holding node files and archives.
func WithWorkingDir(dir string) Option {
	return func(c *Controller) {
		c.baseDir = dir
	}
}

// WithGenesisNodes selects the nodes that seed the ledger. Default: node 0.
func WithGenesisNodes(ids ...int) Option {
	return func(c *Controller) {
		c.genesisNodes = slices.Clone(ids)
	}
}

// WithDriverFactory sets how node drivers are built.
func WithDriverFactory(f node.DriverFactory) Option {
	return func(c *Controller) {
		c.factory = f
	}
}

// WithPollInterval sets how often liveness is probed while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.pollInterval = d
	}
}

// WithStartTimeout bounds how long each node may take to probe live after
// its process is spawned.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.startTimeout = d
	}
}

// New creates an Unconfigured cluster controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		logger:       zap.NewNop(),
		baseDir:      ".splitbrain",
		genesisNodes: []int{0},
		pollInterval: 100 * time.Millisecond,
		runID:        uuid.NewString(),
		phase:        Unconfigured,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Build working directory path with timestamp
	timestamp := time.Now().Format("20060102-150405")
	c.workingDir = filepath.Join(c.baseDir, fmt.Sprintf("run-%s-%s", timestamp, c.runID[:8]))
	c.logger = c.logger.With(logger.RunID(c.runID))

	return c
}

func (c *Controller) RunID() string {
	return c.runID
}

func (c *Controller) WorkingDir() string {
	return c.workingDir
}

func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.phase
}

// Matrix returns the topology currently applied to the cluster.
func (c *Controller) Matrix() *topology.Matrix {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.matrix
}

func (c *Controller) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.members)
}

// Endpoints returns the listen endpoint of every node, ordered by node id.
func (c *Controller) Endpoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	endpoints := make([]string, len(c.members))
	for i, m := range c.members {
		endpoints[i] = m.config.Endpoint
	}

	return endpoints
}

// NodeState returns the lifecycle state of node id.
func (c *Controller) NodeState(id int) node.State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if id < 0 || id >= len(c.members) {
		return node.NotStarted
	}

	return c.members[id].ctrl.State()
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	prev := c.phase
	c.phase = p
	c.mu.Unlock()

	if prev != p {
		metrics.ClusterPhaseTransitions.WithLabelValues(prev.String(), p.String()).Inc()
		c.logger.Info("cluster phase changed", zap.String("from", prev.String()), logger.Phase(p.String()))
	}
}

func (c *Controller) expect(op string, allowed ...Phase) error {
	if p := c.Phase(); !slices.Contains(allowed, p) {
		return &PhaseError{Op: op, Phase: p}
	}

	return nil
}

func observe(op string, started time.Time, err error) {
	metrics.ClusterOperationLatency.
		WithLabelValues(op, metrics.Result(err)).
		Observe(time.Since(started).Seconds())
}

// Initialize validates the matrix and derives every node's config. No
// process is started.
func (c *Controller) Initialize(m *topology.Matrix, provider *netconfig.Provider, edge netconfig.EdgeController, blacklist map[int][]int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("initialize", Unconfigured); err != nil {
		return err
	}

	if err := m.Validate(); err != nil {
		return err
	}

	for _, id := range c.genesisNodes {
		if id < 0 || id >= m.Size() {
			return fmt.Errorf("genesis node %d is outside the %d-node topology", id, m.Size())
		}
	}

	if c.factory == nil {
		return fmt.Errorf("no node driver factory configured")
	}

	if edge == nil {
		edge = netconfig.NopEdgeController{}
	}

	blacklist = cloneBlacklist(blacklist)
	configs, err := provider.Derive(m, blacklist, nil)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.workingDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	members := make([]*member, len(configs))
	for i, cfg := range configs {
		driver := c.factory(i, c.workingDir)
		members[i] = &member{
			config: cfg,
			ctrl: node.NewController(i, driver,
				node.WithLogger(c.logger),
				node.WithPollInterval(c.pollInterval),
				node.WithStartTimeout(c.startTimeout)),
		}
	}

	c.mu.Lock()
	c.matrix = m
	c.provider = provider
	c.edge = edge
	c.blacklist = blacklist
	c.overrides = make(map[int]int)
	c.members = members
	c.mu.Unlock()

	c.logger.Info("cluster initialized",
		zap.Int("nodes", len(members)), logger.Matrix(m.String()),
		zap.String("working_dir", c.workingDir))
	c.setPhase(Configured)

	return nil
}

// DoGenesis starts the genesis nodes long enough to seed the root ledger
// state, then stops them. On failure the cluster returns to Configured.
func (c *Controller) DoGenesis(ctx context.Context, timeout time.Duration) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("run genesis", Configured); err != nil {
		return err
	}

	started := time.Now()
	defer func() { observe("genesis", started, err) }()

	c.setPhase(Genesis)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pending := threadsafe.NewMap[int, error]()
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range c.genesisNodes {
		m := c.members[id]
		cfg := m.config.Clone()
		cfg.Genesis = true
		pending.Set(id, nil)

		g.Go(func() error {
			if err := m.ctrl.Start(gctx, cfg); err != nil {
				pending.Set(id, err)
				return err
			}

			if err := m.ctrl.Terminate(gctx, ""); err != nil {
				pending.Set(id, err)
				return err
			}

			pending.Delete(id)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.teardown(c.genesisNodes)
		c.setPhase(Configured)

		return &GenesisTimeoutError{Nodes: threadsafe.SortedKeys(pending), Err: err}
	}

	c.logger.Info("genesis complete", logger.NodeIDs(c.genesisNodes), logger.Duration(time.Since(started)))
	c.setPhase(Ready)

	return nil
}

// Launch starts every node concurrently and waits until all are Live. If
// any node misses the deadline, every node is stopped again and the
// cluster stays Ready.
func (c *Controller) Launch(ctx context.Context, timeout time.Duration) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("launch", Ready); err != nil {
		return err
	}

	started := time.Now()
	defer func() { observe("launch", started, err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.edge.Apply(ctx, c.matrix); err != nil {
		return fmt.Errorf("failed to apply edge rules: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range c.members {
		g.Go(func() error {
			if err := m.ctrl.Start(gctx, m.config); err != nil {
				return &LaunchFailureError{NodeID: m.ctrl.ID(), Err: err}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Warn("launch failed, tearing down started nodes", logger.Err(err))
		c.teardown(nil)

		return err
	}

	c.logger.Info("cluster launched", logger.Duration(time.Since(started)))
	c.setPhase(Running)

	return nil
}

// teardown stops the given nodes, or all nodes when ids is nil, without
// archiving. Errors are logged.
func (c *Controller) teardown(ids []int) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if ids == nil {
		for i := range c.members {
			ids = append(ids, i)
		}
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := c.members[id].ctrl.Terminate(ctx, ""); err != nil {
				c.logger.Warn("teardown failed", logger.NodeID(id), logger.Err(err))
			}
		}()
	}
	wg.Wait()
}

// Update moves the cluster to a new topology. Nodes whose adjacency
// changed, or whose derived config differs from what they run, are
// reconfigured in place and concurrently. When settle is positive every
// reconfigured node must probe live again within it.
//
// If any node fails, the nodes already reconfigured get their previous
// config back and the current matrix is left unchanged.
func (c *Controller) Update(ctx context.Context, next *topology.Matrix, overrides map[int]int, settle time.Duration) (err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("update", Running); err != nil {
		return err
	}

	started := time.Now()
	defer func() { observe("update", started, err) }()

	if err := next.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	current := c.matrix
	merged := maps.Clone(c.overrides)
	blacklist := c.blacklist
	c.mu.RUnlock()

	edges, err := current.Difference(next)
	if err != nil {
		return err
	}

	maps.Copy(merged, overrides)
	configs, err := c.provider.Derive(next, blacklist, merged)
	if err != nil {
		return err
	}

	affected := topology.Affected(edges)
	for i, m := range c.members {
		if !slices.Contains(affected, i) && !configs[i].Equal(m.ctrl.Config()) {
			affected = append(affected, i)
		}
	}
	slices.Sort(affected)

	c.setPhase(Updating)
	defer c.setPhase(Running)

	c.logger.Info("updating topology",
		logger.Matrix(next.String()), logger.NodeIDs(affected),
		zap.Stringers("edges", edges))

	if err := c.edge.Apply(ctx, next); err != nil {
		c.restoreEdges(current)
		return fmt.Errorf("failed to apply edge rules: %w", err)
	}

	previous := make(map[int]netconfig.NodeConfig, len(affected))
	for _, id := range affected {
		previous[id] = c.members[id].ctrl.Config()
	}

	failed := threadsafe.NewMap[int, error]()
	applied := threadsafe.NewMap[int, bool]()

	var g errgroup.Group
	for _, id := range affected {
		g.Go(func() error {
			if err := c.members[id].ctrl.Apply(ctx, configs[id]); err != nil {
				failed.Set(id, err)
				return nil
			}

			applied.Set(id, true)
			return nil
		})
	}
	g.Wait()

	if failed.Len() == 0 && settle > 0 {
		c.settle(ctx, affected, settle, failed)
	}

	if failed.Len() > 0 {
		metrics.ClusterUpdateFailures.Inc()
		c.rollback(current, previous, threadsafe.SortedKeys(applied))

		return &UpdatePartialFailureError{
			FailedNodeIDs: threadsafe.SortedKeys(failed),
			Errs:          failed.Snapshot(),
		}
	}

	c.mu.Lock()
	c.matrix = next
	c.overrides = merged
	for i, m := range c.members {
		m.config = configs[i]
	}
	c.mu.Unlock()

	c.logger.Info("topology updated", logger.NodeIDs(affected), logger.Duration(time.Since(started)))
	return nil
}

// settle waits until every node in ids probes live, recording stragglers
// in failed.
func (c *Controller) settle(ctx context.Context, ids []int, timeout time.Duration, failed *threadsafe.Map[int, error]) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := poll.Until(ctx, c.members[id].ctrl.Probe, c.pollInterval); err != nil {
				failed.Set(id, fmt.Errorf("node %d did not settle within %s: %w", id, timeout, err))
			}

			return nil
		})
	}
	g.Wait()
}

// rollback re-applies the previous configs to nodes that accepted the new
// one and restores the old edge rules.
func (c *Controller) rollback(current *topology.Matrix, previous map[int]netconfig.NodeConfig, ids []int) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	c.logger.Warn("rolling back topology update", logger.NodeIDs(ids))

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := c.members[id].ctrl.Apply(ctx, previous[id]); err != nil {
				c.logger.Error("rollback failed", logger.NodeID(id), logger.Err(err))
			}

			return nil
		})
	}
	g.Wait()

	c.restoreEdgesCtx(ctx, current)
}

func (c *Controller) restoreEdges(m *topology.Matrix) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	c.restoreEdgesCtx(ctx, m)
}

func (c *Controller) restoreEdgesCtx(ctx context.Context, m *topology.Matrix) {
	if err := c.edge.Apply(ctx, m); err != nil {
		c.logger.Error("failed to restore edge rules", logger.Err(err))
	}
}

// Configuration returns the config node id will be given by the next
// Update. Only legal while Running.
func (c *Controller) Configuration(id int) (netconfig.NodeConfig, error) {
	if err := c.expect("read configuration", Running); err != nil {
		return netconfig.NodeConfig{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if id < 0 || id >= len(c.members) {
		return netconfig.NodeConfig{}, fmt.Errorf("unknown node %d", id)
	}

	return c.members[id].config.Clone(), nil
}

// SetConfiguration records cfg as node id's pending config. Its initial
// connectivity and blacklist stick to the node and take effect on the next
// Update; peers are always re-derived from the topology.
func (c *Controller) SetConfiguration(id int, cfg netconfig.NodeConfig) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expect("set configuration", Running); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if id < 0 || id >= len(c.members) {
		return fmt.Errorf("unknown node %d", id)
	}

	if cfg.ID != id {
		return fmt.Errorf("config for node %d passed for node %d", cfg.ID, id)
	}

	if cfg.InitialConnectivity < 0 {
		return fmt.Errorf("node %d: initial connectivity is negative: %d", id, cfg.InitialConnectivity)
	}

	for _, peer := range cfg.Blacklist {
		if peer < 0 || peer >= len(c.members) {
			return fmt.Errorf("node %d: blacklisted node %d is outside the %d-node cluster", id, peer, len(c.members))
		}
	}

	c.overrides[id] = cfg.InitialConnectivity
	c.blacklist[id] = slices.Clone(cfg.Blacklist)
	c.members[id].config = cfg.Clone()

	c.logger.Info("node configuration staged", logger.NodeID(id),
		zap.Int("initial_connectivity", cfg.InitialConnectivity))

	return nil
}

// Shutdown stops every node regardless of phase. When archiveName is not
// empty each node's output is collected and bundled into
// <working dir>/<archiveName>.tar.xz. Failures are logged, never returned,
// so Shutdown is safe to defer.
func (c *Controller) Shutdown(ctx context.Context, archiveName string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	started := time.Now()
	defer func() { observe("shutdown", started, nil) }()

	prev := c.Phase()
	if prev == Stopped {
		return
	}
	c.setPhase(ShuttingDown)

	var staging string
	if archiveName != "" {
		staging = filepath.Join(c.workingDir, archiveName)
	}

	teardownErrs := threadsafe.NewMap[int, error]()

	var wg sync.WaitGroup
	for i, m := range c.members {
		var dir string
		if staging != "" {
			dir = filepath.Join(staging, m.config.Name)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := m.ctrl.Terminate(ctx, dir); err != nil {
				teardownErrs.Set(i, err)
				c.logger.Warn("node teardown failed", logger.NodeID(i), logger.Err(err))
			}
		}()
	}
	wg.Wait()

	if staging != "" {
		if err := c.archive(staging, prev, teardownErrs.Snapshot()); err != nil {
			c.logger.Error("failed to archive results", logger.Archive(archiveName), logger.Err(err))
		} else {
			c.logger.Info("results archived", logger.Archive(staging+archiveExt))
		}
	}

	c.setPhase(Stopped)
}

func cloneBlacklist(in map[int][]int) map[int][]int {
	out := make(map[int][]int, len(in))
	for id, denied := range in {
		out[id] = slices.Clone(denied)
	}

	return out
}

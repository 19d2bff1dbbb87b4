package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/st3v3nmw/splitbrain/internal/logger"
	"github.com/st3v3nmw/splitbrain/internal/topology"
)

const DefaultPath = "splitbrain.yaml"

// Timeouts bounds every blocking step of a run.
type Timeouts struct {
	ProcessStart    time.Duration `yaml:"process_start"`
	ProcessShutdown time.Duration `yaml:"process_shutdown"`
	Genesis         time.Duration `yaml:"genesis"`
	Launch          time.Duration `yaml:"launch"`
	// Settle is how long reconfigured nodes get to probe live after an update.
	Settle time.Duration `yaml:"settle"`
	// Sample bounds one oracle sample round.
	Sample       time.Duration `yaml:"sample"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Commit bounds waiting for a submitted transaction to commit.
	Commit time.Duration `yaml:"commit"`
	// Convergence bounds polling the oracle for an expected verdict.
	Convergence time.Duration `yaml:"convergence"`
}

type Scenario struct {
	// Enabled must be set for scenarios to do anything.
	Enabled bool `yaml:"enabled"`
	// Simulate runs against the in-process network instead of real nodes.
	Simulate bool `yaml:"simulate"`
}

type Config struct {
	// Command starts one node; it is passed --port, --working-dir,
	// --config and, for genesis, --genesis.
	Command    string `yaml:"command"`
	WorkingDir string `yaml:"working_dir"`

	Host         string `yaml:"host"`
	BasePort     int    `yaml:"base_port"`
	GenesisNodes []int  `yaml:"genesis_nodes"`

	Timeouts Timeouts `yaml:"timeouts"`

	// Topology is the adjacency matrix the cluster launches with.
	Topology [][]int `yaml:"topology"`
	// Partition is the matrix the partition scenario switches to.
	Partition [][]int `yaml:"partition"`
	// Blacklist maps a node to peers it must never connect to.
	Blacklist map[int][]int `yaml:"blacklist,omitempty"`

	Scenario    Scenario      `yaml:"scenario"`
	Log         logger.Config `yaml:"log"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
}

// chain is the five-node line 0-1-2-3-4 where node 2 is the only bridge.
var chain = [][]int{
	{1, 1, 0, 0, 0},
	{1, 1, 1, 0, 0},
	{0, 1, 1, 1, 0},
	{0, 0, 1, 1, 1},
	{0, 0, 0, 1, 1},
}

// Default returns the configuration used for any field a file leaves unset.
func Default() *Config {
	m := topology.MustNew(chain)

	return &Config{
		Command:      "./run.sh",
		WorkingDir:   ".splitbrain",
		Host:         "127.0.0.1",
		BasePort:     9000,
		GenesisNodes: []int{0},
		Timeouts: Timeouts{
			ProcessStart:    10 * time.Second,
			ProcessShutdown: 10 * time.Second,
			Genesis:         30 * time.Second,
			Launch:          30 * time.Second,
			Settle:          5 * time.Second,
			Sample:          2 * time.Second,
			PollInterval:    100 * time.Millisecond,
			Commit:          10 * time.Second,
			Convergence:     60 * time.Second,
		},
		Topology:  m.Rows(),
		Partition: m.Sever(2).Rows(),
		Log:       logger.Config{Level: "info", Format: "console"},
	}
}

// Merge returns defaults overridden by every non-zero field of cfg.
func Merge(defaults, cfg *Config) *Config {
	merged := *defaults

	if cfg.Command != "" {
		merged.Command = cfg.Command
	}

	if cfg.WorkingDir != "" {
		merged.WorkingDir = cfg.WorkingDir
	}

	if cfg.Host != "" {
		merged.Host = cfg.Host
	}

	if cfg.BasePort != 0 {
		merged.BasePort = cfg.BasePort
	}

	if len(cfg.GenesisNodes) > 0 {
		merged.GenesisNodes = cfg.GenesisNodes
	}

	merged.Timeouts = mergeTimeouts(defaults.Timeouts, cfg.Timeouts)

	if len(cfg.Topology) > 0 {
		merged.Topology = cfg.Topology
	}

	if len(cfg.Partition) > 0 {
		merged.Partition = cfg.Partition
	}

	if len(cfg.Blacklist) > 0 {
		merged.Blacklist = cfg.Blacklist
	}

	merged.Scenario.Enabled = defaults.Scenario.Enabled || cfg.Scenario.Enabled
	merged.Scenario.Simulate = defaults.Scenario.Simulate || cfg.Scenario.Simulate

	if cfg.Log.Level != "" {
		merged.Log.Level = cfg.Log.Level
	}

	if cfg.Log.Format != "" {
		merged.Log.Format = cfg.Log.Format
	}

	if cfg.MetricsAddr != "" {
		merged.MetricsAddr = cfg.MetricsAddr
	}

	return &merged
}

func mergeTimeouts(defaults, t Timeouts) Timeouts {
	pick := func(d, v time.Duration) time.Duration {
		if v != 0 {
			return v
		}
		return d
	}

	return Timeouts{
		ProcessStart:    pick(defaults.ProcessStart, t.ProcessStart),
		ProcessShutdown: pick(defaults.ProcessShutdown, t.ProcessShutdown),
		Genesis:         pick(defaults.Genesis, t.Genesis),
		Launch:          pick(defaults.Launch, t.Launch),
		Settle:          pick(defaults.Settle, t.Settle),
		Sample:          pick(defaults.Sample, t.Sample),
		PollInterval:    pick(defaults.PollInterval, t.PollInterval),
		Commit:          pick(defaults.Commit, t.Commit),
		Convergence:     pick(defaults.Convergence, t.Convergence),
	}
}

// Load reads path, merges it over the defaults and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s not found\nRun 'splitbrain init' to create one", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	merged := Merge(Default(), &cfg)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return merged, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, DefaultPath)
}

func SaveTo(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every field, reporting all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Command == "" && !c.Scenario.Simulate {
		errs = append(errs, errors.New("command cannot be empty unless scenario.simulate is set"))
	}

	if c.WorkingDir == "" {
		errs = append(errs, errors.New("working_dir cannot be empty"))
	}

	if c.Host == "" {
		errs = append(errs, errors.New("host cannot be empty"))
	}

	m, err := c.TopologyMatrix()
	if err != nil {
		errs = append(errs, fmt.Errorf("topology: %w", err))
	}

	p, err := c.PartitionMatrix()
	if err != nil {
		errs = append(errs, fmt.Errorf("partition: %w", err))
	}

	if m != nil {
		n := m.Size()

		if p != nil && p.Size() != n {
			errs = append(errs, fmt.Errorf("partition: %w", &topology.TopologySizeMismatchError{Want: n, Got: p.Size()}))
		}

		if c.BasePort < 1 || c.BasePort+n-1 > 65535 {
			errs = append(errs, fmt.Errorf("base_port %d cannot host %d nodes", c.BasePort, n))
		}

		for _, id := range c.GenesisNodes {
			if id < 0 || id >= n {
				errs = append(errs, fmt.Errorf("genesis node %d is outside the %d-node topology", id, n))
			}
		}

		for id, denied := range c.Blacklist {
			for _, peer := range append([]int{id}, denied...) {
				if peer < 0 || peer >= n {
					errs = append(errs, fmt.Errorf("blacklist of node %d names unknown node %d", id, peer))
				}
			}
		}
	}

	if len(c.GenesisNodes) == 0 {
		errs = append(errs, errors.New("at least one genesis node is required"))
	}

	for name, d := range map[string]time.Duration{
		"process_start":    c.Timeouts.ProcessStart,
		"process_shutdown": c.Timeouts.ProcessShutdown,
		"genesis":          c.Timeouts.Genesis,
		"launch":           c.Timeouts.Launch,
		"sample":           c.Timeouts.Sample,
		"poll_interval":    c.Timeouts.PollInterval,
		"commit":           c.Timeouts.Commit,
		"convergence":      c.Timeouts.Convergence,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.%s must be positive, got %s", name, d))
		}
	}

	if c.Timeouts.Settle < 0 {
		errs = append(errs, fmt.Errorf("timeouts.settle cannot be negative, got %s", c.Timeouts.Settle))
	}

	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) TopologyMatrix() (*topology.Matrix, error) {
	return topology.New(c.Topology)
}

func (c *Config) PartitionMatrix() (*topology.Matrix, error) {
	return topology.New(c.Partition)
}

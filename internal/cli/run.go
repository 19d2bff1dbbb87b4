package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/st3v3nmw/splitbrain/internal/cluster"
	"github.com/st3v3nmw/splitbrain/internal/config"
	"github.com/st3v3nmw/splitbrain/internal/logger"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
	"github.com/st3v3nmw/splitbrain/internal/node"
	"github.com/st3v3nmw/splitbrain/internal/oracle"
	"github.com/st3v3nmw/splitbrain/internal/scenario"
	"github.com/st3v3nmw/splitbrain/internal/simnet"
	"github.com/st3v3nmw/splitbrain/internal/sitrep"
	"github.com/st3v3nmw/splitbrain/internal/workload"
	commands "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const defaultScenario = "two-clique"

// RunScenario runs a registered scenario against real nodes or, with
// --simulate, against the in-process network.
func RunScenario(ctx context.Context, cmd *commands.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if cmd.Bool("simulate") {
		cfg.Scenario.Simulate = true
	}

	if cmd.Bool("enable") {
		cfg.Scenario.Enabled = true
	}

	if addr := cmd.String("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}

	key := defaultScenario
	switch cmd.NArg() {
	case 0:
	case 1:
		key = cmd.Args().First()
	default:
		return fmt.Errorf("too many arguments\nUsage: splitbrain run [scenario]")
	}

	sc, err := scenario.Get(key)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, log)
		defer stop()
	}

	verbosity := 1
	if cmd.Bool("verbose") {
		verbosity = 2
	}

	env := NewEnv(cfg, log, verbosity)
	log.Info("starting scenario", zap.String("scenario", sc.Key),
		zap.Bool("simulate", cfg.Scenario.Simulate), logger.RunID(env.Cluster.RunID()))

	fmt.Printf("Running scenario %s: %s\n\n", sc.Key, sc.Name)
	if !sc.Build().Run(ctx, env) {
		return fmt.Errorf("scenario %s failed, node logs are in %s", sc.Key, env.Cluster.WorkingDir())
	}

	return nil
}

// NewEnv wires a scenario environment from cfg.
func NewEnv(cfg *config.Config, log *zap.Logger, verbosity int) *scenario.Env {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		factory node.DriverFactory
		querier oracle.Querier
		clients workload.Factory
		edge    netconfig.EdgeController
	)

	if cfg.Scenario.Simulate {
		net := simnet.New()
		factory = net.Factory()
		querier = net
		clients = net.Client
		edge = net
	} else {
		factory = node.ProcessFactory(node.ProcessConfig{
			Command:         cfg.Command,
			ShutdownTimeout: cfg.Timeouts.ProcessShutdown,
			ExecuteTimeout:  cfg.Timeouts.Sample,
		})
		querier = oracle.NewHTTPQuerier(cfg.Timeouts.Sample)
		clients = workload.HTTPFactory(cfg.Timeouts.Sample, cfg.Timeouts.Commit, cfg.Timeouts.PollInterval)
		edge = netconfig.NopEdgeController{}
	}

	c := cluster.New(
		cluster.WithLogger(log),
		cluster.WithWorkingDir(cfg.WorkingDir),
		cluster.WithGenesisNodes(cfg.GenesisNodes...),
		cluster.WithDriverFactory(factory),
		cluster.WithPollInterval(cfg.Timeouts.PollInterval),
		cluster.WithStartTimeout(cfg.Timeouts.ProcessStart),
	)

	return &scenario.Env{
		Cluster:   c,
		Oracle:    oracle.New(querier, cfg.Timeouts.Sample),
		Reporter:  sitrep.New(querier, os.Stdout, sitrep.WithTimeout(cfg.Timeouts.Sample)),
		Clients:   clients,
		Provider:  netconfig.NewProvider(cfg.Host, cfg.BasePort),
		Edge:      edge,
		Config:    cfg,
		Logger:    log,
		Out:       os.Stdout,
		Verbosity: verbosity,
	}
}

// serveMetrics exposes the prometheus registry on addr until the returned
// function is called.
func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Err(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.Shutdown(ctx)
	}
}

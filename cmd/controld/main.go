// Command controld answers ControlProtocol RPCs: job query/update/signal/
// requeue/suspend, backed by an in-memory job store. It has no scheduler
// of its own; it exists for manually exercising the protocol and for
// integration tests that need a real listener rather than an in-process
// dispatch call.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slurmcore/slurmcore/pkg/config"
	"github.com/slurmcore/slurmcore/pkg/conmgr"
	"github.com/slurmcore/slurmcore/pkg/control"
	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/wire"
	"github.com/slurmcore/slurmcore/pkg/workq"
)

// maxWorkers is comfortably under workq.New's panic threshold and ample
// for a manual-exercising daemon with no real scheduling load.
const maxWorkers = 16

var (
	confFile  string
	verbosity int
	seedJobs  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "controld: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "controld",
	Short:         "ControlProtocol RPC listener backed by an in-memory job store",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&confFile, "conf", "f", "", "path to slurm.conf (overrides $SLURM_CONF and the compiled-in default)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv, ...)")
	rootCmd.Flags().IntVar(&seedJobs, "seed-jobs", 0, "submit this many placeholder pending jobs at startup, for manual exercising")
}

func run(cmd *cobra.Command, args []string) error {
	level := log.InfoLevel
	if verbosity > 0 {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
	logger := log.WithComponent("controld")

	path := config.ResolvePath(confFile)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	runDir := cfg.RunDir
	if runDir == "" {
		runDir = "/run/slurm"
	}
	keyPath := filepath.Join(runDir, config.DefaultAuthKeyFile)
	key, err := config.LoadOrCreateKey(keyPath)
	if err != nil {
		return fmt.Errorf("load auth key: %w", err)
	}

	registry, err := config.BuildAuthRegistry(cfg, key, key)
	if err != nil {
		return fmt.Errorf("build auth registry: %w", err)
	}

	jobs := control.NewMemJobStore()
	for i := 0; i < seedJobs; i++ {
		id := jobs.Submit(0, wire.JobInfo{Name: fmt.Sprintf("seed-%d", i), Partition: "debug"})
		logger.Debug().Uint32("job_id", id).Msg("controld: seeded placeholder job")
	}

	admins := make(map[uint32]bool)
	if cfg.SlurmUser != "" {
		if uid, err := resolveSlurmUserUID(cfg.SlurmUser); err == nil {
			admins[uid] = true
		}
	}

	dispatcher := &control.Dispatcher{
		Auth:     registry,
		Jobs:     jobs,
		Admins:   admins,
		LocalUID: uint32(os.Getuid()),
	}

	port := cfg.SlurmctldPort
	if port == 0 {
		port = config.DefaultSlurmctldPort
	}

	workers := workq.New(maxWorkers)
	mgr, err := conmgr.New(workers)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	events := conmgr.Events{OnMsg: dispatcher.OnMsg(mgr)}
	if _, err := mgr.Listen("tcp", fmt.Sprintf(":%d", port), conmgr.KindRPC, events); err != nil {
		return fmt.Errorf("listen on slurmctld_port %d: %w", port, err)
	}

	go serveMetrics(logger)

	logger.Info().Int("port", port).Msg("controld: running")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return mgr.Run(ctx)
}

func resolveSlurmUserUID(name string) (uint32, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(uid), nil
}

// serveMetrics exposes the same /metrics, /health, /ready, /live surface
// sackd serves, bound to loopback only.
func serveMetrics(logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	addr := "127.0.0.1:9091"
	logger.Info().Str("addr", addr).Msg("controld: metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("controld: metrics server stopped")
	}
}

// Command sackd is the credential kiosk daemon: it owns the SACK UNIX
// socket and mints/verifies credentials on behalf of callers authenticated
// by SO_PEERCRED rather than by anything they present on the wire.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/config"
	"github.com/slurmcore/slurmcore/pkg/conmgr"
	"github.com/slurmcore/slurmcore/pkg/log"
	"github.com/slurmcore/slurmcore/pkg/metrics"
	"github.com/slurmcore/slurmcore/pkg/sack"
	"github.com/slurmcore/slurmcore/pkg/wire"
	"github.com/slurmcore/slurmcore/pkg/workq"
)

var (
	confFile   string
	confServer string
	verbosity  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sackd: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sackd",
	Short:         "SACK credential kiosk daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&confFile, "conf", "f", "", "path to slurm.conf (overrides $SLURM_CONF and the compiled-in default)")
	rootCmd.Flags().StringVar(&confServer, "conf-server", "", "host[:port] of a controller to fetch configuration from, instead of reading a local file")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv, ...)")
}

func run(cmd *cobra.Command, args []string) error {
	level := log.InfoLevel
	if verbosity > 0 {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level})
	logger := log.WithComponent("sackd")

	cfg, fromServer, err := loadConfig()
	if err != nil {
		return err
	}

	runDir := cfg.RunDir
	if runDir == "" {
		runDir = "/run/slurm"
	}

	privilegedUID, err := resolveSlurmUser(cfg.SlurmUser)
	if err != nil {
		return err
	}
	if uint32(os.Getuid()) != privilegedUID {
		logger.Warn().Uint32("running_as", uint32(os.Getuid())).Uint32("slurm_user", privilegedUID).
			Msg("sackd: running as a uid other than SlurmUser")
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
	provider := config.PrimaryProvider(cfg)

	d := sack.New(registry, provider, resolveIdentity)
	if err := d.Listen(runDir, "sack.socket", privilegedUID); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer d.Close()

	go serveMetrics(logger)

	if fromServer {
		logger.Info().Msg("sackd: configuration fetched from controller, cache populated")
		if err := listenForReconfigure(cfg, registry, privilegedUID); err != nil {
			return fmt.Errorf("reconfigure listener: %w", err)
		}
	}

	logger.Info().Str("socket", filepath.Join(runDir, "sack.socket")).Msg("sackd: running")
	return d.Serve()
}

// loadConfig implements the -f / $SLURM_CONF / --conf-server precedence
// from spec §6. It returns whether the config came from --conf-server so
// callers can log accordingly.
func loadConfig() (*config.Config, bool, error) {
	if confServer != "" {
		cfg, err := config.FetchAndCache(func() ([]byte, error) {
			return fetchConfigFromServer(confServer)
		}, config.DefaultCacheDir)
		if err != nil {
			if cached, cacheErr := config.LoadCachedSnapshot(config.DefaultCacheDir); cacheErr == nil {
				return cached, true, nil
			}
			return nil, false, fmt.Errorf("fetch_config from %s: %w", confServer, err)
		}
		return cfg, true, nil
	}

	path := config.ResolvePath(confFile)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, false, nil
}

func resolveSlurmUser(name string) (uint32, error) {
	if name == "" {
		return 0, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("resolve SlurmUser %q: %w", name, err)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("resolve SlurmUser %q: %w", name, err)
	}
	return uint32(uid), nil
}

// listenForReconfigure starts the REQUEST_RECONFIGURE_SACKD listener.
// Only started when this process resolved its own config via
// --conf-server ("registered" mode); a sackd started from a local file
// has nothing to refetch and nowhere to cache a push to. Gated on the
// sender's credential resolving to cfg.SlurmUser, not on anything the
// transport itself vouches for.
func listenForReconfigure(cfg *config.Config, registry *config.Registry, slurmUserUID uint32) error {
	port := cfg.SlurmdPort
	if port == 0 {
		port = config.DefaultSlurmdPort
	}

	workers := workq.New(4)
	mgr, err := conmgr.New(workers)
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	events := conmgr.Events{OnMsg: reconfigureHandler(mgr, registry, slurmUserUID)}
	if _, err := mgr.Listen("tcp", fmt.Sprintf(":%d", port), conmgr.KindRPC, events); err != nil {
		return fmt.Errorf("listen on slurmd_port %d: %w", port, err)
	}

	go func() {
		if err := mgr.Run(context.Background()); err != nil {
			log.WithComponent("sackd").Error().Err(err).Msg("sackd: reconfigure listener stopped")
		}
	}()
	return nil
}

func reconfigureHandler(mgr *conmgr.Manager, registry *config.Registry, slurmUserUID uint32) func(*conmgr.Connection, any, wire.Message) error {
	logger := log.WithComponent("sackd")
	return func(c *conmgr.Connection, _ any, msg wire.Message) error {
		defer mgr.Close(c)

		raw := wire.NewWriter()
		raw.PutUint32(msg.ProviderID)
		encoded := append(raw.Bytes(), msg.CredentialBody...)

		cred, err := registry.Decode(encoded)
		if err != nil || registry.Verify(cred, auth.AnyUID) != nil {
			logger.Error().Str("conn", c.Name()).Msg("sackd: rejecting reconfigure RPC with invalid credential")
			return nil
		}
		if auth.UIDOf(cred) != slurmUserUID {
			logger.Error().Uint32("uid", auth.UIDOf(cred)).Uint32("slurm_user", slurmUserUID).
				Msg("sackd: rejecting reconfigure RPC from non-SlurmUser caller")
			return nil
		}
		if msg.Type != wire.RPCReconfigureSackd {
			logger.Error().Str("conn", c.Name()).Msg("sackd: unexpected message on reconfigure listener")
			return nil
		}

		logger.Info().Msg("sackd: reconfigure requested")
		if err := os.MkdirAll(config.DefaultCacheDir, 0o755); err != nil {
			logger.Error().Err(err).Msg("sackd: failed to create cache dir")
			return nil
		}
		cachePath := filepath.Join(config.DefaultCacheDir, "slurm.conf.cache.yaml")
		if err := os.WriteFile(cachePath, msg.Body, 0o644); err != nil {
			logger.Error().Err(err).Msg("sackd: failed to write configs to cache")
		}
		return nil
	}
}

// serveMetrics exposes the same /metrics, /health, /ready, /live surface
// the rest of this stack's daemons use, bound to loopback only.
func serveMetrics(logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	addr := "127.0.0.1:9092"
	logger.Info().Str("addr", addr).Msg("sackd: metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("sackd: metrics server stopped")
	}
}

// fetchConfigFromServer implements the --conf-server leg of config
// resolution. There is no ControlProtocol RPC for this in the wire
// package (fetch_config is intentionally left outside the RPC enum), so
// this reaches a controller's plain config-serving HTTP endpoint instead.
func fetchConfigFromServer(server string) ([]byte, error) {
	host := server
	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, config.DefaultSlurmctldPort)
	}
	url := fmt.Sprintf("http://%s/slurm.conf", host)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// resolveIdentity attaches the caller's supplementary group ids as the
// extra identity blob a recipient may opt into reading, the way the
// original daemon's sack token carries group membership alongside uid/gid.
func resolveIdentity(uid, gid uint32) []byte {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil
	}
	groups, err := u.GroupIds()
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(groups)*4)
	for _, g := range groups {
		n, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	}
	return out
}

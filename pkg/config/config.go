package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/slurmcore/slurmcore/pkg/auth"
)

// DefaultConfFile is read when neither -f nor $SLURM_CONF is set.
const DefaultConfFile = "/etc/slurm/slurm.conf"

// DefaultCacheDir holds the fetch_config snapshot written during bootstrap
// when --conf-server is used instead of a local config file.
const DefaultCacheDir = "/run/slurm/conf"

// Config is the parsed slurm.conf-equivalent settings this module acts on.
// Fields absent from a given deployment's config file keep their zero
// value; callers apply their own defaults on top.
type Config struct {
	ClusterName    string   `mapstructure:"ClusterName" yaml:"cluster_name"`
	FederationName string   `mapstructure:"FederationName" yaml:"federation_name"`
	FederationPeers []string `mapstructure:"FederationPeers" yaml:"federation_peers"`

	SlurmUser string `mapstructure:"SlurmUser" yaml:"slurm_user"`
	RunDir    string `mapstructure:"RunDir" yaml:"run_dir"`

	SlurmctldHost string `mapstructure:"SlurmctldHost" yaml:"slurmctld_host"`
	SlurmctldPort int     `mapstructure:"SlurmctldPort" yaml:"slurmctld_port"`
	SlurmdPort    int     `mapstructure:"SlurmdPort" yaml:"slurmd_port"`

	AuthAltTypes  []string      `mapstructure:"AuthAltTypes" yaml:"auth_alt_types"`
	CredentialTTL time.Duration `mapstructure:"CredentialTTL" yaml:"credential_ttl"`

	DebugFlags []string `mapstructure:"DebugFlags" yaml:"debug_flags"`
}

// DefaultSlurmctldPort is used when a config omits SlurmctldPort.
const DefaultSlurmctldPort = 6817

// DefaultSlurmdPort is used when a config omits SlurmdPort; sackd's
// reconfiguration listener binds here absent an override.
const DefaultSlurmdPort = 6818

// Load reads configuration from path (slurm.conf's key=value format) and
// decodes it into a Config. path is expected to already be resolved by the
// caller via ResolvePath.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes slurm.conf-style key=value content (one KEY=VALUE pair per
// line, # comments, blank lines ignored) into a Config via viper's "env"
// config type, the closest stock format to slurm.conf's own.
func Parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// ResolvePath implements the -f / $SLURM_CONF / DefaultConfFile precedence
// from spec §6: an explicit -f flag wins, then $SLURM_CONF, then the
// compiled-in default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SLURM_CONF"); env != "" {
		return env
	}
	return DefaultConfFile
}

// FetchAndCache downloads configuration from a controller (the
// --conf-server flow) via fetch, then persists it as YAML under cacheDir so
// a restart without network access can still start from the last-known
// config. Returns the parsed Config.
func FetchAndCache(fetch func() ([]byte, error), cacheDir string) (*Config, error) {
	raw, err := fetch()
	if err != nil {
		return nil, fmt.Errorf("config: fetch_config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: cache dir %s: %w", cacheDir, err)
	}
	snapshot, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: marshal cache snapshot: %w", err)
	}
	cachePath := filepath.Join(cacheDir, "slurm.conf.cache.yaml")
	if err := os.WriteFile(cachePath, snapshot, 0o644); err != nil {
		return nil, fmt.Errorf("config: write cache %s: %w", cachePath, err)
	}
	return cfg, nil
}

// LoadCachedSnapshot reads back a config previously written by
// FetchAndCache, for a restart that cannot reach the controller.
func LoadCachedSnapshot(cacheDir string) (*Config, error) {
	cachePath := filepath.Join(cacheDir, "slurm.conf.cache.yaml")
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, fmt.Errorf("config: read cache %s: %w", cachePath, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal cache %s: %w", cachePath, err)
	}
	return &cfg, nil
}

// NewMACCookieProvider builds a MAC-cookie AuthProvider keyed by key
// (typically loaded with LoadOrCreateKey from a root-owned file alongside
// the config, not part of Config itself) with the default cookie TTL.
func NewMACCookieProvider(key []byte) auth.Provider {
	return auth.NewMACCookieProvider(key, 0)
}

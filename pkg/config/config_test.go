package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmcore/slurmcore/pkg/auth"
)

const sampleConf = `# sample cluster config
ClusterName=demo
FederationName=fed1
RunDir=/run/slurm
CredentialTTL=90s
`

func TestParseDecodesKeyValueConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleConf))
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.ClusterName)
	assert.Equal(t, "fed1", cfg.FederationName)
	assert.Equal(t, "/run/slurm", cfg.RunDir)
	assert.Equal(t, 90*time.Second, cfg.CredentialTTL)
}

func TestResolvePathPrecedence(t *testing.T) {
	t.Setenv("SLURM_CONF", "/etc/from-env.conf")
	assert.Equal(t, "/etc/explicit.conf", ResolvePath("/etc/explicit.conf"))
	assert.Equal(t, "/etc/from-env.conf", ResolvePath(""))

	t.Setenv("SLURM_CONF", "")
	assert.Equal(t, DefaultConfFile, ResolvePath(""))
}

func TestFetchAndCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fetch := func() ([]byte, error) { return []byte(sampleConf), nil }

	cfg, err := FetchAndCache(fetch, dir)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.ClusterName)

	assert.FileExists(t, filepath.Join(dir, "slurm.conf.cache.yaml"))

	reloaded, err := LoadCachedSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.ClusterName, reloaded.ClusterName)
	assert.Equal(t, cfg.CredentialTTL, reloaded.CredentialTTL)
}

func TestWatcherReloadsOnCacheChange(t *testing.T) {
	dir := t.TempDir()
	fetch := func() ([]byte, error) { return []byte(sampleConf), nil }
	_, err := FetchAndCache(fetch, dir)
	require.NoError(t, err)

	reg := auth.NewRegistry()
	reg.Register(auth.NewMACCookieProvider([]byte("initial-key"), time.Minute))

	built := make(chan string, 1)
	w, err := NewWatcher(dir, reg, func(cfg *Config) (auth.Provider, error) {
		built <- cfg.ClusterName
		return auth.NewMACCookieProvider([]byte("rotated-key"), time.Minute), nil
	})
	require.NoError(t, err)
	defer w.Close()

	fetch2 := func() ([]byte, error) {
		return []byte("ClusterName=demo2\nFederationName=fed1\n"), nil
	}
	_, err = FetchAndCache(fetch2, dir)
	require.NoError(t, err)

	select {
	case name := <-built:
		assert.Equal(t, "demo2", name)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe cache update in time")
	}
}

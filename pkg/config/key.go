package config

import (
	"crypto/rand"
	"fmt"
	"os"
)

// DefaultAuthKeyFile is the root-owned shared secret backing the MAC-cookie
// and signed-token AuthProviders, kept alongside the run directory rather
// than in slurm.conf itself (spec.md treats key material as opaque to the
// config format).
const DefaultAuthKeyFile = "auth.key"

// LoadOrCreateKey reads a 32-byte shared secret from path, generating and
// persisting a fresh one (mode 0600) on first run. Mirrors the bootstrap
// pattern sackd uses for its run directory: create once, trust thereafter.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read key %s: %w", path, err)
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("config: generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("config: write key %s: %w", path, err)
	}
	return key, nil
}

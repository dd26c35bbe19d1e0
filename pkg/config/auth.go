package config

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/slurmcore/slurmcore/pkg/auth"
)

// BuildAuthRegistry assembles the Registry a receiver authenticates
// against: the MAC-cookie provider is always registered (the local
// SackDaemon token), and the signed-bearer-token provider additionally
// registers when cfg.AuthAltTypes lists "auth/jwt" or $SLURM_JWT is set,
// matching spec §6's "SLURM_JWT forces the JWT auth provider" rule.
// cookieKey and tokenKey are typically the same root-owned shared secret;
// callers may pass distinct keys if they want independent rotation.
func BuildAuthRegistry(cfg *Config, cookieKey, tokenKey []byte) (*Registry, error) {
	reg := auth.NewRegistry()
	reg.Register(auth.NewMACCookieProvider(cookieKey, cfg.CredentialTTL))

	if wantsJWT(cfg) {
		reg.Register(auth.NewSignedTokenProvider(tokenKey, lookupUIDFromSub, cfg.CredentialTTL))
	}

	return reg, nil
}

// Registry is a re-export so callers that only import pkg/config don't
// also need pkg/auth for the type name.
type Registry = auth.Registry

func wantsJWT(cfg *Config) bool {
	if os.Getenv("SLURM_JWT") != "" {
		return true
	}
	for _, t := range cfg.AuthAltTypes {
		if strings.EqualFold(t, "auth/jwt") {
			return true
		}
	}
	return false
}

// lookupUIDFromSub resolves the "uid:<n>" subject claim this module's own
// SignedTokenProvider mints back to a uid/gid pair, confirming the uid
// resolves to a real local account rather than trusting the claim blind.
func lookupUIDFromSub(sub string) (uid, gid uint32, ok bool) {
	var n uint32
	if _, err := fmt.Sscanf(sub, "uid:%d", &n); err != nil {
		return 0, 0, false
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(n), 10))
	if err != nil {
		return 0, 0, false
	}
	gidN, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return n, uint32(gidN), true
}

// PrimaryProvider picks which ProviderID newly minted credentials use:
// the signed-token provider when $SLURM_JWT forces it, the MAC cookie
// otherwise.
func PrimaryProvider(cfg *Config) auth.ProviderID {
	if os.Getenv("SLURM_JWT") != "" {
		return auth.ProviderSignedToken
	}
	return auth.ProviderMACCookie
}

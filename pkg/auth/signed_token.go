package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserLookup resolves a JWT's "sub" claim to the uid/gid the rest of the
// system operates on. Tokens minted by this provider carry "uid:<n>" as
// their sub. Left to the caller so this package
// never depends on the passwd database / config layer directly.
type UserLookup func(sub string) (uid, gid uint32, ok bool)

// claims is the JWT claim set this provider mints and expects: sub
// ("uid:<n>" as minted here, not a username), iat, exp, and the extra,
// recipient and host fields below. No aud claim is set or checked.
type claims struct {
	jwt.RegisteredClaims
	Host  string `json:"host,omitempty"`
	Extra string `json:"extra,omitempty"`
	Recip uint32 `json:"recip,omitempty"`
}

// SignedTokenProvider mints and verifies HMAC-signed bearer tokens. The
// signing method is HS256, fixed by NewSignedTokenProvider; the same key
// both signs and verifies.
type SignedTokenProvider struct {
	key           []byte
	signingMethod jwt.SigningMethod
	lookup        UserLookup
	ttl           time.Duration
}

// DefaultTokenTTL mirrors the cookie default so the two provider kinds
// are interchangeable from a caller's perspective.
const DefaultTokenTTL = 2 * time.Minute

// NewSignedTokenProvider creates an HMAC-SHA256 signed-token provider.
// lookup resolves a token's username claim to uid/gid at verify time.
func NewSignedTokenProvider(key []byte, lookup UserLookup, ttl time.Duration) *SignedTokenProvider {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &SignedTokenProvider{key: key, signingMethod: jwt.SigningMethodHS256, lookup: lookup, ttl: ttl}
}

func (p *SignedTokenProvider) ID() ProviderID { return ProviderSignedToken }

// Mint signs a token whose sub claim is derived from uid (the caller is
// expected to have already resolved a username elsewhere; uid/gid here
// are trusted inputs, not reverse-looked-up).
func (p *SignedTokenProvider) Mint(payload []byte, uid, gid, recipientUID uint32, extra []byte) (Credential, error) {
	now := time.Now()
	sub := fmt.Sprintf("uid:%d", uid)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Extra: string(extra),
		Recip: recipientUID,
	}

	token := jwt.NewWithClaims(p.signingMethod, c)
	signed, err := token.SignedString(p.key)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: sign token: %w", err)
	}

	return Credential{
		ProviderID: ProviderSignedToken,
		UID:        uid,
		GID:        gid,
		Extra:      extra,
		Expiry:     now.Add(p.ttl),
		Recipient:  recipientUID,
		raw:        []byte(signed),
	}, nil
}

// Verify parses and validates the token's signature and expiry, then
// resolves sub -> uid/gid via lookup and checks recipient binding.
func (p *SignedTokenProvider) Verify(cred Credential, callerUID uint32) error {
	token, err := jwt.ParseWithClaims(string(cred.raw), &claims{}, func(t *jwt.Token) (any, error) {
		return p.key, nil
	}, jwt.WithValidMethods([]string{p.signingMethod.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !token.Valid {
		return ErrBadSignature
	}

	c, ok := token.Claims.(*claims)
	if !ok {
		return ErrBadSignature
	}

	if p.lookup != nil {
		uid, _, ok := p.lookup(c.Subject)
		if !ok || uid != cred.UID {
			return fmt.Errorf("%w: unresolved subject %q", ErrBadSignature, c.Subject)
		}
	}

	if c.Recip != AnyUID && c.Recip != callerUID {
		return ErrWrongRecipient
	}

	return nil
}

// Encode returns the compact JWT string bytes.
func (p *SignedTokenProvider) Encode(cred Credential) []byte {
	return cred.raw
}

// Decode parses (but does not verify) a compact JWT into a Credential,
// reading uid out of the sub claim. Call Verify separately to check the
// signature and expiry.
func (p *SignedTokenProvider) Decode(b []byte) (Credential, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{p.signingMethod.Alg()}))
	c := &claims{}
	_, _, err := parser.ParseUnverified(string(b), c)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	var uid uint32
	var gid uint32
	if p.lookup != nil {
		if u, g, ok := p.lookup(c.Subject); ok {
			uid, gid = u, g
		}
	}

	var expiry time.Time
	if c.ExpiresAt != nil {
		expiry = c.ExpiresAt.Time
	}

	return Credential{
		ProviderID: ProviderSignedToken,
		UID:        uid,
		GID:        gid,
		Extra:      []byte(c.Extra),
		Expiry:     expiry,
		Recipient:  c.Recip,
		raw:        append([]byte(nil), b...),
	}, nil
}

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/slurmcore/slurmcore/pkg/wire"
)

// DefaultMACCookieTTL mirrors the validity window the issuing daemon
// stamps on a freshly minted cookie.
const DefaultMACCookieTTL = 2 * time.Minute

// MACCookieProvider mints and verifies a symmetric-keyed MAC over
// (uid, gid, timestamp, recipient_uid, nonce), the same shape as the
// original daemon's local auth cookie.
type MACCookieProvider struct {
	key []byte
	ttl time.Duration
}

// NewMACCookieProvider creates a provider keyed by key (kept secret,
// typically read from a root-owned key file). ttl defaults to
// DefaultMACCookieTTL when zero.
func NewMACCookieProvider(key []byte, ttl time.Duration) *MACCookieProvider {
	if ttl == 0 {
		ttl = DefaultMACCookieTTL
	}
	return &MACCookieProvider{key: key, ttl: ttl}
}

func (p *MACCookieProvider) ID() ProviderID { return ProviderMACCookie }

// Mint signs (uid, gid, now, recipientUID, nonce, extra) with HMAC-SHA256.
func (p *MACCookieProvider) Mint(payload []byte, uid, gid, recipientUID uint32, extra []byte) (Credential, error) {
	now := time.Now()
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return Credential{}, fmt.Errorf("auth: mac-cookie nonce: %w", err)
	}

	expiry := now.Add(p.ttl)
	mac := p.sign(uid, gid, now.Unix(), expiry.Unix(), recipientUID, nonce, extra)

	raw := wire.NewWriter()
	raw.PutUint32(uid)
	raw.PutUint32(gid)
	raw.PutUint64(uint64(now.Unix()))
	raw.PutUint64(uint64(expiry.Unix()))
	raw.PutUint32(recipientUID)
	raw.PutBytes(nonce)
	raw.PutBytes(extra)
	raw.PutBytes(mac)

	return Credential{
		ProviderID: ProviderMACCookie,
		UID:        uid,
		GID:        gid,
		Extra:      extra,
		Expiry:     expiry,
		Recipient:  recipientUID,
		raw:        raw.Bytes(),
	}, nil
}

func (p *MACCookieProvider) sign(uid, gid uint32, issuedAt, expiresAt int64, recipientUID uint32, nonce, extra []byte) []byte {
	h := hmac.New(sha256.New, p.key)
	w := wire.NewWriter()
	w.PutUint32(uid)
	w.PutUint32(gid)
	w.PutUint64(uint64(issuedAt))
	w.PutUint64(uint64(expiresAt))
	w.PutUint32(recipientUID)
	w.PutBytes(nonce)
	w.PutBytes(extra)
	h.Write(w.Bytes())
	return h.Sum(nil)
}

// Verify recomputes the MAC, checks it with a constant-time comparison,
// confirms the validity window, and checks recipient binding.
func (p *MACCookieProvider) Verify(cred Credential, callerUID uint32) error {
	r := wire.NewReader(cred.raw)
	uid, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	gid, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	issuedAt, err := r.Uint64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	expiresAt, err := r.Uint64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	recipientUID, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	nonce, err := r.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	extra, err := r.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	mac, err := r.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	expected := p.sign(uid, gid, int64(issuedAt), int64(expiresAt), recipientUID, nonce, extra)
	if subtle.ConstantTimeCompare(mac, expected) != 1 {
		return ErrBadSignature
	}

	if time.Now().Unix() > int64(expiresAt) {
		return ErrExpired
	}

	if recipientUID != AnyUID && recipientUID != callerUID {
		return ErrWrongRecipient
	}

	return nil
}

// Encode returns cred's already-assembled raw bytes.
func (p *MACCookieProvider) Encode(cred Credential) []byte {
	return cred.raw
}

// Decode parses the raw MAC-cookie bytes into a Credential. Signature
// and expiry are not checked here; call Verify separately.
func (p *MACCookieProvider) Decode(b []byte) (Credential, error) {
	r := wire.NewReader(b)
	uid, err := r.Uint32()
	if err != nil {
		return Credential{}, err
	}
	gid, err := r.Uint32()
	if err != nil {
		return Credential{}, err
	}
	if _, err := r.Uint64(); err != nil { // issuedAt, not surfaced on Credential
		return Credential{}, err
	}
	expiresAt, err := r.Uint64()
	if err != nil {
		return Credential{}, err
	}
	recipientUID, err := r.Uint32()
	if err != nil {
		return Credential{}, err
	}
	if _, err := r.Bytes(); err != nil { // nonce
		return Credential{}, err
	}
	extra, err := r.Bytes()
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		ProviderID: ProviderMACCookie,
		UID:        uid,
		GID:        gid,
		Extra:      extra,
		Expiry:     time.Unix(int64(expiresAt), 0),
		Recipient:  recipientUID,
		raw:        append([]byte(nil), b...),
	}, nil
}

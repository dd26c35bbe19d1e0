package auth

import (
	"errors"
	"time"
)

// AnyUID disables recipient binding: a Credential minted with this
// recipient is accepted by any verifier regardless of its own uid.
const AnyUID uint32 = 0xFFFFFFFF

var (
	// ErrUnknownProvider is returned when a credential's provider_id has
	// no registered Provider.
	ErrUnknownProvider = errors.New("auth: unknown provider id")
	// ErrExpired is returned by verify when the credential's validity
	// window has closed.
	ErrExpired = errors.New("auth: credential expired")
	// ErrBadSignature is returned by verify on a MAC/signature mismatch.
	ErrBadSignature = errors.New("auth: bad signature")
	// ErrWrongRecipient is returned when a credential's recipient_uid is
	// set and does not match the caller's effective uid (and is not
	// AnyUID).
	ErrWrongRecipient = errors.New("auth: credential not addressed to caller")
	// ErrReconfiguring names a verify/mint attempted during a writer-lock
	// reconfiguration. Registry does not return it: its Verify and Mint
	// wait for the reconfiguration to finish instead.
	ErrReconfiguring = errors.New("auth: provider reconfiguring")
)

// ProviderID identifies a Credential's wire variant. Carried on the wire
// ahead of the provider-specific bytes so a receiver can dispatch to the
// right Provider before attempting to parse anything further.
type ProviderID uint32

const (
	ProviderMACCookie ProviderID = iota + 1
	ProviderSignedToken
)

// Credential is a tagged union over Provider variants. Every concrete
// Provider's mint/decode returns a Credential carrying enough of its own
// identity for uid_of/gid_of/host_of/extra_of to answer without a second
// round trip through the Provider.
type Credential struct {
	ProviderID ProviderID
	UID        uint32
	GID        uint32
	Host       string
	Extra      []byte
	Expiry     time.Time
	Recipient  uint32

	// raw holds the provider-specific signed payload, opaque outside the
	// Provider that produced it; needed by Encode to round-trip exactly.
	raw []byte
}

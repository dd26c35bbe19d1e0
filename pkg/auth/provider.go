package auth

// Provider mints and verifies Credentials for one wire variant. All
// methods must be safe for concurrent use; Registry serializes
// reconfiguration against them with a writer lock.
type Provider interface {
	// ID identifies which ProviderID this Provider answers for.
	ID() ProviderID

	// Mint produces a Credential binding uid/gid to payload, optionally
	// addressed to recipientUID (AnyUID to disable binding) and carrying
	// an opaque extra identity blob a caller may set for recipients that
	// opt in via configuration.
	Mint(payload []byte, uid, gid uint32, recipientUID uint32, extra []byte) (Credential, error)

	// Verify checks cred's signature, validity window, and recipient
	// binding against callerUID. A nil error means the credential is
	// authentic and addressed to the caller.
	Verify(cred Credential, callerUID uint32) error

	// Encode renders cred to the bytes that follow its ProviderID on the
	// wire.
	Encode(cred Credential) []byte

	// Decode parses the provider-specific bytes that follow a
	// ProviderID into a Credential. It does not verify the signature;
	// callers must call Verify separately.
	Decode(b []byte) (Credential, error)
}

// UIDOf returns cred's bound user id.
func UIDOf(cred Credential) uint32 { return cred.UID }

// GIDOf returns cred's bound group id.
func GIDOf(cred Credential) uint32 { return cred.GID }

// HostOf returns cred's originator hostname, or "" if none was set.
func HostOf(cred Credential) string { return cred.Host }

// ExtraOf returns cred's optional extra identity bytes, or nil.
func ExtraOf(cred Credential) []byte { return cred.Extra }

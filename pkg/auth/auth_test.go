package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACCookieMintVerifyRoundTrip(t *testing.T) {
	p := NewMACCookieProvider([]byte("test-shared-secret"), time.Minute)

	cred, err := p.Mint([]byte("payload"), 1000, 1000, AnyUID, []byte("groups=wheel"))
	require.NoError(t, err)

	assert.NoError(t, p.Verify(cred, 9999))

	decoded, err := p.Decode(p.Encode(cred))
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), UIDOf(decoded))
	assert.Equal(t, []byte("groups=wheel"), ExtraOf(decoded))
	assert.NoError(t, p.Verify(decoded, 42))
}

func TestMACCookieRejectsTamperedMAC(t *testing.T) {
	p := NewMACCookieProvider([]byte("key-a"), time.Minute)
	cred, err := p.Mint(nil, 1, 1, AnyUID, nil)
	require.NoError(t, err)

	tampered := append([]byte(nil), p.Encode(cred)...)
	tampered[len(tampered)-1] ^= 0xFF

	decoded, err := p.Decode(tampered)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Verify(decoded, 1), ErrBadSignature)
}

func TestMACCookieRejectsExpired(t *testing.T) {
	p := NewMACCookieProvider([]byte("key-b"), -time.Second)
	cred, err := p.Mint(nil, 1, 1, AnyUID, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Verify(cred, 1), ErrExpired)
}

func TestMACCookieRejectsWrongRecipient(t *testing.T) {
	p := NewMACCookieProvider([]byte("key-c"), time.Minute)
	cred, err := p.Mint(nil, 1, 1, 500, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Verify(cred, 501), ErrWrongRecipient)
	assert.NoError(t, p.Verify(cred, 500))
}

func TestSignedTokenMintVerifyRoundTrip(t *testing.T) {
	lookup := func(sub string) (uint32, uint32, bool) {
		if sub == "uid:2000" {
			return 2000, 2000, true
		}
		return 0, 0, false
	}
	p := NewSignedTokenProvider([]byte("jwt-secret"), lookup, time.Minute)

	cred, err := p.Mint(nil, 2000, 2000, AnyUID, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Verify(cred, 1))

	decoded, err := p.Decode(p.Encode(cred))
	require.NoError(t, err)
	assert.Equal(t, uint32(2000), UIDOf(decoded))
	assert.NoError(t, p.Verify(decoded, 1))
}

func TestSignedTokenRejectsUnresolvedSubject(t *testing.T) {
	lookup := func(sub string) (uint32, uint32, bool) { return 0, 0, false }
	p := NewSignedTokenProvider([]byte("secret"), lookup, time.Minute)

	cred, err := p.Mint(nil, 42, 42, AnyUID, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Verify(cred, 1), ErrBadSignature)
}

func TestRegistryDispatchesByProviderID(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewMACCookieProvider([]byte("k"), time.Minute))

	cred, err := reg.Mint(ProviderMACCookie, nil, 10, 10, AnyUID, nil)
	require.NoError(t, err)
	assert.NoError(t, reg.Verify(cred, 1))

	encoded := reg.Encode(cred)
	decoded, err := reg.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), UIDOf(decoded))
}

func TestRegistryUnknownProviderRejected(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Mint(ProviderSignedToken, nil, 1, 1, AnyUID, nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

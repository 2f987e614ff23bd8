// Package keystore provides the key facility behind the credential store: a
// Provider that creates and returns named symmetric keys, and a Cipher that
// encrypts and decrypts under those keys.
//
// Key material never crosses the package boundary. A Key is an opaque handle;
// the bytes behind it live in a memguard enclave and are only opened for the
// duration of a single cipher operation.
package keystore

import (
	"fmt"

	"github.com/awnumar/memguard"
)

const (
	// IVLen is the initialization vector length produced by the GCM cipher.
	IVLen = 12

	// TagLen is the length of the authentication tag appended to ciphertext.
	TagLen = 16

	// KeyLen is the AES-256 key size used for generated keys.
	KeyLen = 32

	// BlockModeGCM is the only block mode supported by this facility.
	BlockModeGCM = "GCM"

	// PaddingNone is the only padding scheme supported by this facility.
	PaddingNone = "NoPadding"
)

// Purpose is a bit set describing what a key may be used for.
type Purpose int

const (
	PurposeEncrypt Purpose = 1 << iota
	PurposeDecrypt
)

// KeySpec describes the key to generate. The credential store always asks for
// an encrypt+decrypt AES key in GCM mode without padding and without a user
// presence requirement; anything else is rejected by the providers.
type KeySpec struct {
	Purposes         Purpose
	BlockMode        string
	Padding          string
	UserAuthRequired bool
}

// AESGCMSpec returns the key specification used for credential encryption
// keys.
func AESGCMSpec() KeySpec {
	return KeySpec{
		Purposes:         PurposeEncrypt | PurposeDecrypt,
		BlockMode:        BlockModeGCM,
		Padding:          PaddingNone,
		UserAuthRequired: false,
	}
}

func validateSpec(spec KeySpec) error {
	if spec.Purposes&(PurposeEncrypt|PurposeDecrypt) != (PurposeEncrypt | PurposeDecrypt) {
		return fmt.Errorf("key spec must allow both encrypt and decrypt, got %d", spec.Purposes)
	}
	if spec.BlockMode != BlockModeGCM {
		return fmt.Errorf("unsupported block mode: %s", spec.BlockMode)
	}
	if spec.Padding != PaddingNone {
		return fmt.Errorf("unsupported padding: %s", spec.Padding)
	}
	if spec.UserAuthRequired {
		return fmt.Errorf("user presence verification is not supported")
	}
	return nil
}

// Key is an opaque handle to a symmetric key held by a Provider. Handles are
// safe to discard at any time; the provider remains the source of truth.
//
// The interface is sealed: only providers in this package can mint keys,
// which is what keeps key bytes from escaping.
type Key interface {
	// Alias returns the provider alias the key was registered under.
	Alias() string

	// material opens the key bytes for a single cipher operation. The
	// caller must Destroy the returned buffer as soon as it is done.
	material() (*memguard.LockedBuffer, error)
}

// Provider is the key management facility consumed by the credential store.
// Implementations must support a check-then-generate sequence; callers are
// responsible for serializing that sequence (the store holds a provisioning
// lock around it), so providers themselves only need to be safe for
// concurrent reads of existing keys.
type Provider interface {
	// ContainsAlias reports whether a key is registered under alias.
	ContainsAlias(alias string) (bool, error)

	// GetKey returns the key registered under alias. It is an error to ask
	// for an alias that does not exist.
	GetKey(alias string) (Key, error)

	// GenerateKey creates and registers a fresh key under alias according
	// to spec, replacing any existing registration.
	GenerateKey(alias string, spec KeySpec) (Key, error)

	// Close releases any resources held by the provider.
	Close() error
}

// enclaveKey is the one Key implementation: an alias plus a memguard enclave
// holding the raw AES key.
type enclaveKey struct {
	alias   string
	enclave *memguard.Enclave
}

func newEnclaveKey(alias string, raw []byte) *enclaveKey {
	// memguard wipes the source slice when building the enclave.
	return &enclaveKey{alias: alias, enclave: memguard.NewEnclave(raw)}
}

func (k *enclaveKey) Alias() string { return k.alias }

func (k *enclaveKey) material() (*memguard.LockedBuffer, error) {
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open key enclave for alias %s: %w", k.alias, err)
	}
	return buf, nil
}

// Package signing is the boundary to the key-resolution and signature
// verification subsystem. Brokers consume it opaquely: they ask for a
// public key by fingerprint and check a signature against it, nothing
// more.
package signing

import (
	"crypto/ed25519"
	"encoding/hex"
)

// KeyResolver resolves publisher trust keys and verifies signatures.
type KeyResolver interface {
	// LoadPublicKeyByFingerprint returns the key for a fingerprint, or
	// false when the fingerprint is unknown.
	LoadPublicKeyByFingerprint(fingerprint string) (ed25519.PublicKey, bool)

	// Verify reports whether signature is valid for payload under key.
	Verify(payload, signature []byte, key ed25519.PublicKey) bool
}

// StaticKeyring is a KeyResolver over a fixed fingerprint-to-key map,
// typically loaded from configuration at start-up.
type StaticKeyring struct {
	keys map[string]ed25519.PublicKey
}

func NewStaticKeyring(keys map[string]string) (*StaticKeyring, error) {
	ring := &StaticKeyring{keys: make(map[string]ed25519.PublicKey, len(keys))}

	for fingerprint, encoded := range keys {
		raw, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		ring.keys[fingerprint] = ed25519.PublicKey(raw)
	}

	return ring, nil
}

func (k *StaticKeyring) LoadPublicKeyByFingerprint(fingerprint string) (ed25519.PublicKey, bool) {
	key, ok := k.keys[fingerprint]
	return key, ok
}

func (k *StaticKeyring) Verify(payload, signature []byte, key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(key, payload, signature)
}

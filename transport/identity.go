package transport

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"
)

var dh = noise.DH25519

// SecretKey is a peer's long-lived Curve25519 keypair. Its public half is
// the "long-lived public identity" spec.md refers to: the writer asserts
// Claims alongside it, and the reader observes it on every accepted
// connection regardless of what the writer claims.
type SecretKey struct {
	pair noise.DHKey
}

// GenerateSecretKey creates a fresh random keypair.
func GenerateSecretKey() (*SecretKey, error) {
	pair, err := dh.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("transport: generate keypair: %w", err)
	}
	return &SecretKey{pair: pair}, nil
}

// SecretKeyFromBytes reconstructs a keypair from a 32-byte private scalar,
// as loaded from the reader.key configuration (file or env).
func SecretKeyFromBytes(priv []byte) (*SecretKey, error) {
	if len(priv) != 32 {
		return nil, fmt.Errorf("transport: secret key must be 32 bytes, got %d", len(priv))
	}
	public, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("transport: derive public key: %w", err)
	}
	return &SecretKey{pair: noise.DHKey{Private: priv, Public: public}}, nil
}

// Public returns the public identity, suitable for hex-encoding into
// configuration (layer.remote).
func (k *SecretKey) Public() Identity {
	id := make(Identity, len(k.pair.Public))
	copy(id, k.pair.Public)
	return id
}

func (k *SecretKey) dhKey() noise.DHKey { return k.pair }

// Identity is a peer's public key, as observed by the transport or
// asserted via configuration.
type Identity []byte

func (id Identity) String() string { return hex.EncodeToString(id) }

// ParseIdentity decodes a hex-encoded public identity, as found in
// layer.remote.
func ParseIdentity(s string) (Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid identity %q: %w", s, err)
	}
	return Identity(b), nil
}

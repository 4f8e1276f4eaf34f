// Package security supplies the AEAD and key-derivation collaborators the
// frame codec's structural Auxiliary Security Header handoff expects: the
// codec surfaces security-level, key-identifier and ciphertext fields but
// never runs a cipher itself (see frame.AuxiliarySecurityHeader). Consumers
// that need to open or seal a secured frame's payload use this package.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

var (
	ErrInvalidPubKeySize  = errors.New("security: invalid public key size")
	ErrInvalidPrivKeySize = errors.New("security: invalid private key size")
)

// KeyPair is an Ed25519 node identity key pair.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair generates a new Ed25519 key pair for a node identity.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: generate key pair: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// ed25519PubKeyToX25519 converts an Ed25519 public key to its X25519
// equivalent for Diffie-Hellman key agreement.
func ed25519PubKeyToX25519(edPubKey []byte) ([]byte, error) {
	if len(edPubKey) != ed25519.PublicKeySize {
		return nil, ErrInvalidPubKeySize
	}
	point, err := new(edwards25519.Point).SetBytes(edPubKey)
	if err != nil {
		return nil, fmt.Errorf("security: invalid ed25519 public key: %w", err)
	}
	return point.BytesMontgomery(), nil
}

// ed25519PrivKeyToX25519 converts an Ed25519 private key to its X25519
// equivalent per RFC 8032: SHA-512 the seed, then clamp the first 32 bytes.
func ed25519PrivKeyToX25519(edPrivKey ed25519.PrivateKey) ([]byte, error) {
	if len(edPrivKey) != ed25519.PrivateKeySize {
		return nil, ErrInvalidPrivKeySize
	}
	seed := edPrivKey.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return h[:32], nil
}

// NeighborKey derives a 32-byte static shared key for securing frames to a
// given neighbor, from this node's identity key pair and the neighbor's
// Ed25519 public key. The key is suitable for use with NewAEAD.
func NeighborKey(self *KeyPair, neighborPub ed25519.PublicKey) ([32]byte, error) {
	var out [32]byte

	selfX, err := ed25519PrivKeyToX25519(self.PrivateKey)
	if err != nil {
		return out, err
	}
	neighborX, err := ed25519PubKeyToX25519(neighborPub)
	if err != nil {
		return out, err
	}

	shared, err := x25519ScalarMult(selfX, neighborX)
	if err != nil {
		return out, err
	}
	h := sha512.Sum512_256(shared)
	copy(out[:], h[:])
	return out, nil
}

package security

import "golang.org/x/crypto/curve25519"

// x25519ScalarMult performs the X25519 Diffie-Hellman scalar multiplication
// used by NeighborKey to derive a shared secret from two converted keys.
func x25519ScalarMult(priv, pub []byte) ([]byte, error) {
	return curve25519.X25519(priv, pub)
}

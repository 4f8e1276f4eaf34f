package security

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/gowpan/dot15d4/frame"
)

// ErrAuthenticationFailed is returned when Open fails to verify a frame's
// security tag.
var ErrAuthenticationFailed = errors.New("security: authentication failed")

// AEAD seals and opens the payload described by a frame's
// AuxiliarySecurityHeader. It never touches header/addressing bytes: only
// the ciphertext the codec surfaces as frame.Payload().
type AEAD struct {
	aead cipher.AEAD
}

// NewAEAD builds an AEAD from a 32-byte key (as derived by NeighborKey).
func NewAEAD(key [32]byte) (*AEAD, error) {
	a, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("security: new aead: %w", err)
	}
	return &AEAD{aead: a}, nil
}

// nonceFromCounterAndSource builds a 12-byte nonce from the auxiliary
// security header's frame counter and source address, the same inputs the
// header's ASNInNonce/FrameCounter fields exist to carry.
func nonceFromCounterAndSource(counter uint32, source frame.Address) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	src := source.Bytes()
	copy(nonce[:], src)
	nonce[8] = byte(counter)
	nonce[9] = byte(counter >> 8)
	nonce[10] = byte(counter >> 16)
	nonce[11] = byte(counter >> 24)
	return nonce
}

// Seal encrypts and authenticates plaintext, returning ciphertext||tag
// suitable for a frame's payload. aad is typically the frame's header bytes
// preceding the auxiliary security header.
func (a *AEAD) Seal(counter uint32, source frame.Address, aad, plaintext []byte) []byte {
	nonce := nonceFromCounterAndSource(counter, source)
	return a.aead.Seal(nil, nonce[:], plaintext, aad)
}

// Open authenticates and decrypts a sealed payload.
func (a *AEAD) Open(counter uint32, source frame.Address, aad, sealed []byte) ([]byte, error) {
	nonce := nonceFromCounterAndSource(counter, source)
	plaintext, err := a.aead.Open(nil, nonce[:], sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("security: open: %w", errors.Join(err, ErrAuthenticationFailed))
	}
	return plaintext, nil
}

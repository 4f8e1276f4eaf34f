package security

import (
	"bytes"
	"testing"

	"github.com/gowpan/dot15d4/frame"
)

func TestNeighborKey_SymmetricBetweenPeers(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair a: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair b: %v", err)
	}

	kAB, err := NeighborKey(a, b.PublicKey)
	if err != nil {
		t.Fatalf("NeighborKey a->b: %v", err)
	}
	kBA, err := NeighborKey(b, a.PublicKey)
	if err != nil {
		t.Fatalf("NeighborKey b->a: %v", err)
	}

	if kAB != kBA {
		t.Errorf("derived keys differ: %x vs %x", kAB, kBA)
	}
}

func TestAEAD_SealOpenRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	a, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	src := frame.ShortAddress([2]byte{0x01, 0x02})
	aad := []byte{0x41, 0x88, 0x06}
	plaintext := []byte("hello tsch")

	sealed := a.Seal(7, src, aad, plaintext)
	opened, err := a.Open(7, src, aad, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestAEAD_OpenRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	a, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	src := frame.ShortAddress([2]byte{0xaa, 0xbb})
	sealed := a.Seal(1, src, nil, []byte("payload"))
	sealed[0] ^= 0xff

	if _, err := a.Open(1, src, nil, sealed); err == nil {
		t.Error("Open should fail on tampered ciphertext")
	}
}

func TestAEAD_OpenRejectsWrongCounter(t *testing.T) {
	var key [32]byte
	a, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}
	src := frame.ShortAddress([2]byte{0xaa, 0xbb})
	sealed := a.Seal(1, src, nil, []byte("payload"))

	if _, err := a.Open(2, src, nil, sealed); err == nil {
		t.Error("Open should fail with mismatched frame counter")
	}
}

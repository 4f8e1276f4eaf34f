package frame

import "testing"

func TestComputeFCS_KnownCheckValue(t *testing.T) {
	// The CRC-16/X-25 check value for the ASCII string "123456789" is the
	// canonical test vector for this polynomial/init/xorout combination.
	got := ComputeFCS([]byte("123456789"))
	const want = 0x906E
	if got != want {
		t.Errorf("ComputeFCS(%q) = 0x%04x, want 0x%04x", "123456789", got, want)
	}
}

func TestAppendFCS_RoundTripsThroughCheckFCS(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	framed := AppendFCS(append([]byte(nil), data...))
	if len(framed) != len(data)+2 {
		t.Fatalf("len(framed) = %d, want %d", len(framed), len(data)+2)
	}
	if !CheckFCS(framed) {
		t.Error("CheckFCS should accept its own AppendFCS output")
	}
}

func TestCheckFCS_RejectsCorruption(t *testing.T) {
	framed := AppendFCS([]byte{0xde, 0xad, 0xbe, 0xef})
	framed[0] ^= 0xff
	if CheckFCS(framed) {
		t.Error("CheckFCS should reject corrupted data")
	}
}

func TestCheckFCS_RejectsTooShort(t *testing.T) {
	if CheckFCS([]byte{0x01}) {
		t.Error("CheckFCS should reject a buffer shorter than 2 bytes")
	}
}

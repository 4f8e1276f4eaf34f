package frame

import "testing"

func TestAuxiliarySecurityHeader_IndexKeyNoCounterSuppression(t *testing.T) {
	// securityControl: level=5 (0b101), keyIDMode=Index(0b01), frameCounterSuppressed=0, asnInNonce=0.
	secControl := byte(0b101) | byte(0b01)<<3
	buf := []byte{secControl, 0x01, 0x02, 0x03, 0x04, 0x09}

	h, err := ParseAuxiliarySecurityHeader(buf)
	if err != nil {
		t.Fatalf("ParseAuxiliarySecurityHeader: %v", err)
	}

	if h.SecurityLevel() != SecurityLevel(0b101) {
		t.Errorf("SecurityLevel = %v, want 5", h.SecurityLevel())
	}
	if h.KeyIdentifierMode() != KeyIdentifierModeIndex {
		t.Errorf("KeyIdentifierMode = %v, want Index", h.KeyIdentifierMode())
	}
	if h.FrameCounterSuppressed() {
		t.Error("FrameCounterSuppressed should be false")
	}

	counter, ok, err := h.FrameCounter()
	if err != nil || !ok {
		t.Fatalf("FrameCounter() = %d, %v, %v", counter, ok, err)
	}
	if counter != 0x04030201 {
		t.Errorf("FrameCounter = 0x%08x, want 0x04030201", counter)
	}

	if got := h.KeyIdentifier(); len(got) != 1 || got[0] != 0x09 {
		t.Errorf("KeyIdentifier = %v, want [0x09]", got)
	}

	if got := h.Len(); got != 6 {
		t.Errorf("Len() = %d, want 6", got)
	}
}

func TestAuxiliarySecurityHeader_FrameCounterSuppressed(t *testing.T) {
	secControl := byte(1 << 5) // frameCounterSuppressed
	buf := []byte{secControl}

	h, err := ParseAuxiliarySecurityHeader(buf)
	if err != nil {
		t.Fatalf("ParseAuxiliarySecurityHeader: %v", err)
	}
	if !h.FrameCounterSuppressed() {
		t.Error("FrameCounterSuppressed should be true")
	}
	if _, ok, _ := h.FrameCounter(); ok {
		t.Error("FrameCounter should be absent")
	}
	if got := h.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestParseAuxiliarySecurityHeader_RejectsTruncatedKeyIdentifier(t *testing.T) {
	// keyIDMode = LongSource (9 octets) but buffer only has security control + counter.
	secControl := byte(0b11) << 3
	buf := []byte{secControl, 0, 0, 0, 0}
	if _, err := ParseAuxiliarySecurityHeader(buf); err == nil {
		t.Error("expected error for truncated key identifier")
	}
}

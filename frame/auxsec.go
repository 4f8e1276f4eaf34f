package frame

// SecurityLevel is the auxiliary security header's security level field.
type SecurityLevel uint8

// KeyIdentifierMode selects how the key used to protect a frame is identified.
type KeyIdentifierMode uint8

const (
	KeyIdentifierModeImplicit    KeyIdentifierMode = 0b00
	KeyIdentifierModeIndex       KeyIdentifierMode = 0b01
	KeyIdentifierModeShortSource KeyIdentifierMode = 0b10
	KeyIdentifierModeLongSource  KeyIdentifierMode = 0b11
)

func (m KeyIdentifierMode) keyIdentifierLen() int {
	switch m {
	case KeyIdentifierModeImplicit:
		return 0
	case KeyIdentifierModeIndex:
		return 1
	case KeyIdentifierModeShortSource:
		return 5
	case KeyIdentifierModeLongSource:
		return 9
	default:
		return 0
	}
}

// AuxiliarySecurityHeader is a structural (non-cryptographic) reader for the
// header IEEE 802.15.4-2020 prepends to a secured frame's payload. It never
// runs a cipher: callers that need to decrypt the payload hand the
// ciphertext and these fields to an external AEAD (see package security).
type AuxiliarySecurityHeader struct {
	b []byte
}

// ParseAuxiliarySecurityHeader wraps buf, the bytes immediately following
// the addressing fields.
func ParseAuxiliarySecurityHeader(buf []byte) (AuxiliarySecurityHeader, error) {
	if len(buf) < 1 {
		return AuxiliarySecurityHeader{}, ErrMalformed
	}
	h := AuxiliarySecurityHeader{b: buf}
	if len(buf) < h.Len() {
		return AuxiliarySecurityHeader{}, ErrMalformed
	}
	return h, nil
}

func (h AuxiliarySecurityHeader) securityControl() uint8 { return h.b[0] }

func (h AuxiliarySecurityHeader) SecurityLevel() SecurityLevel {
	return SecurityLevel(h.securityControl() & 0b111)
}

func (h AuxiliarySecurityHeader) KeyIdentifierMode() KeyIdentifierMode {
	return KeyIdentifierMode((h.securityControl() >> 3) & 0b11)
}

func (h AuxiliarySecurityHeader) FrameCounterSuppressed() bool {
	return (h.securityControl()>>5)&1 == 1
}

func (h AuxiliarySecurityHeader) ASNInNonce() bool {
	return (h.securityControl()>>6)&1 == 1
}

// FrameCounter returns the frame counter field, if present.
func (h AuxiliarySecurityHeader) FrameCounter() (uint32, bool, error) {
	if h.FrameCounterSuppressed() {
		return 0, false, nil
	}
	v, err := (octets{h.b}).u32(1)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// KeyIdentifier returns the raw key identifier field bytes, if any.
func (h AuxiliarySecurityHeader) KeyIdentifier() []byte {
	off := 1
	if !h.FrameCounterSuppressed() {
		off += 4
	}
	n := h.KeyIdentifierMode().keyIdentifierLen()
	if n == 0 {
		return nil
	}
	if off+n > len(h.b) {
		return nil
	}
	return h.b[off : off+n]
}

// Len returns the total length of the auxiliary security header in octets.
func (h AuxiliarySecurityHeader) Len() int {
	n := 1
	if !h.FrameCounterSuppressed() {
		n += 4
	}
	n += h.KeyIdentifierMode().keyIdentifierLen()
	return n
}

package frame

// FrameType identifies the kind of MAC frame carried by the Frame Control field.
type FrameType uint8

const (
	FrameTypeBeacon          FrameType = 0b000
	FrameTypeData            FrameType = 0b001
	FrameTypeAck             FrameType = 0b010
	FrameTypeMACCommand      FrameType = 0b011
	FrameTypeMultipurpose    FrameType = 0b101
	FrameTypeFragmentOrFrak  FrameType = 0b110
	FrameTypeExtended        FrameType = 0b111
	FrameTypeUnknown         FrameType = 0xff
)

// FrameVersion identifies which revision of the standard a frame follows.
type FrameVersion uint8

const (
	FrameVersion2003 FrameVersion = 0b00
	FrameVersion2006 FrameVersion = 0b01
	FrameVersion2020 FrameVersion = 0b10
	FrameVersionUnknown FrameVersion = 0xff
)

// AddressingMode identifies the presence and width of a source or
// destination address.
type AddressingMode uint8

const (
	AddressingModeAbsent   AddressingMode = 0b00
	AddressingModeReserved AddressingMode = 0b01
	AddressingModeShort    AddressingMode = 0b10
	AddressingModeExtended AddressingMode = 0b11
)

// FrameControl is a reader/writer for the 2-octet Frame Control field. It
// borrows the first two bytes of the slice it wraps.
type FrameControl struct {
	b []byte
}

// NewFrameControl wraps buf, whose first two bytes are the Frame Control
// field, without length checking.
func NewFrameControl(buf []byte) FrameControl { return FrameControl{b: buf} }

// ParseFrameControl validates that buf is at least 2 bytes before wrapping it.
func ParseFrameControl(buf []byte) (FrameControl, error) {
	if len(buf) < 2 {
		return FrameControl{}, ErrMalformed
	}
	return NewFrameControl(buf), nil
}

func (fc FrameControl) raw() uint16 {
	return uint16(fc.b[0]) | uint16(fc.b[1])<<8
}

func (fc FrameControl) setRaw(v uint16) {
	fc.b[0] = byte(v)
	fc.b[1] = byte(v >> 8)
}

func (fc FrameControl) FrameType() FrameType {
	return FrameType(fc.raw() & 0b111)
}

func (fc FrameControl) SecurityEnabled() bool {
	return (fc.raw()>>3)&1 == 1
}

func (fc FrameControl) FramePending() bool {
	return (fc.raw()>>4)&1 == 1
}

func (fc FrameControl) AckRequest() bool {
	return (fc.raw()>>5)&1 == 1
}

func (fc FrameControl) PanIDCompression() bool {
	return (fc.raw()>>6)&1 == 1
}

func (fc FrameControl) SequenceNumberSuppression() bool {
	return (fc.raw()>>8)&1 == 1
}

func (fc FrameControl) InformationElementsPresent() bool {
	return (fc.raw()>>9)&1 == 1
}

func (fc FrameControl) DstAddressingMode() AddressingMode {
	return AddressingMode((fc.raw() >> 10) & 0b11)
}

func (fc FrameControl) SrcAddressingMode() AddressingMode {
	return AddressingMode((fc.raw() >> 14) & 0b11)
}

func (fc FrameControl) FrameVersion() FrameVersion {
	return FrameVersion((fc.raw() >> 12) & 0b11)
}

func (fc FrameControl) SetFrameType(t FrameType) {
	fc.setRaw((fc.raw() &^ 0b111) | uint16(t)&0b111)
}

func (fc FrameControl) SetSecurityEnabled(v bool) {
	fc.setRaw(setBit(fc.raw(), 3, v))
}

func (fc FrameControl) SetFramePending(v bool) {
	fc.setRaw(setBit(fc.raw(), 4, v))
}

func (fc FrameControl) SetAckRequest(v bool) {
	fc.setRaw(setBit(fc.raw(), 5, v))
}

func (fc FrameControl) SetPanIDCompression(v bool) {
	fc.setRaw(setBit(fc.raw(), 6, v))
}

func (fc FrameControl) SetSequenceNumberSuppression(v bool) {
	fc.setRaw(setBit(fc.raw(), 8, v))
}

func (fc FrameControl) SetInformationElementsPresent(v bool) {
	fc.setRaw(setBit(fc.raw(), 9, v))
}

func (fc FrameControl) SetDstAddressingMode(m AddressingMode) {
	fc.setRaw((fc.raw() &^ (0b11 << 10)) | (uint16(m)&0b11)<<10)
}

func (fc FrameControl) SetSrcAddressingMode(m AddressingMode) {
	fc.setRaw((fc.raw() &^ (0b11 << 14)) | (uint16(m)&0b11)<<14)
}

func (fc FrameControl) SetFrameVersion(v FrameVersion) {
	fc.setRaw((fc.raw() &^ (0b11 << 12)) | (uint16(v)&0b11)<<12)
}

func setBit(raw uint16, bit uint, v bool) uint16 {
	if v {
		return raw | (1 << bit)
	}
	return raw &^ (1 << bit)
}

// IsEnhancedBeacon reports whether this Frame Control describes an Enhanced
// Beacon: a Beacon-type frame carried in a 2020 frame.
func (fc FrameControl) IsEnhancedBeacon() bool {
	return fc.FrameType() == FrameTypeBeacon && fc.FrameVersion() == FrameVersion2020
}

// IsEnhancedAck reports whether this Frame Control describes an Enhanced
// Ack: an Ack-type frame of frame version 2020. The IE Present bit is not
// consulted.
func (fc FrameControl) IsEnhancedAck() bool {
	return fc.FrameType() == FrameTypeAck && fc.FrameVersion() == FrameVersion2020
}

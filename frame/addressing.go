package frame

import "fmt"

// Address is an IEEE 802.15.4 address: absent, a 2-byte short address, or
// an 8-byte extended (EUI-64) address.
type Address struct {
	mode AddressingMode
	bits [8]byte
}

// AbsentAddress is the zero-value Address: no address present.
var AbsentAddress = Address{mode: AddressingModeAbsent}

// BroadcastAddress is the short address 0xFFFF.
var BroadcastAddress = ShortAddress([2]byte{0xff, 0xff})

// ShortAddress builds a 2-octet Address.
func ShortAddress(b [2]byte) Address {
	a := Address{mode: AddressingModeShort}
	copy(a.bits[:2], b[:])
	return a
}

// ExtendedAddress builds an 8-octet Address.
func ExtendedAddress(b [8]byte) Address {
	a := Address{mode: AddressingModeExtended}
	copy(a.bits[:8], b[:])
	return a
}

func (a Address) Mode() AddressingMode { return a.mode }

func (a Address) IsAbsent() bool   { return a.mode == AddressingModeAbsent }
func (a Address) IsShort() bool    { return a.mode == AddressingModeShort }
func (a Address) IsExtended() bool { return a.mode == AddressingModeExtended }

// Len returns the number of octets this address occupies on the wire.
func (a Address) Len() int { return a.mode.Size() }

// Bytes returns the address in natural (not wire-reversed) byte order,
// most-significant-octet first.
func (a Address) Bytes() []byte {
	switch a.mode {
	case AddressingModeShort:
		return append([]byte(nil), a.bits[:2]...)
	case AddressingModeExtended:
		return append([]byte(nil), a.bits[:8]...)
	default:
		return nil
	}
}

func (a Address) IsBroadcast() bool {
	return a.mode == AddressingModeShort && a.bits[0] == 0xff && a.bits[1] == 0xff
}

func (a Address) IsUnicast() bool { return !a.IsBroadcast() }

func (a Address) String() string {
	switch a.mode {
	case AddressingModeAbsent:
		return "absent"
	case AddressingModeShort:
		return fmt.Sprintf("%02x:%02x", a.bits[0], a.bits[1])
	case AddressingModeExtended:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
			a.bits[0], a.bits[1], a.bits[2], a.bits[3], a.bits[4], a.bits[5], a.bits[6], a.bits[7])
	default:
		return "unknown"
	}
}

// Size returns the wire length in octets for addresses of this mode.
func (m AddressingMode) Size() int {
	switch m {
	case AddressingModeShort:
		return 2
	case AddressingModeExtended:
		return 8
	default:
		return 0
	}
}

// presence is the result of the standard's address-presence decision table:
// whether the destination/source PAN IDs are present, given the addressing
// modes already known from Frame Control.
type presence struct {
	dstPanIDPresent bool
	srcPanIDPresent bool
	ok              bool
}

// addressPresentFlags reproduces the IEEE 802.15.4-2020 §7.2.2 decision
// table for whether destination/source PAN IDs are elided, split between
// the 2003/2006 behavior and the 2020 behavior (which differ).
func addressPresentFlags(version FrameVersion, dst, src AddressingMode, panIDCompression bool) presence {
	present := func(a, b bool) presence { return presence{dstPanIDPresent: a, srcPanIDPresent: b, ok: true} }
	notPresent := presence{}

	switch version {
	case FrameVersion2003, FrameVersion2006:
		dstAddr := dst == AddressingModeShort || dst == AddressingModeExtended
		srcAddr := src == AddressingModeShort || src == AddressingModeExtended
		switch {
		case dstAddr && srcAddr && !panIDCompression:
			return present(true, true)
		case dstAddr && srcAddr && panIDCompression:
			return present(true, false)
		case dst == AddressingModeAbsent && srcAddr && !panIDCompression:
			return present(false, true)
		case dstAddr && src == AddressingModeAbsent && !panIDCompression:
			return present(true, false)
		case dst == AddressingModeAbsent && src == AddressingModeAbsent && !panIDCompression:
			return present(false, false)
		default:
			return notPresent
		}
	case FrameVersion2020:
		switch {
		case dst == AddressingModeAbsent && src == AddressingModeAbsent && !panIDCompression:
			return present(false, false)
		case dst == AddressingModeAbsent && src == AddressingModeAbsent && panIDCompression:
			return present(true, false)
		case dst != AddressingModeAbsent && src == AddressingModeAbsent && !panIDCompression:
			return present(true, false)
		case dst != AddressingModeAbsent && src == AddressingModeAbsent && panIDCompression:
			return present(false, false)
		case dst == AddressingModeAbsent && src != AddressingModeAbsent && !panIDCompression:
			return present(false, true)
		case dst == AddressingModeAbsent && src != AddressingModeAbsent && panIDCompression:
			return present(false, false)
		case dst == AddressingModeExtended && src == AddressingModeExtended && !panIDCompression:
			return present(true, false)
		case dst == AddressingModeExtended && src == AddressingModeExtended && panIDCompression:
			return present(false, false)
		case dst == AddressingModeShort && src == AddressingModeShort && !panIDCompression:
			return present(true, true)
		case dst == AddressingModeShort && src == AddressingModeExtended && !panIDCompression:
			return present(true, true)
		case dst == AddressingModeExtended && src == AddressingModeShort && !panIDCompression:
			return present(true, true)
		case dst == AddressingModeShort && src == AddressingModeExtended && panIDCompression:
			return present(true, false)
		case dst == AddressingModeExtended && src == AddressingModeShort && panIDCompression:
			return present(true, false)
		case dst == AddressingModeShort && src == AddressingModeShort && panIDCompression:
			return present(true, false)
		default:
			return notPresent
		}
	default:
		return notPresent
	}
}

// AddressingFields is a reader/writer for the destination/source PAN ID and
// address fields that follow the sequence number. It borrows fc to resolve
// the address-presence decision table.
type AddressingFields struct {
	b  []byte
	fc FrameControl
}

// NewAddressingFields wraps buf (the bytes immediately following the
// sequence number field) together with the already-parsed Frame Control.
func NewAddressingFields(buf []byte, fc FrameControl) AddressingFields {
	return AddressingFields{b: buf, fc: fc}
}

func (af AddressingFields) flags() presence {
	return addressPresentFlags(af.fc.FrameVersion(), af.fc.DstAddressingMode(), af.fc.SrcAddressingMode(), af.fc.PanIDCompression())
}

// Len returns the total length in octets of the addressing fields, or -1 if
// the mode combination is not defined by the standard.
func (af AddressingFields) Len() int {
	p := af.flags()
	if !p.ok {
		return -1
	}
	n := 0
	if p.dstPanIDPresent {
		n += 2
	}
	n += af.fc.DstAddressingMode().Size()
	if p.srcPanIDPresent {
		n += 2
	}
	n += af.fc.SrcAddressingMode().Size()
	return n
}

// reversedAddr copies n bytes starting at off and reverses them: addresses are
// stored on the wire in reverse (least-significant octet first).
func reversedAddr(b []byte, off, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b[off+n-1-i]
	}
	return out
}

// DstPanID returns the destination PAN ID if present in this frame.
func (af AddressingFields) DstPanID() (uint16, bool, error) {
	p := af.flags()
	if !p.ok || !p.dstPanIDPresent {
		return 0, false, nil
	}
	v, err := (octets{af.b}).u16(0)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// SrcPanID returns the source PAN ID if present in this frame.
func (af AddressingFields) SrcPanID() (uint16, bool, error) {
	p := af.flags()
	if !p.ok || !p.srcPanIDPresent {
		return 0, false, nil
	}
	off := 0
	if p.dstPanIDPresent {
		off += 2
	}
	off += af.fc.DstAddressingMode().Size()
	v, err := (octets{af.b}).u16(off)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// DstAddress returns the destination address.
func (af AddressingFields) DstAddress() (Address, error) {
	p := af.flags()
	if !p.ok {
		return AbsentAddress, ErrMalformed
	}
	off := 0
	if p.dstPanIDPresent {
		off += 2
	}
	mode := af.fc.DstAddressingMode()
	switch mode {
	case AddressingModeAbsent:
		return AbsentAddress, nil
	case AddressingModeShort:
		o := octets{af.b}
		if err := o.requireLen(off + 2); err != nil {
			return AbsentAddress, err
		}
		raw := reversedAddr(af.b, off, 2)
		return ShortAddress([2]byte{raw[0], raw[1]}), nil
	case AddressingModeExtended:
		o := octets{af.b}
		if err := o.requireLen(off + 8); err != nil {
			return AbsentAddress, err
		}
		raw := reversedAddr(af.b, off, 8)
		var arr [8]byte
		copy(arr[:], raw)
		return ExtendedAddress(arr), nil
	default:
		return AbsentAddress, ErrUnsupported
	}
}

// SrcAddress returns the source address.
func (af AddressingFields) SrcAddress() (Address, error) {
	p := af.flags()
	if !p.ok {
		return AbsentAddress, ErrMalformed
	}
	off := 0
	if p.dstPanIDPresent {
		off += 2
	}
	off += af.fc.DstAddressingMode().Size()
	if p.srcPanIDPresent {
		off += 2
	}
	mode := af.fc.SrcAddressingMode()
	switch mode {
	case AddressingModeAbsent:
		return AbsentAddress, nil
	case AddressingModeShort:
		o := octets{af.b}
		if err := o.requireLen(off + 2); err != nil {
			return AbsentAddress, err
		}
		raw := reversedAddr(af.b, off, 2)
		return ShortAddress([2]byte{raw[0], raw[1]}), nil
	case AddressingModeExtended:
		o := octets{af.b}
		if err := o.requireLen(off + 8); err != nil {
			return AbsentAddress, err
		}
		raw := reversedAddr(af.b, off, 8)
		var arr [8]byte
		copy(arr[:], raw)
		return ExtendedAddress(arr), nil
	default:
		return AbsentAddress, ErrUnsupported
	}
}

// AddressingFieldsRepr is a high-level, settable representation of the
// addressing fields used by builders (the emit side).
type AddressingFieldsRepr struct {
	DstPanID    *uint16
	DstAddress  Address
	SrcPanID    *uint16
	SrcAddress  Address
}

// BufferLen returns the number of octets this representation occupies when
// emitted: each PAN ID and address that is set counts, and the combination
// is not checked against the standard's presence table.
func (r AddressingFieldsRepr) BufferLen() int {
	n := 0
	if r.DstPanID != nil {
		n += 2
	}
	n += r.DstAddress.Len()
	if r.SrcPanID != nil {
		n += 2
	}
	n += r.SrcAddress.Len()
	return n
}

// Emit writes the addressing fields into buf, which must be at least
// BufferLen() octets.
func (r AddressingFieldsRepr) Emit(buf []byte) {
	off := 0
	if r.DstPanID != nil {
		putU16(buf, off, *r.DstPanID)
		off += 2
	}
	if !r.DstAddress.IsAbsent() {
		raw := reversedAddr(r.DstAddress.Bytes(), 0, r.DstAddress.Len())
		copy(buf[off:], raw)
		off += r.DstAddress.Len()
	}
	if r.SrcPanID != nil {
		putU16(buf, off, *r.SrcPanID)
		off += 2
	}
	if !r.SrcAddress.IsAbsent() {
		raw := reversedAddr(r.SrcAddress.Bytes(), 0, r.SrcAddress.Len())
		copy(buf[off:], raw)
	}
}

package frame

import "github.com/gowpan/dot15d4/frame/ie"

// Frame is a parsed, zero-copy view over a complete IEEE 802.15.4-2020 MAC
// frame, including its trailing frame check sequence. Every accessor reads
// directly from the borrowed buffer; nothing is copied until the caller
// asks for an owned slice.
type Frame struct {
	b      []byte
	fc     FrameControl
	seqOff int // offset of sequence number, or -1 if suppressed
	addr   AddressingFields
	addrOff int
	addrLen int
}

// Parse validates buf as a complete MAC frame (Frame Control through FCS)
// and returns a Frame borrowing it. It does not verify the frame check
// sequence; call CheckFCS explicitly.
func Parse(buf []byte) (Frame, error) {
	fc, err := ParseFrameControl(buf)
	if err != nil {
		return Frame{}, err
	}
	switch fc.FrameVersion() {
	case FrameVersion2003, FrameVersion2006, FrameVersion2020:
	default:
		return Frame{}, ErrUnsupported
	}
	off := 2
	seqOff := -1
	if !fc.SequenceNumberSuppression() {
		if len(buf) < off+1 {
			return Frame{}, ErrMalformed
		}
		seqOff = off
		off++
	}
	addr := NewAddressingFields(buf[off:], fc)
	addrLen := addr.Len()
	if addrLen < 0 {
		return Frame{}, ErrMalformed
	}
	if len(buf) < off+addrLen {
		return Frame{}, ErrMalformed
	}
	f := Frame{
		b:       buf,
		fc:      fc,
		seqOff:  seqOff,
		addr:    addr,
		addrOff: off,
		addrLen: addrLen,
	}
	if len(buf) < f.payloadStart() {
		return Frame{}, ErrMalformed
	}
	return f, nil
}

// FrameControl returns the frame's Frame Control field.
func (f Frame) FrameControl() FrameControl { return f.fc }

// SequenceNumber returns the frame's sequence number, if not suppressed.
func (f Frame) SequenceNumber() (uint8, bool) {
	if f.seqOff < 0 {
		return 0, false
	}
	return f.b[f.seqOff], true
}

// Addressing returns the frame's destination/source PAN ID and address
// fields.
func (f Frame) Addressing() AddressingFields { return f.addr }

func (f Frame) auxSecStart() int { return f.addrOff + f.addrLen }

// AuxiliarySecurityHeader returns the frame's auxiliary security header, if
// SecurityEnabled is set on its Frame Control.
func (f Frame) AuxiliarySecurityHeader() (AuxiliarySecurityHeader, bool, error) {
	if !f.fc.SecurityEnabled() {
		return AuxiliarySecurityHeader{}, false, nil
	}
	h, err := ParseAuxiliarySecurityHeader(f.b[f.auxSecStart():])
	if err != nil {
		return AuxiliarySecurityHeader{}, false, err
	}
	return h, true, nil
}

func (f Frame) auxSecLen() int {
	h, present, err := f.AuxiliarySecurityHeader()
	if !present || err != nil {
		return 0
	}
	return h.Len()
}

func (f Frame) ieStart() int { return f.auxSecStart() + f.auxSecLen() }

// HeaderIEs returns an iterator over the frame's Header Information
// Elements, or ok=false if none are present.
func (f Frame) HeaderIEs() (*ie.HeaderIEIterator, bool) {
	if !f.fc.InformationElementsPresent() {
		return nil, false
	}
	return ie.NewHeaderIEIterator(f.b[f.ieStart():]), true
}

// headerIEsLen scans the Header IE list (if present) to find its total
// length, needed to locate the Payload IE list and payload.
func (f Frame) headerIEsLen() int {
	it, ok := f.HeaderIEs()
	if !ok {
		return 0
	}
	n := 0
	for {
		h, ok := it.Next()
		if !ok {
			break
		}
		n += 2 + h.Length()
		if h.RawID().IsTermination() {
			break
		}
	}
	return n
}

// payloadIEsPresent reports whether a Header Termination 1 IE (0x7e) was
// seen, which indicates Payload IEs follow. Header Termination 2 (0x7f)
// closes the header IE list when no Payload IEs are present.
func (f Frame) payloadIEsPresent() bool {
	it, ok := f.HeaderIEs()
	if !ok {
		return false
	}
	for {
		h, ok := it.Next()
		if !ok {
			return false
		}
		if h.RawID() == ie.HeaderElementIDHeaderTermination1 {
			return true
		}
		if h.RawID() == ie.HeaderElementIDHeaderTermination2 {
			return false
		}
	}
}

func (f Frame) payloadIEsStart() int { return f.ieStart() + f.headerIEsLen() }

func (f Frame) payloadIEsLen() int {
	if !f.payloadIEsPresent() {
		return 0
	}
	it := ie.NewPayloadIEIterator(f.b[f.payloadIEsStart():])
	n := 0
	for {
		p, ok := it.Next()
		if !ok {
			break
		}
		n += 2 + p.Length()
		if p.RawGroupID() == ie.PayloadGroupIDPayloadTermination {
			break
		}
	}
	return n
}

// PayloadIEs returns an iterator over the frame's Payload Information
// Elements, or ok=false if none are present.
func (f Frame) PayloadIEs() (*ie.PayloadIEIterator, bool) {
	if !f.payloadIEsPresent() {
		return nil, false
	}
	return ie.NewPayloadIEIterator(f.b[f.payloadIEsStart():]), true
}

func (f Frame) payloadStart() int { return f.payloadIEsStart() + f.payloadIEsLen() }

// Payload returns the MAC payload octets, excluding the trailing 2-octet
// frame check sequence.
func (f Frame) Payload() []byte {
	end := len(f.b) - 2
	start := f.payloadStart()
	if start > end {
		return nil
	}
	return f.b[start:end]
}

// CheckFCS reports whether the frame's trailing frame check sequence
// matches the bytes preceding it.
func (f Frame) CheckFCS() bool { return CheckFCS(f.b) }

// Bytes returns the complete borrowed frame buffer, FCS included.
func (f Frame) Bytes() []byte { return f.b }

// Builder constructs a frame for emission. Unlike Frame, it holds an
// in-memory representation rather than a borrowed buffer; Emit writes the
// final wire form (Frame Control through FCS) into a caller-supplied buffer.
type Builder struct {
	FrameType                 FrameType
	SecurityEnabled           bool
	FramePending              bool
	AckRequest                bool
	PanIDCompression          bool
	SequenceNumberSuppression bool
	InformationElementsPresent bool
	FrameVersion              FrameVersion
	SequenceNumber            uint8
	Addressing                AddressingFieldsRepr
	// HeaderIEs and PayloadIEs are emitted, in this fixed order, between
	// the addressing fields and Payload: Header IEs (terminated by Header
	// Termination 1 or 2), then Payload IEs (terminated by Payload
	// Termination) if any are present. InformationElementsPresent is set
	// automatically whenever either list is non-empty.
	HeaderIEs  ie.HeaderIEBuilder
	PayloadIEs ie.PayloadIEBuilder
	Payload    []byte
}

// payloadIEsFollow reports whether the Payload IE section will be emitted.
func (b Builder) payloadIEsFollow() bool { return len(b.PayloadIEs.IEs) > 0 }

// hasIEs reports whether a Header IE section (at least the termination IE)
// must be emitted.
func (b Builder) hasIEs() bool { return b.payloadIEsFollow() || len(b.HeaderIEs.IEs) > 0 }

// BufferLen returns the number of octets Emit will write, FCS included.
func (b Builder) BufferLen() int {
	n := 2
	if !b.SequenceNumberSuppression {
		n++
	}
	n += b.Addressing.BufferLen()
	payloadIEsFollow := b.payloadIEsFollow()
	if b.hasIEs() {
		n += b.HeaderIEs.BufferLen(payloadIEsFollow)
	}
	if payloadIEsFollow {
		n += b.PayloadIEs.BufferLen()
	}
	n += len(b.Payload)
	n += 2
	return n
}

// Emit writes the complete wire form of the frame (Frame Control through
// FCS, computed over everything preceding it) into buf, which must be at
// least BufferLen() octets.
func (b Builder) Emit(buf []byte) {
	payloadIEsFollow := b.payloadIEsFollow()
	hasIEs := b.hasIEs()

	fc := NewFrameControl(buf[0:2])
	fc.SetFrameType(b.FrameType)
	fc.SetSecurityEnabled(b.SecurityEnabled)
	fc.SetFramePending(b.FramePending)
	fc.SetAckRequest(b.AckRequest)
	fc.SetPanIDCompression(b.PanIDCompression)
	fc.SetSequenceNumberSuppression(b.SequenceNumberSuppression)
	fc.SetInformationElementsPresent(b.InformationElementsPresent || hasIEs)
	fc.SetDstAddressingMode(b.Addressing.DstAddress.Mode())
	fc.SetSrcAddressingMode(b.Addressing.SrcAddress.Mode())
	fc.SetFrameVersion(b.FrameVersion)

	off := 2
	if !b.SequenceNumberSuppression {
		buf[off] = b.SequenceNumber
		off++
	}
	b.Addressing.Emit(buf[off:])
	off += b.Addressing.BufferLen()

	if hasIEs {
		b.HeaderIEs.Emit(buf[off:], payloadIEsFollow)
		off += b.HeaderIEs.BufferLen(payloadIEsFollow)
	}
	if payloadIEsFollow {
		b.PayloadIEs.Emit(buf[off:])
		off += b.PayloadIEs.BufferLen()
	}

	copy(buf[off:], b.Payload)
	off += len(b.Payload)

	fcs := ComputeFCS(buf[:off])
	buf[off] = byte(fcs)
	buf[off+1] = byte(fcs >> 8)
}

package ie

import "encoding/binary"

// PayloadGroupID identifies which payload sub-protocol a Payload Information
// Element carries.
type PayloadGroupID uint8

const (
	PayloadGroupIDESDU               PayloadGroupID = 0x0
	PayloadGroupIDMLME               PayloadGroupID = 0x1
	PayloadGroupIDVendorSpecific     PayloadGroupID = 0x2
	PayloadGroupIDPayloadTermination PayloadGroupID = 0xf
	PayloadGroupIDUnknown            PayloadGroupID = 0xff
)

// PayloadIE is a reader for one Payload Information Element: an 11-bit
// length and a 4-bit group ID (per spec.md; this differs from the group's
// own 10-bit/3-bit layout used elsewhere in the 2020 IE family).
type PayloadIE struct {
	b []byte
}

// ParsePayloadIE validates and wraps data as a single Payload IE.
func ParsePayloadIE(data []byte) (PayloadIE, error) {
	if len(data) < 2 {
		return PayloadIE{}, ErrMalformed
	}
	p := PayloadIE{b: data}
	total := 2 + p.Length()
	if len(data) < total {
		return PayloadIE{}, ErrMalformed
	}
	return PayloadIE{b: data[:total]}, nil
}

func (p PayloadIE) descriptor() uint16 { return binary.LittleEndian.Uint16(p.b[0:2]) }

// Length returns the content length in octets (11 bits).
func (p PayloadIE) Length() int { return int(p.descriptor() & 0b0111_1111_1111) }

// GroupID returns the recognized payload group ID, or PayloadGroupIDUnknown
// for any group this library does not interpret further. Unlike the
// reference implementation, an unrecognized or non-MLME group never panics:
// its content is simply left opaque.
func (p PayloadIE) GroupID() PayloadGroupID {
	switch id := p.RawGroupID(); id {
	case PayloadGroupIDESDU, PayloadGroupIDMLME, PayloadGroupIDVendorSpecific, PayloadGroupIDPayloadTermination:
		return id
	default:
		return PayloadGroupIDUnknown
	}
}

// RawGroupID returns the group ID nibble as transmitted, unfiltered.
func (p PayloadIE) RawGroupID() PayloadGroupID {
	return PayloadGroupID((p.descriptor() >> 11) & 0b1111)
}

// Content returns the content octets following the 2-octet descriptor.
func (p PayloadIE) Content() []byte { return p.b[2:] }

// NestedIEs returns an iterator over the nested MLME sub-IEs carried in this
// Payload IE's content. Callers should check GroupID() == PayloadGroupIDMLME
// first; calling it on a non-MLME group simply iterates whatever bytes are
// there; it is the caller's responsibility to gate on GroupID.
func (p PayloadIE) NestedIEs() *NestedIEIterator {
	return NewNestedIEIterator(p.Content())
}

// PayloadIEIterator iterates the Payload IEs of a frame, stopping at the
// Payload Termination group ID or at end of input.
type PayloadIEIterator struct {
	data       []byte
	offset     int
	terminated bool
}

// NewPayloadIEIterator builds an iterator over data, the Payload IE portion
// of a frame (immediately following the Header IEs, if any).
func NewPayloadIEIterator(data []byte) *PayloadIEIterator {
	return &PayloadIEIterator{data: data}
}

// Next returns the next Payload IE. ok is false once Payload Termination has
// been consumed, input is exhausted, or the remaining bytes are malformed.
func (it *PayloadIEIterator) Next() (PayloadIE, bool) {
	if it.terminated || it.offset >= len(it.data) {
		return PayloadIE{}, false
	}
	p, err := ParsePayloadIE(it.data[it.offset:])
	if err != nil {
		it.terminated = true
		return PayloadIE{}, false
	}
	it.offset += len(p.b)
	if p.RawGroupID() == PayloadGroupIDPayloadTermination || it.offset >= len(it.data) {
		it.terminated = true
	}
	return p, true
}

// PayloadIERepr is one Payload IE to emit: a group ID and its already-
// encoded content (for an MLME group IE, typically the concatenation of one
// or more nested IEs' Emit output).
type PayloadIERepr struct {
	GroupID PayloadGroupID
	Content []byte
}

// PayloadIEBuilder accumulates a fixed-order list of Payload IEs and emits
// them back to back, followed by the Payload Termination IE.
type PayloadIEBuilder struct {
	IEs []PayloadIERepr
}

// BufferLen returns the number of octets Emit will write, the Payload
// Termination IE included.
func (b PayloadIEBuilder) BufferLen() int {
	n := 0
	for _, p := range b.IEs {
		n += 2 + len(p.Content)
	}
	return n + 2
}

// Emit writes the Payload IE list into buf, which must be at least
// BufferLen() octets, terminated by Payload Termination.
func (b PayloadIEBuilder) Emit(buf []byte) {
	off := 0
	for _, p := range b.IEs {
		descriptor := uint16(len(p.Content)&0b0111_1111_1111) | uint16(p.GroupID)<<11 | 1<<15
		binary.LittleEndian.PutUint16(buf[off:], descriptor)
		copy(buf[off+2:], p.Content)
		off += 2 + len(p.Content)
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(PayloadGroupIDPayloadTermination)<<11|1<<15)
}

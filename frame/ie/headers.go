package ie

import (
	"encoding/binary"
	"time"
)

// HeaderElementID identifies the content of a Header Information Element.
type HeaderElementID uint8

const (
	HeaderElementIDVendorSpecific        HeaderElementID = 0x00
	HeaderElementIDCSLIE                 HeaderElementID = 0x1a
	HeaderElementIDRITIE                 HeaderElementID = 0x1b
	HeaderElementIDTimeCorrection        HeaderElementID = 0x1e
	HeaderElementIDHeaderTermination1    HeaderElementID = 0x7e
	HeaderElementIDHeaderTermination2    HeaderElementID = 0x7f
	HeaderElementIDUnknown               HeaderElementID = 0xff
)

// IsTermination reports whether id is one of the two Header Termination IDs
// that close out the Header IE list.
func (id HeaderElementID) IsTermination() bool {
	return id == HeaderElementIDHeaderTermination1 || id == HeaderElementIDHeaderTermination2
}

// HeaderIE is a reader for one Header Information Element: a 7-bit length,
// an 8-bit element ID, and that many content octets.
type HeaderIE struct {
	b []byte
}

// ParseHeaderIE validates and wraps data as a single Header IE.
func ParseHeaderIE(data []byte) (HeaderIE, error) {
	if len(data) < 2 {
		return HeaderIE{}, ErrMalformed
	}
	h := HeaderIE{b: data}
	total := 2 + h.Length()
	if len(data) < total {
		return HeaderIE{}, ErrMalformed
	}
	return HeaderIE{b: data[:total]}, nil
}

func (h HeaderIE) descriptor() uint16 { return binary.LittleEndian.Uint16(h.b[0:2]) }

// Length returns the content length in octets (7 bits).
func (h HeaderIE) Length() int { return int(h.descriptor() & 0b0111_1111) }

// ID returns the recognized element ID, or HeaderElementIDUnknown for any ID
// this library does not give a typed view of. The raw ID is still available
// via RawID for callers that want to forward opaque content untouched.
func (h HeaderIE) ID() HeaderElementID {
	switch id := h.RawID(); id {
	case HeaderElementIDVendorSpecific, HeaderElementIDCSLIE, HeaderElementIDRITIE,
		HeaderElementIDTimeCorrection, HeaderElementIDHeaderTermination1, HeaderElementIDHeaderTermination2:
		return id
	default:
		return HeaderElementIDUnknown
	}
}

// RawID returns the element ID byte as transmitted, unfiltered.
func (h HeaderIE) RawID() HeaderElementID {
	return HeaderElementID((h.descriptor() >> 7) & 0b1111_1111)
}

// Content returns the content octets following the 2-octet descriptor.
func (h HeaderIE) Content() []byte { return h.b[2:] }

// HeaderIEIterator iterates the Header IEs of a frame's header, stopping at
// either Header Termination ID (0x7e, 0x7f) or at end of input. Unlike the
// reference implementation this never panics on an unrecognized ID: unknown
// IEs are surfaced with ID() == HeaderElementIDUnknown and their RawID() and
// Content() left intact for the caller to forward or ignore.
type HeaderIEIterator struct {
	data       []byte
	offset     int
	terminated bool
}

// NewHeaderIEIterator builds an iterator over data, the Header IE portion of
// a frame (immediately following the addressing fields / aux security header).
func NewHeaderIEIterator(data []byte) *HeaderIEIterator {
	return &HeaderIEIterator{data: data}
}

// Next returns the next Header IE. ok is false once a termination IE has
// been consumed, input is exhausted, or the remaining bytes are malformed.
func (it *HeaderIEIterator) Next() (HeaderIE, bool) {
	if it.terminated || it.offset >= len(it.data) {
		return HeaderIE{}, false
	}
	h, err := ParseHeaderIE(it.data[it.offset:])
	if err != nil {
		it.terminated = true
		return HeaderIE{}, false
	}
	it.offset += len(h.b)
	if h.RawID().IsTermination() || it.offset >= len(it.data) {
		it.terminated = true
	}
	return h, true
}

// TerminatorConsumed reports whether iteration stopped because a Header
// Termination IE was seen (as opposed to running out of bytes).
func (it *HeaderIEIterator) TerminatorConsumed(h HeaderIE, ok bool) bool {
	return ok && h.RawID().IsTermination()
}

// TimeCorrectionRepr is a high-level, emittable Time Correction Header IE:
// a signed correction value and a negative-acknowledgment flag, packed into
// a 16-bit content field (bit 15 = Nack, bits 0-14 = two's complement
// correction in microseconds).
type TimeCorrectionRepr struct {
	Correction time.Duration
	Nack       bool
}

// ParseTimeCorrection parses the content of a Time Correction Header IE.
func ParseTimeCorrection(content []byte) (TimeCorrectionRepr, error) {
	if len(content) < 2 {
		return TimeCorrectionRepr{}, ErrMalformed
	}
	word := binary.LittleEndian.Uint16(content)
	magnitude := int16(word<<1) >> 1 // sign-extend the 15-bit field
	return TimeCorrectionRepr{
		Correction: time.Duration(magnitude) * time.Microsecond,
		Nack:       word&0x8000 != 0,
	}, nil
}

func (t TimeCorrectionRepr) len() int { return 2 }

func (t TimeCorrectionRepr) emit(buf []byte) {
	word := uint16(int16(t.Correction/time.Microsecond)) & 0x7fff
	if t.Nack {
		word |= 0x8000
	}
	binary.LittleEndian.PutUint16(buf, word)
}

// HeaderIERepr is one Header IE to emit, either a typed representation
// (currently Time Correction) or raw passthrough content under an explicit
// element ID. Exactly one of TimeCorrection or Content should be set.
type HeaderIERepr struct {
	ID             HeaderElementID
	TimeCorrection *TimeCorrectionRepr
	Content        []byte
}

func (r HeaderIERepr) len() int {
	if r.TimeCorrection != nil {
		return r.TimeCorrection.len()
	}
	return len(r.Content)
}

func (r HeaderIERepr) emit(buf []byte) {
	if r.TimeCorrection != nil {
		r.TimeCorrection.emit(buf)
		return
	}
	copy(buf, r.Content)
}

// HeaderIEBuilder accumulates a fixed-order list of Header IEs and emits
// them back to back, followed by the correct Header Termination IE: 0x7e
// (payload IEs follow) or 0x7f (no payload IEs), matching
// HeaderInformationElementRepr's buffer_len/emit pair in the reference
// implementation.
type HeaderIEBuilder struct {
	IEs []HeaderIERepr
}

// BufferLen returns the number of octets Emit will write, the terminating
// IE included. payloadIEsFollow selects which termination ID is appended.
func (b HeaderIEBuilder) BufferLen(payloadIEsFollow bool) int {
	n := 0
	for _, h := range b.IEs {
		n += 2 + h.len()
	}
	return n + 2
}

// Emit writes the Header IE list into buf, which must be at least
// BufferLen(payloadIEsFollow) octets, terminated by Header Termination 1 or
// 2 depending on payloadIEsFollow.
func (b HeaderIEBuilder) Emit(buf []byte, payloadIEsFollow bool) {
	off := 0
	for _, h := range b.IEs {
		n := h.len()
		descriptor := uint16(n&0b0111_1111) | uint16(h.ID)<<7
		binary.LittleEndian.PutUint16(buf[off:], descriptor)
		h.emit(buf[off+2 : off+2+n])
		off += 2 + n
	}
	term := HeaderElementIDHeaderTermination2
	if payloadIEsFollow {
		term = HeaderElementIDHeaderTermination1
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(term)<<7)
}

// Package ie implements IEEE 802.15.4-2020 Header and Payload Information
// Elements, including the nested MLME sub-IEs used for TSCH (synchronization,
// timeslot template, slotframe-and-link, channel hopping).
package ie

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrMalformed indicates truncated or self-inconsistent Information Element bytes.
var ErrMalformed = errors.New("ie: malformed")

// NestedSubIDShort identifies a short-form nested MLME sub-IE.
type NestedSubIDShort uint8

const (
	NestedSubIDShortTschSynchronization  NestedSubIDShort = 0x1a
	NestedSubIDShortTschSlotframeAndLink NestedSubIDShort = 0x1b
	NestedSubIDShortTschTimeslot         NestedSubIDShort = 0x1c
	NestedSubIDShortHoppingTiming        NestedSubIDShort = 0x1d
	NestedSubIDShortEnhancedBeaconFilter NestedSubIDShort = 0x1e
	NestedSubIDShortMacMetrics           NestedSubIDShort = 0x1f
	NestedSubIDShortUnknown              NestedSubIDShort = 0xff
)

// NestedSubIDLong identifies a long-form nested MLME sub-IE.
type NestedSubIDLong uint8

const (
	NestedSubIDLongVendorSpecificNested NestedSubIDLong = 0x08
	NestedSubIDLongChannelHopping       NestedSubIDLong = 0x09
	NestedSubIDLongUnknown              NestedSubIDLong = 0xff
)

// NestedIE is a reader/writer for one nested MLME sub-IE. It borrows its
// backing slice, which starts at the 1- or 2-octet descriptor.
type NestedIE struct {
	b []byte
}

// ParseNestedIE validates and wraps data as a single nested IE (descriptor
// plus content, already sliced to its own length by the caller/iterator).
func ParseNestedIE(data []byte) (NestedIE, error) {
	n := NestedIE{b: data}
	if len(data) < 2 {
		return NestedIE{}, ErrMalformed
	}
	if len(data) < n.Length()+2 {
		return NestedIE{}, ErrMalformed
	}
	return n, nil
}

func (n NestedIE) descriptor() uint16 {
	return binary.LittleEndian.Uint16(n.b[0:2])
}

// IsLong reports whether this is a long-form nested IE (bit 15 set).
func (n NestedIE) IsLong() bool { return (n.descriptor()>>15)&1 == 1 }

// IsShort reports whether this is a short-form nested IE.
func (n NestedIE) IsShort() bool { return !n.IsLong() }

// Length returns the content length in octets (7 bits short form, 10 bits long form).
func (n NestedIE) Length() int {
	if n.IsLong() {
		return int(n.descriptor() & 0b11_1111_1111)
	}
	return int(n.descriptor() & 0b111_1111)
}

// ShortSubID returns the short-form sub-ID. Only meaningful when IsShort().
func (n NestedIE) ShortSubID() NestedSubIDShort {
	id := NestedSubIDShort((n.descriptor() >> 8) & 0b11_1111)
	switch id {
	case NestedSubIDShortTschSynchronization, NestedSubIDShortTschSlotframeAndLink,
		NestedSubIDShortTschTimeslot, NestedSubIDShortHoppingTiming,
		NestedSubIDShortEnhancedBeaconFilter, NestedSubIDShortMacMetrics:
		return id
	default:
		return NestedSubIDShortUnknown
	}
}

// LongSubID returns the long-form sub-ID. Only meaningful when IsLong().
func (n NestedIE) LongSubID() NestedSubIDLong {
	id := NestedSubIDLong((n.descriptor() >> 11) & 0b1111)
	switch id {
	case NestedSubIDLongVendorSpecificNested, NestedSubIDLongChannelHopping:
		return id
	default:
		return NestedSubIDLongUnknown
	}
}

// Content returns the content bytes following the 2-octet descriptor.
func (n NestedIE) Content() []byte {
	return n.b[2 : 2+n.Length()]
}

// NestedIEIterator iterates the nested sub-IEs inside an MLME Payload IE's
// content. It runs to exhaustion: there is no explicit terminator sub-ID.
type NestedIEIterator struct {
	data       []byte
	offset     int
	terminated bool
}

// NewNestedIEIterator builds an iterator over data, the content of an MLME
// Payload IE.
func NewNestedIEIterator(data []byte) *NestedIEIterator {
	return &NestedIEIterator{data: data}
}

// Next returns the next nested IE, or ok=false at exhaustion or on malformed input.
func (it *NestedIEIterator) Next() (NestedIE, bool) {
	if it.terminated {
		return NestedIE{}, false
	}
	nested, err := ParseNestedIE(it.data[it.offset:])
	if err != nil {
		it.terminated = true
		return NestedIE{}, false
	}
	total := nested.Length() + 2
	nested.b = it.data[it.offset : it.offset+total]
	it.offset += total
	if it.offset >= len(it.data) {
		it.terminated = true
	}
	return nested, true
}

// TschSynchronization is the TSCH Synchronization nested IE: a 40-bit ASN
// followed by an 8-bit join metric.
type TschSynchronization struct {
	ASN        uint64
	JoinMetric uint8
}

// ParseTschSynchronization parses the content of a TSCH Synchronization nested IE.
func ParseTschSynchronization(content []byte) (TschSynchronization, error) {
	if len(content) < 6 {
		return TschSynchronization{}, ErrMalformed
	}
	asn := uint64(content[0]) | uint64(content[1])<<8 | uint64(content[2])<<16 |
		uint64(content[3])<<24 | uint64(content[4])<<32
	return TschSynchronization{ASN: asn, JoinMetric: content[5]}, nil
}

// Emit writes the TSCH Synchronization content (6 octets) into buf.
func (s TschSynchronization) Emit(buf []byte) {
	buf[0] = byte(s.ASN)
	buf[1] = byte(s.ASN >> 8)
	buf[2] = byte(s.ASN >> 16)
	buf[3] = byte(s.ASN >> 24)
	buf[4] = byte(s.ASN >> 32)
	buf[5] = s.JoinMetric
}

// TschTimeslotDefaultID is the timeslot ID that selects the built-in default
// timing template rather than an explicit one read from the wire.
const TschTimeslotDefaultID = 0

// TschTimeslotDefaultGuardTime is the default guard time used to derive the
// default timing template (2200 microseconds, IEEE 802.15.4-2020 Table 8-95).
const TschTimeslotDefaultGuardTime = 2200 * time.Microsecond

// TschTimeslotTimings holds the named offsets of a TSCH timeslot template,
// all relative to the start of the slot.
type TschTimeslotTimings struct {
	ID              uint8
	CCAOffset       time.Duration
	CCA             time.Duration
	TxOffset        time.Duration
	RxOffset        time.Duration
	RxAckDelay      time.Duration
	TxAckDelay      time.Duration
	RxWait          time.Duration
	AckWait         time.Duration
	RxTx            time.Duration
	MaxAck          time.Duration
	MaxTx           time.Duration
	TimeSlotLength  time.Duration
}

// NewTschTimeslotTimings builds the standard's default timing template for
// the given id and guard time (IEEE 802.15.4-2020 §6.5.4.1, Table 8-95).
func NewTschTimeslotTimings(id uint8, guardTime time.Duration) TschTimeslotTimings {
	return TschTimeslotTimings{
		ID:             id,
		CCAOffset:      1800 * time.Microsecond,
		CCA:            128 * time.Microsecond,
		TxOffset:       2120 * time.Microsecond,
		RxOffset:       2120*time.Microsecond - guardTime/2,
		RxAckDelay:     800 * time.Microsecond,
		TxAckDelay:     1000 * time.Microsecond,
		RxWait:         guardTime,
		AckWait:        400 * time.Microsecond,
		RxTx:           192 * time.Microsecond,
		MaxAck:         2400 * time.Microsecond,
		MaxTx:          4256 * time.Microsecond,
		TimeSlotLength: 10000 * time.Microsecond,
	}
}

// DefaultTschTimeslotTimings is the default template (id 0, 2200us guard time).
func DefaultTschTimeslotTimings() TschTimeslotTimings {
	return NewTschTimeslotTimings(TschTimeslotDefaultID, TschTimeslotDefaultGuardTime)
}

// ParseTschTimeslot parses the content of a TSCH Timeslot nested IE. When
// the first octet is TschTimeslotDefaultID, the default timing template is
// returned regardless of any trailing bytes.
func ParseTschTimeslot(content []byte) (TschTimeslotTimings, error) {
	if len(content) < 1 {
		return TschTimeslotTimings{}, ErrMalformed
	}
	id := content[0]
	if id == TschTimeslotDefaultID {
		return DefaultTschTimeslotTimings(), nil
	}
	if len(content) < 25 {
		return TschTimeslotTimings{}, ErrMalformed
	}
	u16 := func(off int) time.Duration {
		return time.Duration(binary.LittleEndian.Uint16(content[off:off+2])) * time.Microsecond
	}
	return TschTimeslotTimings{
		ID:             id,
		CCAOffset:      u16(1),
		CCA:            u16(3),
		TxOffset:       u16(5),
		RxOffset:       u16(7),
		RxAckDelay:     u16(9),
		TxAckDelay:     u16(11),
		RxWait:         u16(13),
		AckWait:        u16(15),
		RxTx:           u16(17),
		MaxAck:         u16(19),
		MaxTx:          u16(21),
		TimeSlotLength: u16(23),
	}, nil
}

// Emit writes a non-default timing template's 25-octet wire form into buf.
func (t TschTimeslotTimings) Emit(buf []byte) {
	buf[0] = t.ID
	put := func(off int, d time.Duration) {
		binary.LittleEndian.PutUint16(buf[off:], uint16(d/time.Microsecond))
	}
	put(1, t.CCAOffset)
	put(3, t.CCA)
	put(5, t.TxOffset)
	put(7, t.RxOffset)
	put(9, t.RxAckDelay)
	put(11, t.TxAckDelay)
	put(13, t.RxWait)
	put(15, t.AckWait)
	put(17, t.RxTx)
	put(19, t.MaxAck)
	put(21, t.MaxTx)
	put(23, t.TimeSlotLength)
}

// TschLinkOption is the bitmask of behaviors a TSCH link supports.
type TschLinkOption uint8

const (
	TschLinkOptionTx          TschLinkOption = 0b0000_0001
	TschLinkOptionRx          TschLinkOption = 0b0000_0010
	TschLinkOptionShared      TschLinkOption = 0b0000_0100
	TschLinkOptionTimeKeeping TschLinkOption = 0b0000_1000
	// TschLinkOptionPriority is supplemented from the standard's link-option
	// bitfield; spec.md's TX|RX|Shared|TimeKeeping list predates it.
	TschLinkOptionPriority TschLinkOption = 0b0001_0000
)

func (o TschLinkOption) Has(bit TschLinkOption) bool { return o&bit != 0 }

// LinkInformation is one 5-octet link entry inside a Slotframe Descriptor.
type LinkInformation struct {
	Timeslot      uint16
	ChannelOffset uint16
	Options       TschLinkOption
}

const linkInformationLen = 5

func parseLinkInformation(b []byte) LinkInformation {
	return LinkInformation{
		Timeslot:      binary.LittleEndian.Uint16(b[0:2]),
		ChannelOffset: binary.LittleEndian.Uint16(b[2:4]),
		Options:       TschLinkOption(b[4]),
	}
}

func (l LinkInformation) emit(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], l.Timeslot)
	binary.LittleEndian.PutUint16(b[2:4], l.ChannelOffset)
	b[4] = byte(l.Options)
}

// SlotframeDescriptor is one slotframe entry inside a TSCH Slotframe and
// Link nested IE: a handle, a size, and the links scheduled within it.
type SlotframeDescriptor struct {
	Handle uint8
	Size   uint16
	Links  []LinkInformation
}

func parseSlotframeDescriptor(b []byte) (SlotframeDescriptor, int, error) {
	if len(b) < 4 {
		return SlotframeDescriptor{}, 0, ErrMalformed
	}
	handle := b[0]
	size := binary.LittleEndian.Uint16(b[1:3])
	numLinks := int(b[3])
	total := 4 + numLinks*linkInformationLen
	if len(b) < total {
		return SlotframeDescriptor{}, 0, ErrMalformed
	}
	links := make([]LinkInformation, 0, numLinks)
	for i := 0; i < numLinks; i++ {
		off := 4 + i*linkInformationLen
		links = append(links, parseLinkInformation(b[off:off+linkInformationLen]))
	}
	return SlotframeDescriptor{Handle: handle, Size: size, Links: links}, total, nil
}

// TschSlotframeAndLink is the TSCH Slotframe and Link nested IE: a list of
// slotframe descriptors, each carrying its own links.
type TschSlotframeAndLink struct {
	Slotframes []SlotframeDescriptor
}

// ParseTschSlotframeAndLink parses the content of a TSCH Slotframe and Link
// nested IE.
func ParseTschSlotframeAndLink(content []byte) (TschSlotframeAndLink, error) {
	if len(content) < 1 {
		return TschSlotframeAndLink{}, ErrMalformed
	}
	n := int(content[0])
	rest := content[1:]
	out := make([]SlotframeDescriptor, 0, n)
	off := 0
	for i := 0; i < n; i++ {
		if off >= len(rest) {
			break
		}
		d, consumed, err := parseSlotframeDescriptor(rest[off:])
		if err != nil {
			return TschSlotframeAndLink{}, err
		}
		out = append(out, d)
		off += consumed
	}
	return TschSlotframeAndLink{Slotframes: out}, nil
}

// Emit writes the wire form of s into buf, which must be at least s.Len() bytes.
func (s TschSlotframeAndLink) Emit(buf []byte) {
	buf[0] = uint8(len(s.Slotframes))
	off := 1
	for _, d := range s.Slotframes {
		buf[off] = d.Handle
		binary.LittleEndian.PutUint16(buf[off+1:], d.Size)
		buf[off+3] = uint8(len(d.Links))
		off += 4
		for _, l := range d.Links {
			l.emit(buf[off : off+linkInformationLen])
			off += linkInformationLen
		}
	}
}

// Len returns the number of octets s occupies when emitted.
func (s TschSlotframeAndLink) Len() int {
	n := 1
	for _, d := range s.Slotframes {
		n += 4 + len(d.Links)*linkInformationLen
	}
	return n
}

// ParseChannelHopping parses the content of a Channel Hopping nested IE,
// returning the hopping sequence ID selecting one of the device's configured
// sequences.
func ParseChannelHopping(content []byte) (uint8, error) {
	if len(content) < 1 {
		return 0, ErrMalformed
	}
	return content[0], nil
}

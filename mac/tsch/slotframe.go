// Package tsch implements the Time-Slotted Channel Hopping MAC mode: ASN
// tracking, slotframe/link scheduling, named channel-hopping sequences, and
// the minimal join flow a device follows before it has associated with a
// PAN coordinator.
package tsch

import (
	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/frame/ie"
)

// SlotType distinguishes ordinary data/ack links from advertising links
// used to transmit or receive Enhanced Beacons.
type SlotType uint8

const (
	SlotTypeNormal SlotType = iota
	SlotTypeAdvertising
	SlotTypeAdvertisingOnly
)

// Link is one scheduled occurrence within a Slotframe: the neighbor it
// talks to (or the broadcast address for advertising links), the channel
// offset fed into the hopping sequence, and the behaviors it supports.
type Link struct {
	SlotHandle    uint8
	Address       frame.Address
	ChannelOffset uint16
	Options       ie.TschLinkOption
	Type          SlotType
}

// Slotframe is a fixed-size, repeating schedule of Links indexed by slot
// offset (ASN mod Size). An absent entry means no link is scheduled for
// that offset.
type Slotframe struct {
	Handle uint8
	Size   uint16
	slots  []*Link
}

// NewSlotframe allocates an empty Slotframe with the given handle and size.
func NewSlotframe(handle uint8, size uint16) *Slotframe {
	return &Slotframe{Handle: handle, Size: size, slots: make([]*Link, size)}
}

// Minimal builds the bootstrap single-slot advertising slotframe every
// device starts with before association: slot 0, broadcast address,
// channel offset 0, TX|RX|Shared|TimeKeeping, advertising type.
func Minimal() *Slotframe {
	sf := NewSlotframe(0, 1)
	sf.Set(0, Link{
		SlotHandle:    0,
		Address:       frame.BroadcastAddress,
		ChannelOffset: 0,
		Options: ie.TschLinkOptionTx | ie.TschLinkOptionRx |
			ie.TschLinkOptionShared | ie.TschLinkOptionTimeKeeping,
		Type: SlotTypeAdvertising,
	})
	return sf
}

// Set schedules link at the given slot offset. offset must be < Size.
func (sf *Slotframe) Set(offset uint16, link Link) {
	sf.slots[offset] = &link
}

// At returns the link scheduled at offset, if any.
func (sf *Slotframe) At(offset uint16) (Link, bool) {
	l := sf.slots[offset%sf.Size]
	if l == nil {
		return Link{}, false
	}
	return *l, true
}

// FromIE builds a Slotframe from a parsed TSCH Slotframe and Link nested
// IE's first descriptor, the shape a join beacon carries.
func FromIE(d ie.SlotframeDescriptor) *Slotframe {
	sf := NewSlotframe(d.Handle, d.Size)
	for _, l := range d.Links {
		sf.Set(l.Timeslot, Link{
			Address:       frame.BroadcastAddress,
			ChannelOffset: l.ChannelOffset,
			Options:       l.Options,
			Type:          SlotTypeNormal,
		})
	}
	return sf
}

// HoppingSequence is a channel-hopping sequence: the channel used at a
// given (ASN, channel offset) pair is sequence[(ASN+offset) mod len(sequence)].
type HoppingSequence struct {
	channels []uint8
}

// NewHoppingSequence builds a sequence from an arbitrary caller-supplied
// channel list.
func NewHoppingSequence(channels ...uint8) HoppingSequence {
	cp := append([]uint8(nil), channels...)
	return HoppingSequence{channels: cp}
}

// Sequence16x16 is the standard's 16-channel, 16-hop default sequence.
func Sequence16x16() HoppingSequence {
	return NewHoppingSequence(16, 17, 23, 18, 26, 15, 25, 22, 19, 11, 12, 13, 24, 14, 20, 21)
}

// Sequence4x16 is the standard's 4-channel, 16-hop default sequence.
func Sequence4x16() HoppingSequence {
	return NewHoppingSequence(20, 26, 25, 26, 15, 15, 25, 20, 26, 15, 26, 25, 20, 15, 20, 25)
}

// Sequence4x4 is the standard's 4-channel, 4-hop default sequence.
func Sequence4x4() HoppingSequence {
	return NewHoppingSequence(15, 25, 26, 20)
}

// Sequence2x2 is the standard's 2-channel, 2-hop default sequence.
func Sequence2x2() HoppingSequence {
	return NewHoppingSequence(20, 25)
}

// Sequence1x1 is the standard's single-channel sequence (no hopping).
func Sequence1x1() HoppingSequence {
	return NewHoppingSequence(20)
}

// Channel returns the channel to use for the given ASN and channel offset.
func (h HoppingSequence) Channel(asn uint64, channelOffset uint16) uint8 {
	n := uint64(len(h.channels))
	idx := (asn + uint64(channelOffset)) % n
	return h.channels[idx]
}

// Len returns the number of channels in the sequence.
func (h HoppingSequence) Len() int { return len(h.channels) }

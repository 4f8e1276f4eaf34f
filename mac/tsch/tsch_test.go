package tsch

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"time"

	"github.com/gowpan/dot15d4/clock"
	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/frame/ie"
	"github.com/gowpan/dot15d4/radio"
)

func TestHoppingSequenceByID_KnownAndUnknownIDs(t *testing.T) {
	cases := []struct {
		id   uint8
		want int
	}{
		{0, Sequence16x16().Len()},
		{1, Sequence4x16().Len()},
		{2, Sequence4x4().Len()},
		{3, Sequence2x2().Len()},
		{4, Sequence1x1().Len()},
		{99, Sequence16x16().Len()}, // unknown falls back to 16x16
	}
	for _, c := range cases {
		if got := hoppingSequenceByID(c.id).Len(); got != c.want {
			t.Errorf("hoppingSequenceByID(%d).Len() = %d, want %d", c.id, got, c.want)
		}
	}
}

func TestAddrEqual(t *testing.T) {
	a := frame.ShortAddress([2]byte{0x00, 0x01})
	b := frame.ShortAddress([2]byte{0x00, 0x01})
	c := frame.ShortAddress([2]byte{0x00, 0x02})

	if !addrEqual(a, b) {
		t.Error("equal short addresses should compare equal")
	}
	if addrEqual(a, c) {
		t.Error("distinct short addresses should not compare equal")
	}
}

func newTestDevice() *Device {
	cfg := Config{}
	return New(cfg, nil, nil)
}

func TestDevice_ApplyTimeCorrectionClampsToMaxSlew(t *testing.T) {
	d := newTestDevice()
	start := time.Now()
	d.currentSlotStart = start

	d.applyTimeCorrection(10 * d.cfg.MaxTimeSlew)
	if d.timeOffset != d.cfg.MaxTimeSlew {
		t.Errorf("timeOffset = %v, want clamp to %v", d.timeOffset, d.cfg.MaxTimeSlew)
	}
	if !d.currentSlotStart.Equal(start.Add(d.cfg.MaxTimeSlew)) {
		t.Errorf("currentSlotStart = %v, want %v", d.currentSlotStart, start.Add(d.cfg.MaxTimeSlew))
	}
}

func TestDevice_ApplyTimeCorrectionClampsNegative(t *testing.T) {
	d := newTestDevice()
	d.currentSlotStart = time.Now()

	d.applyTimeCorrection(-10 * d.cfg.MaxTimeSlew)
	if d.timeOffset != -d.cfg.MaxTimeSlew {
		t.Errorf("timeOffset = %v, want clamp to %v", d.timeOffset, -d.cfg.MaxTimeSlew)
	}
}

func TestDevice_ApplyTimeCorrectionWithinBoundsIsUnclamped(t *testing.T) {
	d := newTestDevice()
	d.currentSlotStart = time.Now()

	corr := d.cfg.MaxTimeSlew / 2
	d.applyTimeCorrection(corr)
	if d.timeOffset != corr {
		t.Errorf("timeOffset = %v, want %v", d.timeOffset, corr)
	}
}

func TestBuildEnhancedAck_ParsesAsValidFrame(t *testing.T) {
	ack := buildEnhancedAck(7, 150*time.Microsecond)

	if !frame.CheckFCS(ack) {
		t.Fatal("built ack should carry a valid FCS")
	}
	fr, err := frame.Parse(ack)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fr.FrameControl().FrameType() != frame.FrameTypeAck {
		t.Errorf("FrameType = %v, want Ack", fr.FrameControl().FrameType())
	}
	if !fr.FrameControl().InformationElementsPresent() {
		t.Error("expected InformationElementsPresent")
	}
	seq, ok := fr.SequenceNumber()
	if !ok || seq != 7 {
		t.Fatalf("SequenceNumber = %d, %v, want 7", seq, ok)
	}

	it, ok := fr.HeaderIEs()
	if !ok {
		t.Fatal("expected header IEs")
	}
	h, ok := it.Next()
	if !ok || h.RawID() != 0x1e {
		t.Fatalf("first header IE = 0x%02x, %v, want Time Correction (0x1e)", h.RawID(), ok)
	}
	if pit, ok := fr.PayloadIEs(); ok {
		if _, ok := pit.Next(); ok {
			t.Error("enhanced ack should not carry payload IEs")
		}
	}
}

func TestBuildEnhancedAck_KnownBytes(t *testing.T) {
	// Sanity check against the hand-verified encoding: frame type Ack,
	// version 2020, IE present, seq=1, Time Correction IE (id 0x1e, len 2)
	// carrying a zero correction, terminated by Header Termination 2.
	ack := buildEnhancedAck(1, 0)
	got := hex.EncodeToString(ack[:9])
	// byte0-1: frame control 0x2202 (type=2 Ack, IE present bit9, version
	// 2020 in bits 12-13); byte2: seq=1; byte3-4: Time Correction descriptor
	// 0x0f02 (len 2, id 0x1e); byte5-6: zero correction; byte7-8: Header
	// Termination 2 descriptor 0x3f80.
	if want := "022201020f0000803f"; got != want {
		t.Errorf("enhanced ack header = %s, want %s", got, want)
	}
}

// TestDevice_RunSlot_CarriesTimeCorrectionIntoNextSlot exercises a full
// runSlot cycle on the minimal bootstrap slotframe's RX occurrence: the
// time correction a received frame's SFD implies must still be reflected
// in currentSlotStart after the slot's deferred advance, not discarded by
// it.
func TestDevice_RunSlot_CarriesTimeCorrectionIntoNextSlot(t *testing.T) {
	r := radio.NewLoopbackRadio(1)
	d := New(Config{}, r, clock.New())
	d.associated = true

	asn0 := uint64(7)
	d.asn = asn0
	slotStart := time.Now()
	d.currentSlotStart = slotStart

	wantCorrection := 50 * time.Microsecond
	sfd := slotStart.Add(d.cfg.Timings.RxOffset).Add(wantCorrection)

	b := frame.Builder{FrameType: frame.FrameTypeData, FrameVersion: frame.FrameVersion2020, SequenceNumber: 1}
	buf := make([]byte, b.BufferLen())
	b.Emit(buf)
	r.Deliver(buf, -30, sfd)

	if err := d.runSlot(context.Background()); err != nil {
		t.Fatalf("runSlot: %v", err)
	}

	if got := d.ASN(); got != asn0+1 {
		t.Errorf("ASN = %d, want %d", got, asn0+1)
	}

	want := slotStart.Add(wantCorrection).Add(d.cfg.Timings.TimeSlotLength)
	if got := d.currentSlotStart; !got.Equal(want) {
		t.Errorf("currentSlotStart = %v, want %v (time correction should carry forward)", got, want)
	}
	if got := d.TimeOffset(); got != wantCorrection {
		t.Errorf("TimeOffset() = %v, want %v", got, wantCorrection)
	}
}

func TestDevice_AssociateRequiresSynchronizationIE(t *testing.T) {
	d := newTestDevice()

	// A beacon with no Payload IE, and so no Synchronization IE, should
	// leave the device unassociated.
	b := frame.Builder{
		FrameType:    frame.FrameTypeBeacon,
		FrameVersion: frame.FrameVersion2020,
		Addressing:   frame.AddressingFieldsRepr{},
		Payload:      nil,
	}
	buf := make([]byte, b.BufferLen())
	b.Emit(buf)
	fr, err := frame.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := d.associate(fr, time.Now()); err != nil {
		t.Fatalf("associate: %v", err)
	}
	if d.Associated() {
		t.Error("device should remain unassociated without a Synchronization IE")
	}
}

// buildSyncBeacon wraps a TSCH Synchronization nested IE in an MLME Payload
// IE, under a beacon sourced from src with the given PAN ID.
func buildSyncBeacon(src frame.Address, panID uint16, asn uint64, joinMetric uint8) []byte {
	content := make([]byte, 6)
	ie.TschSynchronization{ASN: asn, JoinMetric: joinMetric}.Emit(content)

	nested := make([]byte, 2+len(content))
	descriptor := uint16(len(content)&0b111_1111) | uint16(ie.NestedSubIDShortTschSynchronization)<<8
	binary.LittleEndian.PutUint16(nested, descriptor)
	copy(nested[2:], content)

	b := frame.Builder{
		FrameType:    frame.FrameTypeBeacon,
		FrameVersion: frame.FrameVersion2020,
		Addressing: frame.AddressingFieldsRepr{
			SrcPanID:   &panID,
			SrcAddress: src,
		},
		PayloadIEs: ie.PayloadIEBuilder{
			IEs: []ie.PayloadIERepr{{GroupID: ie.PayloadGroupIDMLME, Content: nested}},
		},
	}
	buf := make([]byte, b.BufferLen())
	b.Emit(buf)
	return buf
}

func TestDevice_AssociateRecordsStateInPib(t *testing.T) {
	d := newTestDevice()

	src := frame.ShortAddress([2]byte{0x00, 0x09})
	buf := buildSyncBeacon(src, 0x1234, 14, 5)
	fr, err := frame.Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := d.associate(fr, time.Now()); err != nil {
		t.Fatalf("associate: %v", err)
	}

	if !d.Associated() {
		t.Fatal("device should be associated after a valid Synchronization IE")
	}
	if d.ASN() != 14 {
		t.Errorf("ASN = %d, want 14", d.ASN())
	}

	if !d.Pib().AssociatedPANCoord() {
		t.Error("Pib should record AssociatedPANCoord after associate")
	}
	if got := d.Pib().PANID(); got != 0x1234 {
		t.Errorf("Pib PANID = %#04x, want 0x1234", got)
	}
	_, coordShort := d.Pib().CoordAddresses()
	if coordShort != src {
		t.Errorf("Pib coordinator short address = %v, want %v", coordShort, src)
	}
}

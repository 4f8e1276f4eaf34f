package frame

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/gowpan/dot15d4/frame/ie"
)

// TestParse_EnhancedBeaconWithTschIEs decodes the canonical enhanced beacon
// fixture: an MLME Payload IE carrying TSCH Synchronization (ASN=14, join
// metric=0), the default TSCH Timeslot template, Channel Hopping (sequence
// ID 0) and an empty Slotframe and Link list.
func TestParse_EnhancedBeaconWithTschIEs(t *testing.T) {
	raw, err := hex.DecodeString("40ebcdabffff0100010001000100003f1188061a0e0000000000011c0001c800011b00")
	if err != nil {
		t.Fatalf("invalid fixture hex: %v", err)
	}

	fr, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	fc := fr.FrameControl()
	if fc.FrameType() != FrameTypeBeacon {
		t.Errorf("FrameType = %v, want Beacon", fc.FrameType())
	}
	if !fc.IsEnhancedBeacon() {
		t.Error("expected IsEnhancedBeacon")
	}
	if fc.FrameVersion() != FrameVersion2020 {
		t.Errorf("FrameVersion = %v, want 2020", fc.FrameVersion())
	}
	if !fc.PanIDCompression() {
		t.Error("PanIDCompression should be set")
	}
	if !fc.SequenceNumberSuppression() {
		t.Error("SequenceNumberSuppression should be set")
	}
	if !fc.InformationElementsPresent() {
		t.Error("InformationElementsPresent should be set")
	}

	if _, ok := fr.SequenceNumber(); ok {
		t.Error("sequence number should be suppressed")
	}

	addr := fr.Addressing()
	panID, ok, err := addr.DstPanID()
	if err != nil || !ok || panID != 0xabcd {
		t.Fatalf("DstPanID = 0x%04x, %v, %v, want 0xabcd", panID, ok, err)
	}
	dst, err := addr.DstAddress()
	if err != nil || !dst.IsBroadcast() {
		t.Fatalf("DstAddress = %v, %v, want broadcast", dst, err)
	}
	src, err := addr.SrcAddress()
	if err != nil || !src.IsExtended() {
		t.Fatalf("SrcAddress = %v, %v, want extended", src, err)
	}

	it, ok := fr.HeaderIEs()
	if !ok {
		t.Fatal("expected Header IEs to be present")
	}
	h, ok := it.Next()
	if !ok {
		t.Fatal("expected a Header Termination IE")
	}
	if h.RawID() != ie.HeaderElementIDHeaderTermination1 {
		t.Errorf("header IE = 0x%02x, want Header Termination 1 (payload IEs follow)", h.RawID())
	}

	pit, ok := fr.PayloadIEs()
	if !ok {
		t.Fatal("expected Payload IEs to be present")
	}
	p, ok := pit.Next()
	if !ok {
		t.Fatal("expected an MLME Payload IE")
	}
	if p.RawGroupID() != ie.PayloadGroupIDMLME {
		t.Fatalf("payload IE group = 0x%x, want MLME", p.RawGroupID())
	}

	var sawSync, sawHopping bool
	nit := p.NestedIEs()
	for {
		n, ok := nit.Next()
		if !ok {
			break
		}
		switch {
		case n.IsShort() && n.ShortSubID() == ie.NestedSubIDShortTschSynchronization:
			sync, err := ie.ParseTschSynchronization(n.Content())
			if err != nil {
				t.Fatalf("ParseTschSynchronization: %v", err)
			}
			if sync.ASN != 14 || sync.JoinMetric != 0 {
				t.Errorf("TschSynchronization = %+v, want ASN=14 JoinMetric=0", sync)
			}
			sawSync = true
		case n.IsLong() && n.LongSubID() == ie.NestedSubIDLongChannelHopping:
			seqID, err := ie.ParseChannelHopping(n.Content())
			if err != nil {
				t.Fatalf("ParseChannelHopping: %v", err)
			}
			if seqID != 0 {
				t.Errorf("ChannelHopping sequence ID = %d, want 0", seqID)
			}
			sawHopping = true
		}
	}
	if !sawSync {
		t.Error("did not find a TSCH Synchronization nested IE")
	}
	if !sawHopping {
		t.Error("did not find a Channel Hopping nested IE")
	}
}

// TestParse_DataFrameEmitRoundTrip builds a Data frame with a Builder, emits
// it, re-parses it, and checks that the frame type, AR bit, sequence number,
// payload and FCS round-trip.
func TestParse_DataFrameEmitRoundTrip(t *testing.T) {
	panID := uint16(0x1aaa)
	b := Builder{
		FrameType:                 FrameTypeData,
		AckRequest:                true,
		PanIDCompression:          true,
		FrameVersion:              FrameVersion2020,
		SequenceNumber:            42,
		Addressing: AddressingFieldsRepr{
			DstPanID:   &panID,
			DstAddress: ShortAddress([2]byte{0x00, 0x01}),
			SrcAddress: ShortAddress([2]byte{0x00, 0x02}),
		},
		Payload: []byte{0x01, 0x02, 0x03},
	}

	buf := make([]byte, b.BufferLen())
	b.Emit(buf)

	if !CheckFCS(buf) {
		t.Fatal("emitted frame should carry a valid FCS")
	}

	fr, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if fr.FrameControl().FrameType() != FrameTypeData {
		t.Errorf("FrameType = %v, want Data", fr.FrameControl().FrameType())
	}
	if !fr.FrameControl().AckRequest() {
		t.Error("AckRequest should round-trip as true")
	}
	seq, ok := fr.SequenceNumber()
	if !ok || seq != 42 {
		t.Fatalf("SequenceNumber = %d, %v, want 42", seq, ok)
	}
	if !bytes.Equal(fr.Payload(), []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Payload = %x, want 010203", fr.Payload())
	}
	if !fr.CheckFCS() {
		t.Error("re-parsed frame should still check out")
	}
}

func TestParse_RejectsTruncatedFrameControl(t *testing.T) {
	if _, err := Parse([]byte{0x01}); err == nil {
		t.Fatal("expected error for a 1-byte buffer")
	}
}

package ie

import (
	"testing"
	"time"
)

func shortDescriptor(length int, subID NestedSubIDShort) []byte {
	d := uint16(length&0b111_1111) | uint16(subID)<<8
	return []byte{byte(d), byte(d >> 8)}
}

func longDescriptor(length int, subID NestedSubIDLong) []byte {
	d := uint16(length&0b11_1111_1111) | uint16(subID)<<11 | 1<<15
	return []byte{byte(d), byte(d >> 8)}
}

func TestNestedIE_ShortFormTschSynchronization(t *testing.T) {
	content := []byte{0x0e, 0, 0, 0, 0, 0x07}
	data := append(shortDescriptor(len(content), NestedSubIDShortTschSynchronization), content...)

	n, err := ParseNestedIE(data)
	if err != nil {
		t.Fatalf("ParseNestedIE: %v", err)
	}
	if !n.IsShort() {
		t.Error("expected short-form IE")
	}
	if n.ShortSubID() != NestedSubIDShortTschSynchronization {
		t.Errorf("ShortSubID() = 0x%x, want TschSynchronization", n.ShortSubID())
	}

	sync, err := ParseTschSynchronization(n.Content())
	if err != nil {
		t.Fatalf("ParseTschSynchronization: %v", err)
	}
	if sync.ASN != 14 || sync.JoinMetric != 7 {
		t.Errorf("TschSynchronization = %+v, want ASN=14 JoinMetric=7", sync)
	}
}

func TestNestedIE_LongFormChannelHopping(t *testing.T) {
	content := []byte{0x03}
	data := append(longDescriptor(len(content), NestedSubIDLongChannelHopping), content...)

	n, err := ParseNestedIE(data)
	if err != nil {
		t.Fatalf("ParseNestedIE: %v", err)
	}
	if !n.IsLong() {
		t.Error("expected long-form IE")
	}
	if n.LongSubID() != NestedSubIDLongChannelHopping {
		t.Errorf("LongSubID() = 0x%x, want ChannelHopping", n.LongSubID())
	}

	seqID, err := ParseChannelHopping(n.Content())
	if err != nil {
		t.Fatalf("ParseChannelHopping: %v", err)
	}
	if seqID != 3 {
		t.Errorf("sequence ID = %d, want 3", seqID)
	}
}

func TestNestedIEIterator_RunsToExhaustion(t *testing.T) {
	sync := append(shortDescriptor(6, NestedSubIDShortTschSynchronization), 0x0e, 0, 0, 0, 0, 0)
	hopping := append(longDescriptor(1, NestedSubIDLongChannelHopping), 0x00)

	data := append(append([]byte{}, sync...), hopping...)
	it := NewNestedIEIterator(data)

	n1, ok := it.Next()
	if !ok || n1.ShortSubID() != NestedSubIDShortTschSynchronization {
		t.Fatalf("first nested IE = %v, %v", n1.ShortSubID(), ok)
	}
	n2, ok := it.Next()
	if !ok || n2.LongSubID() != NestedSubIDLongChannelHopping {
		t.Fatalf("second nested IE = %v, %v", n2.LongSubID(), ok)
	}
	if _, ok := it.Next(); ok {
		t.Error("iterator should be exhausted")
	}
}

func TestTschTimeslotTimings_DefaultIDReturnsBuiltinTemplate(t *testing.T) {
	timings, err := ParseTschTimeslot([]byte{TschTimeslotDefaultID})
	if err != nil {
		t.Fatalf("ParseTschTimeslot: %v", err)
	}
	want := DefaultTschTimeslotTimings()
	if timings != want {
		t.Errorf("timings = %+v, want default template %+v", timings, want)
	}
}

func TestTschTimeslotTimings_NonDefaultIDRoundTripsThroughEmit(t *testing.T) {
	custom := NewTschTimeslotTimings(5, 2400*time.Microsecond)
	buf := make([]byte, 25)
	custom.Emit(buf)

	parsed, err := ParseTschTimeslot(buf)
	if err != nil {
		t.Fatalf("ParseTschTimeslot: %v", err)
	}
	if parsed != custom {
		t.Errorf("parsed = %+v, want %+v", parsed, custom)
	}
}

func TestTschSlotframeAndLink_EmitParseRoundTrip(t *testing.T) {
	s := TschSlotframeAndLink{
		Slotframes: []SlotframeDescriptor{
			{
				Handle: 1,
				Size:   4,
				Links: []LinkInformation{
					{Timeslot: 1, ChannelOffset: 2, Options: TschLinkOptionTx | TschLinkOptionShared},
				},
			},
		},
	}
	buf := make([]byte, s.Len())
	s.Emit(buf)

	parsed, err := ParseTschSlotframeAndLink(buf)
	if err != nil {
		t.Fatalf("ParseTschSlotframeAndLink: %v", err)
	}
	if len(parsed.Slotframes) != 1 {
		t.Fatalf("len(Slotframes) = %d, want 1", len(parsed.Slotframes))
	}
	got := parsed.Slotframes[0]
	if got.Handle != 1 || got.Size != 4 || len(got.Links) != 1 {
		t.Fatalf("slotframe = %+v, want handle=1 size=4 1 link", got)
	}
	link := got.Links[0]
	if link.Timeslot != 1 || link.ChannelOffset != 2 {
		t.Errorf("link = %+v, want timeslot=1 offset=2", link)
	}
	if !link.Options.Has(TschLinkOptionTx) || !link.Options.Has(TschLinkOptionShared) {
		t.Errorf("link options = %v, want Tx|Shared", link.Options)
	}
	if link.Options.Has(TschLinkOptionRx) {
		t.Error("link should not have Rx option")
	}
}

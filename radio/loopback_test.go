package radio

import (
	"context"
	"testing"
	"time"
)

func TestLoopbackRadio_CCASequenceRepeatsLastValue(t *testing.T) {
	r := NewLoopbackRadio(1)
	r.SetCCASequence(false, false, true)
	ctx := context.Background()

	want := []bool{false, false, true, true, true}
	for i, w := range want {
		got, err := r.CCA(ctx)
		if err != nil {
			t.Fatalf("CCA[%d]: %v", i, err)
		}
		if got != w {
			t.Errorf("CCA[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestLoopbackRadio_CCADefaultsClear(t *testing.T) {
	r := NewLoopbackRadio(1)
	got, err := r.CCA(context.Background())
	if err != nil || !got {
		t.Fatalf("CCA() = %v, %v, want true, nil", got, err)
	}
}

func TestLoopbackRadio_TransmitRecordsFrames(t *testing.T) {
	r := NewLoopbackRadio(1)
	ctx := context.Background()

	if _, err := r.Transmit(ctx, []byte{0x01, 0x02}, nil); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if _, err := r.Transmit(ctx, []byte{0x03}, nil); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	got := r.Transmitted()
	if len(got) != 2 {
		t.Fatalf("len(Transmitted()) = %d, want 2", len(got))
	}
	if got[0][0] != 0x01 || got[1][0] != 0x03 {
		t.Errorf("Transmitted() = %v", got)
	}
}

func TestLoopbackRadio_DeliverThenReceive(t *testing.T) {
	r := NewLoopbackRadio(1)
	sfd := time.Now()
	r.Deliver([]byte{0xaa, 0xbb, 0xcc}, -40, sfd)

	buf := make([]byte, 16)
	n, rssi, gotSFD, ok, err := r.Receive(context.Background(), buf, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !ok {
		t.Fatal("expected a delivered frame")
	}
	if n != 3 || buf[0] != 0xaa {
		t.Errorf("Receive() = %d bytes %v, want 3 bytes [aa bb cc ...]", n, buf[:n])
	}
	if rssi != -40 {
		t.Errorf("rssi = %d, want -40", rssi)
	}
	if !gotSFD.Equal(sfd) {
		t.Errorf("sfd = %v, want %v", gotSFD, sfd)
	}
}

func TestLoopbackRadio_ReceiveTimesOutWithoutDelivery(t *testing.T) {
	r := NewLoopbackRadio(1)
	buf := make([]byte, 16)
	_, _, _, ok, err := r.Receive(context.Background(), buf, time.Now().Add(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if ok {
		t.Error("expected no frame to be delivered before the deadline")
	}
}

func TestLoopbackRadio_ReceiveRespectsCancelledContext(t *testing.T) {
	r := NewLoopbackRadio(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := make([]byte, 16)
	_, _, _, _, err := r.Receive(ctx, buf, time.Now().Add(time.Second))
	if err == nil {
		t.Error("expected an error from a cancelled context")
	}
}

func TestPair_RelaysTransmissionsBetweenRadios(t *testing.T) {
	a := NewLoopbackRadio(4)
	b := NewLoopbackRadio(4)
	Pair(a, b)

	if _, err := a.Transmit(context.Background(), []byte{0x01, 0x02, 0x03}, nil); err != nil {
		t.Fatalf("Transmit: %v", err)
	}

	buf := make([]byte, 16)
	n, _, _, ok, err := b.Receive(context.Background(), buf, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !ok {
		t.Fatal("expected b to receive a's transmission")
	}
	if n != 3 || buf[0] != 0x01 {
		t.Errorf("Receive() = %d bytes %v, want [1 2 3]", n, buf[:n])
	}
}

func TestLoopbackRadio_AckFilteringTogglesWithoutError(t *testing.T) {
	r := NewLoopbackRadio(1)
	r.EnableAckFiltering(7)
	r.DisableAckFiltering()
}

func TestLoopbackRadio_SetChannel(t *testing.T) {
	r := NewLoopbackRadio(1)
	if err := r.SetChannel(context.Background(), 26); err != nil {
		t.Fatalf("SetChannel: %v", err)
	}
	if got := r.Channel(); got != 26 {
		t.Errorf("Channel() = %d, want 26", got)
	}
}

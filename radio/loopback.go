package radio

import (
	"context"
	"sync"
	"time"
)

// LoopbackRadio is a software Radio for tests and the capture bridge: CCA
// results and received frames are fed in by the test/harness, and
// transmitted frames are recorded rather than placed on any real air
// interface. Two LoopbackRadios can be wired together (Pair) to simulate a
// two-node link.
type LoopbackRadio struct {
	mu sync.Mutex

	channel uint8
	ccaSeq  []bool // queued CCA results; true = clear
	ccaPos  int

	rx chan rxFrame

	transmitted []transmitRecord

	ackFilterSeq *uint8
}

type rxFrame struct {
	data []byte
	rssi int8
	sfd  time.Time
}

type transmitRecord struct {
	frame []byte
	at    *time.Time
}

// NewLoopbackRadio returns a LoopbackRadio with rxQueueLen buffered receive
// slots.
func NewLoopbackRadio(rxQueueLen int) *LoopbackRadio {
	if rxQueueLen <= 0 {
		rxQueueLen = 16
	}
	return &LoopbackRadio{rx: make(chan rxFrame, rxQueueLen)}
}

// SetCCASequence queues the results CCA will return, in order, repeating
// the last value once exhausted. By default CCA always reports clear.
func (r *LoopbackRadio) SetCCASequence(results ...bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ccaSeq = results
	r.ccaPos = 0
}

// Deliver injects a received frame as if it had arrived over the air at sfd.
func (r *LoopbackRadio) Deliver(data []byte, rssi int8, sfd time.Time) {
	r.rx <- rxFrame{data: append([]byte(nil), data...), rssi: rssi, sfd: sfd}
}

// Transmitted returns the frames Transmit has recorded so far, in order.
func (r *LoopbackRadio) Transmitted() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.transmitted))
	for i, t := range r.transmitted {
		out[i] = t.frame
	}
	return out
}

func (r *LoopbackRadio) SetChannel(ctx context.Context, channel uint8) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.mu.Lock()
	r.channel = channel
	r.mu.Unlock()
	return nil
}

func (r *LoopbackRadio) Channel() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

func (r *LoopbackRadio) CCA(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ccaSeq) == 0 {
		return true, nil
	}
	idx := r.ccaPos
	if idx >= len(r.ccaSeq) {
		idx = len(r.ccaSeq) - 1
	} else {
		r.ccaPos++
	}
	return r.ccaSeq[idx], nil
}

func (r *LoopbackRadio) Transmit(ctx context.Context, frame []byte, at *time.Time) (time.Time, error) {
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	default:
	}
	sfd := time.Now()
	if at != nil {
		sfd = *at
	}
	r.mu.Lock()
	r.transmitted = append(r.transmitted, transmitRecord{frame: append([]byte(nil), frame...), at: at})
	r.mu.Unlock()
	return sfd, nil
}

func (r *LoopbackRadio) Receive(ctx context.Context, into []byte, until time.Time) (int, int8, time.Time, bool, error) {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if d := time.Until(until); d > 0 {
		timer = time.NewTimer(d)
		timeoutCh = timer.C
		defer timer.Stop()
	} else {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		timeoutCh = ch
	}
	select {
	case f := <-r.rx:
		n := copy(into, f.data)
		return n, f.rssi, f.sfd, true, nil
	case <-timeoutCh:
		return 0, 0, time.Time{}, false, nil
	case <-ctx.Done():
		return 0, 0, time.Time{}, false, ctx.Err()
	}
}

func (r *LoopbackRadio) EnableAckFiltering(seq uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ackFilterSeq = &seq
}

func (r *LoopbackRadio) DisableAckFiltering() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ackFilterSeq = nil
}

// Pair wires a and b so that frames transmitted on one are delivered to the
// other's receive queue, simulating a lossless two-node link. It spawns a
// background goroutine per direction; callers should stop using either
// radio once done (there is no explicit teardown, matching the loopback's
// test-scoped lifetime).
func Pair(a, b *LoopbackRadio) {
	go relay(a, b)
	go relay(b, a)
}

func relay(from, to *LoopbackRadio) {
	lastLen := 0
	for {
		from.mu.Lock()
		n := len(from.transmitted)
		var rec transmitRecord
		if n > lastLen {
			rec = from.transmitted[lastLen]
		}
		from.mu.Unlock()
		if n > lastLen {
			to.Deliver(rec.frame, 0, time.Now())
			lastLen++
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

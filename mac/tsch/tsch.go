package tsch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gowpan/dot15d4/clock"
	"github.com/gowpan/dot15d4/criticalsection"
	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/frame/ie"
	"github.com/gowpan/dot15d4/mac/pib"
	"github.com/gowpan/dot15d4/radio"
)

// Error kinds surfaced by the scheduler.
var (
	ErrNotAssociated = errors.New("tsch: not associated")
	ErrQueueFull     = errors.New("tsch: transmit queue full")
	ErrRadioError    = errors.New("tsch: radio error")
	ErrDropped       = errors.New("tsch: dropped")
)

// DefaultTxQueueLen is the fixed capacity of a Device's per-neighbor-
// agnostic transmit queue.
const DefaultTxQueueLen = 8

// DefaultMaxTimeSlew bounds how far one Time Correction observation may
// adjust the local time base in a single slot.
const DefaultMaxTimeSlew = 200 * time.Microsecond

// Config configures a Device.
type Config struct {
	Timings       ie.TschTimeslotTimings // zero value defaults to the built-in template
	NeighborTableCapacity int
	TxQueueLen    int
	MaxTimeSlew   time.Duration
	// Pib is the durable attribute store association updates are recorded
	// into. Nil creates a private Pib, matching a standalone device with
	// nothing else sharing its attributes.
	Pib    *pib.Pib
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Timings == (ie.TschTimeslotTimings{}) {
		c.Timings = ie.DefaultTschTimeslotTimings()
	}
	if c.NeighborTableCapacity == 0 {
		c.NeighborTableCapacity = DefaultNeighborTableSize
	}
	if c.TxQueueLen == 0 {
		c.TxQueueLen = DefaultTxQueueLen
	}
	if c.MaxTimeSlew == 0 {
		c.MaxTimeSlew = DefaultMaxTimeSlew
	}
	if c.Pib == nil {
		c.Pib = pib.New()
	}
}

type txRequest struct {
	dst        frame.Address
	frame      []byte
	ackRequest bool
	seq        uint8
}

// Device is a TSCH scheduler driving one radio. It tracks the absolute
// slot number and slot-start instant, dispatches TX/RX link occurrences,
// and runs the minimal join flow before association.
type Device struct {
	cfg   Config
	radio radio.Radio
	clk   clock.Clock
	log   *slog.Logger

	mu               sync.Mutex
	associated       bool
	asn              uint64
	currentSlotStart time.Time
	timeOffset       time.Duration // cumulative slew applied to the local time base
	slotframe        *Slotframe
	hopping          HoppingSequence
	neighbors        *NeighborTable
	timeSource       *frame.Address

	pib *pib.Pib

	txQueue chan txRequest
	cancel  context.CancelFunc
}

// New builds a Device starting from the minimal bootstrap slotframe and the
// 16/16 default hopping sequence, unassociated.
func New(cfg Config, r radio.Radio, clk clock.Clock) *Device {
	cfg.applyDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		cfg:       cfg,
		radio:     r,
		clk:       clk,
		log:       logger.With("component", "tsch"),
		slotframe: Minimal(),
		hopping:   Sequence16x16(),
		neighbors: NewNeighborTable(cfg.NeighborTableCapacity),
		pib:       cfg.Pib,
		txQueue:   make(chan txRequest, cfg.TxQueueLen),
	}
}

// Pib returns the attribute store this device records its association
// state into.
func (d *Device) Pib() *pib.Pib { return d.pib }

// Associated reports whether the device has synchronized to a PAN
// coordinator's slotframe.
func (d *Device) Associated() bool {
	var associated bool
	criticalsection.With(&d.mu, func() { associated = d.associated })
	return associated
}

// ASN returns the device's current absolute slot number.
func (d *Device) ASN() uint64 {
	var asn uint64
	criticalsection.With(&d.mu, func() { asn = d.asn })
	return asn
}

// TimeOffset returns the cumulative time-correction slew applied to the
// device's local time base since association, for diagnostics and testing.
func (d *Device) TimeOffset() time.Duration {
	var offset time.Duration
	criticalsection.With(&d.mu, func() { offset = d.timeOffset })
	return offset
}

// Enqueue queues a frame for transmission to dst on the next matching link.
// Returns ErrQueueFull if the fixed-capacity queue is saturated.
func (d *Device) Enqueue(dst frame.Address, fr []byte, seq uint8, ackRequest bool) error {
	select {
	case d.txQueue <- txRequest{dst: dst, frame: fr, ackRequest: ackRequest, seq: seq}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the slot scheduler until ctx is cancelled or Stop is called.
// While unassociated it runs the join flow; once associated it drives the
// per-slot TX/RX algorithm.
func (d *Device) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	criticalsection.With(&d.mu, func() { d.cancel = cancel })
	criticalsection.With(&d.mu, func() { d.currentSlotStart = d.clk.Now() })

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !d.Associated() {
			if err := d.runJoinAttempt(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				d.log.Warn("join attempt failed", "error", err)
			}
			continue
		}
		if err := d.runSlot(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			d.log.Warn("slot failed, abandoning", "asn", d.ASN(), "error", err)
		}
	}
}

// Stop cancels the scheduler's context.
func (d *Device) Stop() error {
	criticalsection.With(&d.mu, func() {
		if d.cancel != nil {
			d.cancel()
			d.cancel = nil
		}
	})
	return nil
}

// runJoinAttempt listens for one timeslot length on the radio's current
// channel and, if an Enhanced Beacon arrives, associates to it.
func (d *Device) runJoinAttempt(ctx context.Context) error {
	until := d.clk.Now().Add(d.cfg.Timings.TimeSlotLength)
	buf := make([]byte, radio.MaxPSDU)
	n, _, sfd, ok, err := d.radio.Receive(ctx, buf, until)
	if err != nil {
		return fmt.Errorf("tsch: join receive: %w", errors.Join(err, ErrRadioError))
	}
	if !ok {
		return nil
	}
	fr, err := frame.Parse(buf[:n])
	if err != nil || !fr.FrameControl().IsEnhancedBeacon() {
		return nil
	}
	return d.associate(fr, sfd)
}

// associate processes an Enhanced Beacon's MLME Payload IEs (TSCH
// Synchronization, Channel Hopping, Slotframe and Link) and synchronizes
// this device's ASN and slot-start instant to it.
func (d *Device) associate(fr frame.Frame, beaconSFD time.Time) error {
	payloadIEs, ok := fr.PayloadIEs()
	if !ok {
		return nil
	}

	var sync ie.TschSynchronization
	haveSync := false
	var hoppingSeqID uint8
	var slotframeDescs []ie.SlotframeDescriptor

	for {
		p, ok := payloadIEs.Next()
		if !ok {
			break
		}
		if p.GroupID() != ie.PayloadGroupIDMLME {
			continue
		}
		nested := p.NestedIEs()
		for {
			n, ok := nested.Next()
			if !ok {
				break
			}
			if !n.IsShort() {
				if n.LongSubID() == ie.NestedSubIDLongChannelHopping {
					if id, err := ie.ParseChannelHopping(n.Content()); err == nil {
						hoppingSeqID = id
					}
				}
				continue
			}
			switch n.ShortSubID() {
			case ie.NestedSubIDShortTschSynchronization:
				if s, err := ie.ParseTschSynchronization(n.Content()); err == nil {
					sync = s
					haveSync = true
				}
			case ie.NestedSubIDShortTschSlotframeAndLink:
				if sl, err := ie.ParseTschSlotframeAndLink(n.Content()); err == nil {
					slotframeDescs = sl.Slotframes
				}
			}
		}
	}

	if !haveSync {
		return nil
	}

	srcAddr, err := fr.Addressing().SrcAddress()
	if err == nil && !srcAddr.IsAbsent() {
		d.neighbors.Observe(srcAddr, sync.JoinMetric)
		if ts, ok := d.neighbors.TimeSource(); ok {
			d.timeSource = &ts.Address
		}
	}

	slotStart := beaconSFD.Add(-d.cfg.Timings.TxOffset)

	var sf *Slotframe
	if len(slotframeDescs) > 0 {
		sf = FromIE(slotframeDescs[0])
	} else {
		sf = d.slotframe
	}

	criticalsection.With(&d.mu, func() {
		d.currentSlotStart = slotStart
		d.asn = sync.ASN
		d.slotframe = sf
		d.hopping = hoppingSequenceByID(hoppingSeqID)
		d.associated = true
	})

	coordExtended, coordShort := frame.AbsentAddress, frame.AbsentAddress
	if srcAddr.IsExtended() {
		coordExtended = srcAddr
	} else if srcAddr.IsShort() {
		coordShort = srcAddr
	}
	panID, havePanID, err := fr.Addressing().SrcPanID()
	if err == nil && havePanID {
		d.pib.Associate(panID, coordExtended, coordShort, frame.AbsentAddress)
	}

	d.log.Debug("associated", "asn", sync.ASN, "join_metric", sync.JoinMetric)
	return nil
}

func hoppingSequenceByID(id uint8) HoppingSequence {
	switch id {
	case 0:
		return Sequence16x16()
	case 1:
		return Sequence4x16()
	case 2:
		return Sequence4x4()
	case 3:
		return Sequence2x2()
	case 4:
		return Sequence1x1()
	default:
		return Sequence16x16()
	}
}

// runSlot executes one occurrence of the current slot and advances ASN and
// slot-start unconditionally (step 5 of the algorithm), regardless of the
// slot's outcome.
func (d *Device) runSlot(ctx context.Context) error {
	var asn uint64
	var slotStart time.Time
	var sf *Slotframe
	var hopping HoppingSequence
	criticalsection.With(&d.mu, func() {
		asn = d.asn
		slotStart = d.currentSlotStart
		sf = d.slotframe
		hopping = d.hopping
	})

	// currentSlotStart may be slewed mid-slot by applyTimeCorrection (called
	// from runTxOccurrence/runRxOccurrence while this slot runs). Advancing
	// from a fresh read here, rather than from the slotStart snapshot taken
	// above, carries that correction into the next slot instead of
	// overwriting it with a deadline computed from stale state.
	defer func() {
		criticalsection.With(&d.mu, func() {
			d.asn++
			d.currentSlotStart = d.currentSlotStart.Add(d.cfg.Timings.TimeSlotLength)
		})
	}()

	slotOffset := uint16(asn % uint64(sf.Size))
	link, ok := sf.At(slotOffset)
	if !ok {
		return d.clk.DelayUntil(ctx, slotStart.Add(d.cfg.Timings.TimeSlotLength))
	}

	channel := hopping.Channel(asn, link.ChannelOffset)
	if err := d.radio.SetChannel(ctx, channel); err != nil {
		return fmt.Errorf("tsch: set channel: %w", errors.Join(err, ErrRadioError))
	}

	var queued *txRequest
	if link.Options.Has(ie.TschLinkOptionTx) {
		select {
		case req := <-d.txQueue:
			if req.dst.IsBroadcast() || link.Address.IsBroadcast() || addrEqual(req.dst, link.Address) {
				queued = &req
			} else {
				// Not for this link; put it back for the next matching occurrence.
				d.requeue(req)
			}
		default:
		}
	}

	switch {
	case queued != nil:
		return d.runTxOccurrence(ctx, slotStart, link, *queued)
	case link.Options.Has(ie.TschLinkOptionRx):
		return d.runRxOccurrence(ctx, slotStart, link)
	default:
		return d.clk.DelayUntil(ctx, slotStart.Add(d.cfg.Timings.TimeSlotLength))
	}
}

func addrEqual(a, b frame.Address) bool {
	return a.Mode() == b.Mode() && string(a.Bytes()) == string(b.Bytes())
}

func (d *Device) requeue(req txRequest) {
	select {
	case d.txQueue <- req:
	default:
	}
}

func (d *Device) runTxOccurrence(ctx context.Context, slotStart time.Time, link Link, req txRequest) error {
	t := d.cfg.Timings

	if err := d.clk.DelayUntil(ctx, slotStart.Add(t.CCAOffset)); err != nil {
		return err
	}
	if link.Options.Has(ie.TschLinkOptionShared) {
		clear, err := d.radio.CCA(ctx)
		if err != nil {
			return fmt.Errorf("tsch: cca: %w", errors.Join(err, ErrRadioError))
		}
		if !clear {
			d.requeue(req)
			return nil
		}
	}

	if err := d.clk.DelayUntil(ctx, slotStart.Add(t.TxOffset)); err != nil {
		return err
	}
	txAt := slotStart.Add(t.TxOffset)
	if _, err := d.radio.Transmit(ctx, req.frame, &txAt); err != nil {
		return fmt.Errorf("tsch: transmit: %w", errors.Join(err, ErrRadioError))
	}

	if !req.ackRequest {
		return nil
	}

	if err := d.clk.DelayUntil(ctx, slotStart.Add(t.RxAckDelay)); err != nil {
		return err
	}
	buf := make([]byte, radio.MaxPSDU)
	until := slotStart.Add(t.RxAckDelay).Add(t.AckWait)
	n, _, sfd, ok, err := d.radio.Receive(ctx, buf, until)
	if err != nil {
		return fmt.Errorf("tsch: ack receive: %w", errors.Join(err, ErrRadioError))
	}
	if !ok {
		d.log.Debug("tsch: no ack", "asn", slotStart)
		return nil
	}
	ackFrame, err := frame.Parse(buf[:n])
	if err == nil && link.Options.Has(ie.TschLinkOptionTimeKeeping) {
		expected := slotStart.Add(t.RxAckDelay)
		d.applyTimeCorrection(sfd.Sub(expected))
	}
	_ = ackFrame
	return nil
}

func (d *Device) runRxOccurrence(ctx context.Context, slotStart time.Time, link Link) error {
	t := d.cfg.Timings

	if err := d.clk.DelayUntil(ctx, slotStart.Add(t.RxOffset)); err != nil {
		return err
	}
	buf := make([]byte, radio.MaxPSDU)
	until := slotStart.Add(t.RxOffset).Add(t.RxWait)
	n, _, sfd, ok, err := d.radio.Receive(ctx, buf, until)
	if err != nil {
		return fmt.Errorf("tsch: rx: %w", errors.Join(err, ErrRadioError))
	}
	if !ok {
		return nil
	}

	fr, err := frame.Parse(buf[:n])
	if err != nil {
		return nil
	}

	var correction time.Duration
	if link.Options.Has(ie.TschLinkOptionTimeKeeping) {
		expected := slotStart.Add(t.RxOffset)
		correction = sfd.Sub(expected)
		d.applyTimeCorrection(correction)
	}

	if fr.FrameControl().AckRequest() {
		if err := d.clk.DelayUntil(ctx, slotStart.Add(t.TxAckDelay)); err != nil {
			return err
		}
		ackAt := slotStart.Add(t.TxAckDelay)
		seq, _ := fr.SequenceNumber()
		ack := buildEnhancedAck(seq, -correction)
		if _, err := d.radio.Transmit(ctx, ack, &ackAt); err != nil {
			return fmt.Errorf("tsch: ack transmit: %w", errors.Join(err, ErrRadioError))
		}
	}
	return nil
}

// applyTimeCorrection slews the device's local time offset by correction,
// bounded by Config.MaxTimeSlew so that one bad observation cannot pull the
// schedule far out of alignment.
func (d *Device) applyTimeCorrection(correction time.Duration) {
	if correction > d.cfg.MaxTimeSlew {
		correction = d.cfg.MaxTimeSlew
	}
	if correction < -d.cfg.MaxTimeSlew {
		correction = -d.cfg.MaxTimeSlew
	}
	criticalsection.With(&d.mu, func() {
		d.timeOffset += correction
		d.currentSlotStart = d.currentSlotStart.Add(correction)
	})
}

// buildEnhancedAck constructs a minimal Enhanced Ack frame carrying a Time
// Correction Header IE with the given correction, routed through the
// reusable Header IE builder rather than hand-packed descriptor bytes. The
// Ack carries no Payload IEs, so the list is terminated by Header
// Termination 2.
func buildEnhancedAck(seq uint8, correction time.Duration) []byte {
	b := frame.Builder{
		FrameType:      frame.FrameTypeAck,
		FrameVersion:   frame.FrameVersion2020,
		SequenceNumber: seq,
		HeaderIEs: ie.HeaderIEBuilder{
			IEs: []ie.HeaderIERepr{
				{
					ID:             ie.HeaderElementIDTimeCorrection,
					TimeCorrection: &ie.TimeCorrectionRepr{Correction: correction},
				},
			},
		},
	}
	buf := make([]byte, b.BufferLen())
	b.Emit(buf)
	return buf
}

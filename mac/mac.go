// Package mac composes the unslotted CSMA/CA engine and the TSCH scheduler
// behind a single Send/Recv driver, dispatching to whichever mode is
// currently configured. The two modes never run concurrently: a mutex
// enforces exclusive ownership of the shared radio.
package mac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gowpan/dot15d4/clock"
	"github.com/gowpan/dot15d4/criticalsection"
	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/mac/csma"
	"github.com/gowpan/dot15d4/mac/pib"
	"github.com/gowpan/dot15d4/mac/tsch"
	"github.com/gowpan/dot15d4/radio"
	randpkg "github.com/gowpan/dot15d4/rand"
)

// Result is the outcome of a Send call.
type Result uint8

const (
	Success Result = iota
	NoAck
	ChannelAccessFailure
	Dropped
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case NoAck:
		return "NoAck"
	case ChannelAccessFailure:
		return "ChannelAccessFailure"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// SendMeta carries per-send metadata the driver needs beyond the frame
// bytes themselves.
type SendMeta struct {
	Neighbor   frame.Address
	Sequence   uint8
	AckRequest bool
}

// RecvMeta carries metadata about a received frame.
type RecvMeta struct {
	Neighbor  frame.Address
	RSSI      int8
	LQI       uint8
	Timestamp time.Time
}

var (
	// ErrNoAck is returned when CSMA's retry budget is exhausted without a
	// matching ACK.
	ErrNoAck = csma.ErrNoAck
	// ErrChannelAccessFailure is returned when CSMA exhausts its backoff
	// budget without a clear channel.
	ErrChannelAccessFailure = csma.ErrChannelAccessFailure
	// ErrDropped is returned when a frame could not be sent for a reason
	// other than ack/channel failure (e.g. queue overflow in TSCH mode).
	ErrDropped = errors.New("mac: dropped")
	// ErrRadioError is propagated from the radio capability.
	ErrRadioError = errors.New("mac: radio error")
)

// Mode selects which engine currently owns the radio.
type Mode uint8

const (
	ModeCSMA Mode = iota
	ModeTSCH
)

// Config configures a Driver.
type Config struct {
	CSMA csma.Config
	TSCH tsch.Config
	// Pib is the durable attribute store both engines derive their backoff/
	// timing defaults and association state from. Nil creates a private one.
	Pib    *pib.Pib
	Logger *slog.Logger
}

// Driver composes the CSMA and TSCH engines behind one Send/Recv surface.
// The radio is exclusively owned by whichever engine is active; SetMode
// switches between frames, never mid-transmission.
type Driver struct {
	cfg Config
	r   radio.Radio
	clk clock.Clock
	log *slog.Logger

	modeMu sync.Mutex
	mode   Mode

	csmaEngine *csma.Engine
	tschDevice *tsch.Device

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New builds a Driver. r is the radio capability the driver exclusively
// owns; rng feeds CSMA's backoff draws; clk is the shared monotonic clock.
func New(cfg Config, r radio.Radio, rng randpkg.Source, clk clock.Clock) (*Driver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.CSMA.Logger = logger
	cfg.TSCH.Logger = logger

	if cfg.Pib == nil {
		cfg.Pib = pib.New()
	}
	applyPibDefaults(&cfg.CSMA, cfg.Pib)
	cfg.TSCH.Pib = cfg.Pib

	csmaEngine, err := csma.New(cfg.CSMA, r, rng, clk)
	if err != nil {
		return nil, fmt.Errorf("mac: csma: %w", err)
	}

	return &Driver{
		cfg:        cfg,
		r:          r,
		clk:        clk,
		log:        logger.With("component", "mac"),
		csmaEngine: csmaEngine,
		tschDevice: tsch.New(cfg.TSCH, r, clk),
		mode:       ModeCSMA,
	}, nil
}

// applyPibDefaults seeds any unset CSMA backoff/retry/inter-frame-spacing
// fields from p, mirroring Config.applyDefaults' own zero-value checks so
// an explicit Config value always wins over the Pib.
func applyPibDefaults(c *csma.Config, p *pib.Pib) {
	minBE, maxBE, maxFrameRetries, maxCSMABackoffs := p.CSMAParams()
	if c.MinBE == 0 && c.MaxBE == 0 {
		c.MinBE, c.MaxBE = minBE, maxBE
	}
	if c.MaxFrameRetries == 0 {
		c.MaxFrameRetries = maxFrameRetries
	}
	if c.MaxCSMABackoffs == 0 {
		c.MaxCSMABackoffs = maxCSMABackoffs
	}
	sifs, lifs := p.InterFrameSpacing()
	if c.SIFS == 0 {
		c.SIFS = sifs
	}
	if c.LIFS == 0 {
		c.LIFS = lifs
	}
}

// Pib returns the attribute store shared by this driver's CSMA and TSCH
// engines.
func (d *Driver) Pib() *pib.Pib { return d.cfg.Pib }

// Mode returns the driver's current mode.
func (d *Driver) Mode() Mode {
	var m Mode
	criticalsection.With(&d.modeMu, func() { m = d.mode })
	return m
}

// SetMode switches the active mode. It blocks until any in-flight Send
// using the previous mode's engine would have released the radio; callers
// should not call this concurrently with Send.
func (d *Driver) SetMode(m Mode) {
	criticalsection.With(&d.modeMu, func() { d.mode = m })
}

// Start launches the TSCH scheduler's background goroutine using an
// errgroup, so that its exit (error or clean shutdown) is observable via
// Wait. CSMA needs no background goroutine: it runs entirely within Send.
func (d *Driver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	d.group = g
	g.Go(func() error {
		return d.tschDevice.Start(gctx)
	})
	return nil
}

// Stop cancels the driver's background goroutines and waits for them to exit.
func (d *Driver) Stop() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.tschDevice != nil {
		_ = d.tschDevice.Stop()
	}
	if d.group != nil {
		return d.group.Wait()
	}
	return nil
}

// Send transmits fr, dispatching to CSMA or TSCH depending on the driver's
// current mode.
func (d *Driver) Send(ctx context.Context, fr []byte, meta SendMeta) (Result, error) {
	switch d.Mode() {
	case ModeTSCH:
		if !d.tschDevice.Associated() {
			return Dropped, fmt.Errorf("mac: tsch send: %w", tsch.ErrNotAssociated)
		}
		if err := d.tschDevice.Enqueue(meta.Neighbor, fr, meta.Sequence, meta.AckRequest); err != nil {
			return Dropped, fmt.Errorf("mac: tsch send: %w", errors.Join(err, ErrDropped))
		}
		return Success, nil
	default:
		res, err := d.csmaEngine.Send(ctx, fr, meta.Sequence, meta.AckRequest)
		return translateCSMAResult(res), err
	}
}

func translateCSMAResult(r csma.Result) Result {
	switch r {
	case csma.Success:
		return Success
	case csma.NoAck:
		return NoAck
	case csma.ChannelAccessFailure:
		return ChannelAccessFailure
	default:
		return Dropped
	}
}

// Recv reads the next frame into buf, delegating directly to the radio:
// in CSMA mode the caller drives reception at the application layer's
// pace; in TSCH mode frames are delivered by the scheduler's RX link
// occurrences and this simply surfaces whatever the radio last buffered.
func (d *Driver) Recv(ctx context.Context, buf []byte) (int, RecvMeta, error) {
	until := d.clk.Now().Add(time.Second)
	n, rssi, sfd, ok, err := d.r.Receive(ctx, buf, until)
	if err != nil {
		return 0, RecvMeta{}, fmt.Errorf("mac: recv: %w", errors.Join(err, ErrRadioError))
	}
	if !ok {
		return 0, RecvMeta{}, nil
	}
	meta := RecvMeta{RSSI: rssi, Timestamp: sfd}
	if fr, err := frame.Parse(buf[:n]); err == nil {
		if src, err := fr.Addressing().SrcAddress(); err == nil {
			meta.Neighbor = src
		}
	}
	return n, meta, nil
}

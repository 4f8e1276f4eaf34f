// Package csma implements the unslotted IEEE 802.15.4 CSMA/CA engine: the
// binary-exponential-backoff, clear-channel-assessment, and retry state
// machine driving a single outgoing frame to Success, NoAck,
// ChannelAccessFailure, or Dropped.
package csma

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowpan/dot15d4/clock"
	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/radio"
	randpkg "github.com/gowpan/dot15d4/rand"
)

// Result is the outcome of one CSMA/CA-driven frame transmission.
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

// Error kinds surfaced by the engine.
var (
	ErrNoAck                = errors.New("csma: no ack received")
	ErrChannelAccessFailure = errors.New("csma: channel access failure")
	ErrDropped              = errors.New("csma: dropped")
	ErrRadioError           = errors.New("csma: radio error")
	ErrInvalidConfig        = errors.New("csma: invalid config")
)

// Default parameter values (IEEE 802.15.4-2020 unslotted CSMA/CA defaults).
const (
	DefaultMinBE           = 0
	DefaultMaxBE           = 8
	DefaultMaxCSMABackoffs = 16
	DefaultMaxFrameRetries = 3
	DefaultUnitBackoff     = 320 * time.Microsecond
	DefaultAckWait         = 400 * time.Microsecond
	DefaultSIFS            = time.Millisecond
	DefaultLIFS            = 10 * time.Millisecond
	// MaxSIFSFrameSize is the largest payload, in octets, still eligible for
	// the shorter SIFS inter-frame spacing; longer frames observe LIFS.
	MaxSIFSFrameSize = 18
)

// Config configures an Engine. Zero-value fields fall back to the defaults
// above; out-of-range values are rejected by New with a wrapped
// ErrInvalidConfig.
type Config struct {
	MinBE           int
	MaxBE           int
	MaxCSMABackoffs int
	MaxFrameRetries int
	UnitBackoff     time.Duration
	AckWait         time.Duration
	SIFS            time.Duration
	LIFS            time.Duration
	Logger          *slog.Logger
}

func (c *Config) applyDefaults() error {
	if c.MinBE == 0 && c.MaxBE == 0 {
		c.MinBE, c.MaxBE = DefaultMinBE, DefaultMaxBE
	}
	if c.MaxCSMABackoffs == 0 {
		c.MaxCSMABackoffs = DefaultMaxCSMABackoffs
	}
	if c.MaxFrameRetries == 0 {
		c.MaxFrameRetries = DefaultMaxFrameRetries
	}
	if c.UnitBackoff == 0 {
		c.UnitBackoff = DefaultUnitBackoff
	}
	if c.AckWait == 0 {
		c.AckWait = DefaultAckWait
	}
	if c.SIFS == 0 {
		c.SIFS = DefaultSIFS
	}
	if c.LIFS == 0 {
		c.LIFS = DefaultLIFS
	}
	if c.MinBE < 0 || c.MaxBE < c.MinBE {
		return fmt.Errorf("min_be=%d max_be=%d: %w", c.MinBE, c.MaxBE, ErrInvalidConfig)
	}
	if c.MaxCSMABackoffs < 0 || c.MaxFrameRetries < 0 {
		return fmt.Errorf("max_csma_backoffs=%d max_frame_retries=%d: %w", c.MaxCSMABackoffs, c.MaxFrameRetries, ErrInvalidConfig)
	}
	return nil
}

// Engine drives one outgoing frame through the CSMA/CA state machine. It is
// not safe for concurrent Send calls: the radio and PRNG it holds are
// exclusively owned by one transmission at a time, matching the driver's
// mode-switch mutex.
type Engine struct {
	cfg   Config
	radio radio.Radio
	rng   randpkg.Source
	clk   clock.Clock
	log   *slog.Logger
}

// New builds an Engine. r is the exclusively-owned radio capability, rng
// the PRNG source for backoff draws, clk the shared monotonic clock.
func New(cfg Config, r radio.Radio, rng randpkg.Source, clk clock.Clock) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:   cfg,
		radio: r,
		rng:   rng,
		clk:   clk,
		log:   logger.With("component", "csma"),
	}, nil
}

// Send drives frame (a complete, FCS-appended MAC frame) through the
// CSMA/CA state machine: backoff, CCA, transmit, and — if ackRequest is
// true — an ACK wait keyed by seq, with the standard's frame-retry budget.
// The frame's own Frame Control AR bit is not consulted.
func (e *Engine) Send(ctx context.Context, fr []byte, seq uint8, ackRequest bool) (Result, error) {
	log := e.log.With("seq", seq)
	retries := 0

	for {
		be := e.cfg.MinBE
		nb := 0

		for {
			delay := e.backoffDelay(be)
			if delay > 0 {
				if err := e.clk.DelayUntil(ctx, e.clk.Now().Add(delay)); err != nil {
					return Dropped, fmt.Errorf("csma: backoff wait: %w", err)
				}
			}

			clear, err := e.radio.CCA(ctx)
			if err != nil {
				return Dropped, fmt.Errorf("csma: cca: %w", errors.Join(err, ErrRadioError))
			}
			if clear {
				break
			}

			nb++
			be = min(be+1, e.cfg.MaxBE)
			if nb > e.cfg.MaxCSMABackoffs {
				log.Debug("channel access failure", "backoffs", nb)
				return ChannelAccessFailure, ErrChannelAccessFailure
			}
		}

		sfd, err := e.radio.Transmit(ctx, fr, nil)
		if err != nil {
			return Dropped, fmt.Errorf("csma: transmit: %w", errors.Join(err, ErrRadioError))
		}
		_ = sfd

		if !ackRequest {
			log.Debug("transmit succeeded, no ack requested")
			return Success, nil
		}

		e.radio.EnableAckFiltering(seq)
		ok, err := e.waitForAck(ctx, seq)
		e.radio.DisableAckFiltering()
		if err != nil {
			return Dropped, fmt.Errorf("csma: ack wait: %w", errors.Join(err, ErrRadioError))
		}
		if ok {
			log.Debug("ack received")
			return Success, nil
		}

		retries++
		if retries > e.cfg.MaxFrameRetries {
			log.Debug("no ack after retries", "retries", retries)
			return NoAck, ErrNoAck
		}
		log.Debug("retrying after ack timeout", "retries", retries)
	}
}

// backoffDelay draws a random number of unit-backoff periods uniformly from
// [0, 2^BE - 1] and returns the resulting duration. BE=0 yields a
// zero-duration delay: immediate CCA.
func (e *Engine) backoffDelay(be int) time.Duration {
	maxBackoff := uint32(1)<<uint(be) - 1
	periods := e.rng.NextU32() % (maxBackoff + 1)
	return time.Duration(periods) * e.cfg.UnitBackoff
}

func (e *Engine) waitForAck(ctx context.Context, seq uint8) (bool, error) {
	until := e.clk.Now().Add(e.cfg.AckWait)
	buf := make([]byte, radio.MaxPSDU)
	for {
		now := e.clk.Now()
		if !now.Before(until) {
			return false, nil
		}
		n, _, _, ok, err := e.radio.Receive(ctx, buf, until)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		f, err := frame.Parse(buf[:n])
		if err != nil {
			continue
		}
		if f.FrameControl().FrameType() != frame.FrameTypeAck {
			continue
		}
		gotSeq, present := f.SequenceNumber()
		if present && gotSeq == seq {
			return true, nil
		}
	}
}

// InterFrameSpacing returns the inter-frame spacing a caller should observe
// after transmitting or receiving a frame of payloadLen octets: SIFS for
// short frames (<= MaxSIFSFrameSize), LIFS otherwise.
func (e *Engine) InterFrameSpacing(payloadLen int) time.Duration {
	if payloadLen <= MaxSIFSFrameSize {
		return e.cfg.SIFS
	}
	return e.cfg.LIFS
}

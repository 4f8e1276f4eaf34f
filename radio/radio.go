// Package radio defines the abstract hardware radio contract the MAC
// engines drive, plus a software LoopbackRadio used by tests and the
// capture bridge. Concrete hardware drivers are out of scope for this
// library.
package radio

import (
	"context"
	"errors"
	"time"
)

// ErrRadioError is returned by Radio operations that fail at the hardware
// or simulated-hardware layer.
var ErrRadioError = errors.New("radio: error")

// MaxPSDU is the upper bound on a PHY Service Data Unit in octets.
const MaxPSDU = 127

// Radio is the abstract contract a radio driver must satisfy: channel
// selection, clear-channel assessment, asynchronous transmit and receive,
// and ACK-filtering hints. All operations accept a context for cancellation.
type Radio interface {
	// SetChannel tunes the radio and returns once the PLL has settled.
	SetChannel(ctx context.Context, channel uint8) error

	// CCA performs one energy-detect or carrier-sense window and reports
	// whether the channel was clear.
	CCA(ctx context.Context) (clear bool, err error)

	// Transmit sends frame. If at is non-nil, the first symbol is placed
	// on-air within timing tolerance of that instant. It returns the
	// hardware timestamp of the start-of-frame delimiter.
	Transmit(ctx context.Context, frame []byte, at *time.Time) (sfd time.Time, err error)

	// Receive returns the first frame whose SFD arrives before until. If no
	// frame arrives in time, ok is false and err is nil.
	Receive(ctx context.Context, into []byte, until time.Time) (n int, rssi int8, sfd time.Time, ok bool, err error)

	// EnableAckFiltering hints that only an ACK matching seq is of interest.
	EnableAckFiltering(seq uint8)

	// DisableAckFiltering clears any filtering hint set by EnableAckFiltering.
	DisableAckFiltering()
}

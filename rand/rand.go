// Package rand provides the CSMA/CA backoff randomness capability.
package rand

import "math/rand/v2"

// Source provides uniformly distributed 32-bit words for the CSMA/CA
// backoff window draw.
type Source interface {
	NextU32() uint32
}

// Default wraps math/rand/v2's global source.
type Default struct{}

// New returns the default Source, backed by math/rand/v2.
func New() Default { return Default{} }

func (Default) NextU32() uint32 {
	return rand.Uint32()
}

// Fixed is a deterministic Source for tests: it replays a fixed sequence,
// wrapping around when exhausted.
type Fixed struct {
	values []uint32
	pos    int
}

// NewFixed returns a Source that replays values in order, repeating once
// exhausted.
func NewFixed(values ...uint32) *Fixed {
	if len(values) == 0 {
		values = []uint32{0}
	}
	return &Fixed{values: values}
}

func (f *Fixed) NextU32() uint32 {
	v := f.values[f.pos%len(f.values)]
	f.pos++
	return v
}

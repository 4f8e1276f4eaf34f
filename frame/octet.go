// Package frame implements IEEE 802.15.4-2020 MAC frame parsing and emission:
// Frame Control, addressing, the auxiliary security header, Information
// Elements and the frame check sequence. Readers borrow their backing slice
// and never copy it; callers must not retain a reader past the lifetime of
// the buffer it was built over.
package frame

import (
	"encoding/binary"
	"errors"
)

// Error kinds surfaced by the codec. Callers should use errors.Is against
// these sentinels; call sites wrap them with additional context.
var (
	// ErrMalformed indicates truncated or self-inconsistent bytes.
	ErrMalformed = errors.New("frame: malformed")
	// ErrUnsupported indicates a recognized construct this library refuses
	// to handle, such as frame version 3.
	ErrUnsupported = errors.New("frame: unsupported")
	// ErrInvalidFCS indicates a frame check sequence mismatch.
	ErrInvalidFCS = errors.New("frame: invalid fcs")
)

// octets is a small bounds-checked little-endian cursor over a borrowed
// byte slice. It never allocates and never copies the input.
type octets struct {
	b []byte
}

func (o octets) len() int { return len(o.b) }

func (o octets) requireLen(n int) error {
	if len(o.b) < n {
		return ErrMalformed
	}
	return nil
}

func (o octets) u8(off int) (uint8, error) {
	if err := o.requireLen(off + 1); err != nil {
		return 0, err
	}
	return o.b[off], nil
}

func (o octets) u16(off int) (uint16, error) {
	if err := o.requireLen(off + 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(o.b[off:]), nil
}

func (o octets) u32(off int) (uint32, error) {
	if err := o.requireLen(off + 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(o.b[off:]), nil
}

// u40 reads a 40-bit little-endian unsigned integer (the width of the ASN
// field).
func (o octets) u40(off int) (uint64, error) {
	if err := o.requireLen(off + 5); err != nil {
		return 0, err
	}
	buf := [8]byte{}
	copy(buf[:5], o.b[off:off+5])
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (o octets) bytes(off, n int) ([]byte, error) {
	if err := o.requireLen(off + n); err != nil {
		return nil, err
	}
	return o.b[off : off+n], nil
}

// putU16 writes v little-endian at off, growing cap checks are the caller's
// responsibility (the caller pre-sizes the buffer before writing).
func putU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:], v)
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func putU40(b []byte, off int, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(b[off:off+5], buf[:5])
}

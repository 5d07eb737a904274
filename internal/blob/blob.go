// Package blob implements the length-prefixed byte buffer described in §4.2:
// append/retrieve of typed values and fixed-width little-endian helpers. The
// property-triple encoding built on it lives in internal/recordcodec.
package blob

import (
	"encoding/binary"
	"math"
)

// Blob is a growable little-endian byte buffer with typed append/retrieve,
// grounded in the original Bytes class (toTinyInt/toSmallInt/.../toReal/toText).
type Blob struct {
	buf []byte
}

// New returns an empty Blob ready for appending.
func New() *Blob { return &Blob{} }

// FromBytes wraps an existing buffer for retrieval without copying.
func FromBytes(b []byte) *Blob { return &Blob{buf: b} }

// Bytes returns the underlying buffer.
func (b *Blob) Bytes() []byte { return b.buf }

// Len returns the number of bytes currently held.
func (b *Blob) Len() int { return len(b.buf) }

// Append appends raw bytes and returns the offset they were written at.
func (b *Blob) Append(p []byte) int {
	off := len(b.buf)
	b.buf = append(b.buf, p...)
	return off
}

// AppendUint16 appends a little-endian uint16.
func (b *Blob) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint32 appends a little-endian uint32.
func (b *Blob) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Append(tmp[:])
}

// AppendUint64 appends a little-endian uint64.
func (b *Blob) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.Append(tmp[:])
}

// AppendByte appends a single byte.
func (b *Blob) AppendByte(v byte) { b.buf = append(b.buf, v) }

// AppendReal appends a little-endian IEEE-754 double.
func (b *Blob) AppendReal(v float64) { b.AppendUint64(math.Float64bits(v)) }

// Retrieve copies n bytes starting at offset into a new slice.
func (b *Blob) Retrieve(offset, n int) []byte {
	if offset < 0 || n < 0 || offset+n > len(b.buf) {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.buf[offset:offset+n])
	return out
}

// Uint16At reads a little-endian uint16 at offset.
func Uint16At(buf []byte, offset int) uint16 { return binary.LittleEndian.Uint16(buf[offset:]) }

// Uint32At reads a little-endian uint32 at offset.
func Uint32At(buf []byte, offset int) uint32 { return binary.LittleEndian.Uint32(buf[offset:]) }

// Uint64At reads a little-endian uint64 at offset.
func Uint64At(buf []byte, offset int) uint64 { return binary.LittleEndian.Uint64(buf[offset:]) }

// RealAt reads a little-endian IEEE-754 double at offset.
func RealAt(buf []byte, offset int) float64 {
	return math.Float64frombits(Uint64At(buf, offset))
}

// PutUint16At overwrites a little-endian uint16 in place at offset.
func PutUint16At(buf []byte, offset int, v uint16) { binary.LittleEndian.PutUint16(buf[offset:], v) }

// PutUint32At overwrites a little-endian uint32 in place at offset.
func PutUint32At(buf []byte, offset int, v uint32) { binary.LittleEndian.PutUint32(buf[offset:], v) }

// PutUint64At overwrites a little-endian uint64 in place at offset.
func PutUint64At(buf []byte, offset int, v uint64) { binary.LittleEndian.PutUint64(buf[offset:], v) }

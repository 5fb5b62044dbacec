// Package canon implements the single byte-exact serialization scheme that
// every cryptographic hash and signature in the sidechain is computed over:
// a compact, little-endian, length-prefixed format. It intentionally does
// not reuse a general-purpose codec (protobuf, gob, borsh) because the
// on-disk/on-wire byte layout must stay pinned across releases; a generic
// codec's framing is an implementation detail we cannot promise to freeze.
package canon

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoder accumulates canonical bytes. The zero value is ready to use.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns a ready-to-use Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Byte appends a single byte, typically an enum discriminant.
func (e *Encoder) Byte(b byte) *Encoder {
	e.buf.WriteByte(b)
	return e
}

// Uint32 appends a 4-byte little-endian integer.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Uint64 appends an 8-byte little-endian integer.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Int64 appends a signed 8-byte little-endian integer, used for heights
// (which carry a -1 "no blocks connected yet" sentinel).
func (e *Encoder) Int64(v int64) *Encoder {
	return e.Uint64(uint64(v))
}

// Bool appends a single-byte boolean.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.Byte(1)
	}
	return e.Byte(0)
}

// Fixed appends raw bytes with no length prefix, for fixed-width fields
// (hashes, addresses) whose length is implied by the type.
func (e *Encoder) Fixed(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// VarBytes appends a length-prefixed byte slice.
func (e *Encoder) VarBytes(b []byte) *Encoder {
	e.Uint64(uint64(len(b)))
	e.buf.Write(b)
	return e
}

// Len appends the length prefix for a slice-of-T field; callers then encode
// each element themselves.
func (e *Encoder) Len(n int) *Encoder {
	return e.Uint64(uint64(n))
}

// Optional appends a presence byte, followed by present(e) iff v is true.
func (e *Encoder) Optional(v bool, present func(*Encoder)) *Encoder {
	e.Bool(v)
	if v {
		present(e)
	}
	return e
}

// Decoder reads canonical bytes in the same order an Encoder wrote them.
type Decoder struct {
	b   []byte
	off int
}

// NewDecoder wraps b for sequential canonical decoding.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{b: b}
}

func (d *Decoder) need(n int) error {
	if d.off+n > len(d.b) {
		return fmt.Errorf("canon: short buffer: need %d bytes at offset %d, have %d", n, d.off, len(d.b))
	}
	return nil
}

// Byte reads a single byte.
func (d *Decoder) Byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.b[d.off]
	d.off++
	return b, nil
}

// Uint32 reads a 4-byte little-endian integer.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

// Uint64 reads an 8-byte little-endian integer.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

// Int64 reads a signed 8-byte little-endian integer.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// Bool reads a single-byte boolean.
func (d *Decoder) Bool() (bool, error) {
	b, err := d.Byte()
	return b != 0, err
}

// Fixed reads exactly n raw bytes.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.b[d.off : d.off+n]
	d.off += n
	return b, nil
}

// VarBytes reads a length-prefixed byte slice.
func (d *Decoder) VarBytes() ([]byte, error) {
	n, err := d.Uint64()
	if err != nil {
		return nil, err
	}
	return d.Fixed(int(n))
}

// Len reads a slice length prefix.
func (d *Decoder) Len() (int, error) {
	n, err := d.Uint64()
	return int(n), err
}

// Remaining reports whether unconsumed bytes remain.
func (d *Decoder) Remaining() int {
	return len(d.b) - d.off
}

// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

// Package mu implements bit-exact marshalling and unmarshalling of the
// primitive and aggregate types used by the TPM 2.0 wire format: all
// integers big-endian, length-prefixed buffers, count-prefixed lists, and
// tagged unions.
//
// Unlike github.com/canonical/go-tpm2's mu package, this one does not use
// reflection: every type implements Marshaler/Unmarshaler by hand. That
// keeps decoding zero-copy (Unmarshal can return slices aliasing the
// input buffer) and makes lazy, re-parse-on-demand list decoding
// straightforward, both of which a generic reflection walk over struct
// tags would fight against.
package mu

import (
	"encoding/binary"
	"fmt"

	"github.com/canonical-labs/tpm2engine/internal/errkind"
)

// Marshaler is implemented by any type that can encode itself to the TPM
// wire format.
type Marshaler interface {
	Marshal(w *Writer) error
}

// Unmarshaler is implemented by any type that can decode itself from the
// TPM wire format. Implementations may retain slices of the Reader's
// backing array (zero-copy); such slices are valid only as long as that
// backing array isn't reused.
type Unmarshaler interface {
	Unmarshal(r *Reader) error
}

// Fixed is implemented by types whose encoding has a size known without
// inspecting the value (e.g. Handle, AlgorithmId). This lets a framer reserve a fixed-width hole in an output
// buffer before the value exists, to patch in later.
type Fixed interface {
	Marshaler
	Size() int
}

// Writer is a mutable byte cursor: values write themselves into it,
// advancing its position. It never grows its backing buffer; writing past
// the end of the buffer is a BufferOverflow error.
type Writer struct {
	buf []byte
	off int
}

// NewWriter wraps buf for writing starting at offset 0.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// Off returns the writer's current offset.
func (w *Writer) Off() int { return w.off }

// Bytes returns the portion of the underlying buffer written so far.
func (w *Writer) Bytes() []byte { return w.buf[:w.off] }

// Remaining returns how many bytes of room are left in the buffer.
func (w *Writer) Remaining() int { return len(w.buf) - w.off }

func (w *Writer) reserve(n int) ([]byte, error) {
	if n > w.Remaining() {
		return nil, errkind.MarshalBufferOverflow
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

// PutUint8 writes a single byte.
func (w *Writer) PutUint8(v uint8) error {
	b, err := w.reserve(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// PutBool writes a boolean as a single byte: 0x00 or 0x01.
func (w *Writer) PutBool(v bool) error {
	if v {
		return w.PutUint8(1)
	}
	return w.PutUint8(0)
}

// PutUint16 writes a 16-bit big-endian integer.
func (w *Writer) PutUint16(v uint16) error {
	b, err := w.reserve(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

// PutUint32 writes a 32-bit big-endian integer.
func (w *Writer) PutUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

// PutUint64 writes a 64-bit big-endian integer.
func (w *Writer) PutUint64(v uint64) error {
	b, err := w.reserve(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

// PutRaw writes p with no length prefix.
func (w *Writer) PutRaw(p []byte) error {
	b, err := w.reserve(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// PutBuffer writes p as a TPM2B-style sized buffer: a 16-bit big-endian
// length prefix followed by the bytes.
func (w *Writer) PutBuffer(p []byte) error {
	if len(p) > 0xFFFF {
		return errkind.MarshalIntegerOverflow
	}
	if err := w.PutUint16(uint16(len(p))); err != nil {
		return err
	}
	return w.PutRaw(p)
}

// Reserve carves out n bytes for a value to be patched in later (used for
// the command/response header and for the auth-area size field, whose
// final value isn't known until the body that follows has been written).
// It returns the offset of the reserved region.
func (w *Writer) Reserve(n int) (int, error) {
	off := w.off
	if _, err := w.reserve(n); err != nil {
		return 0, err
	}
	return off, nil
}

// PatchUint32 overwrites a previously reserved 4-byte region at off.
func (w *Writer) PatchUint32(off int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[off:off+4], v)
}

// PatchUint16 overwrites a previously reserved 2-byte region at off.
func (w *Writer) PatchUint16(off int, v uint16) {
	binary.BigEndian.PutUint16(w.buf[off:off+2], v)
}

// PutFixed writes v using its own Marshal method; it exists purely to
// document call sites that rely on v.Size() being known up front.
func PutFixed(w *Writer, v Fixed) error {
	return v.Marshal(w)
}

// Marshal writes v to w.
func Marshal(w *Writer, v Marshaler) error {
	return v.Marshal(w)
}

// Reader is an immutable byte cursor: values parse themselves from it,
// advancing its position. Unmarshal implementations may return slices
// that alias the Reader's backing array.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for reading starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Remaining returns the unread portion of the underlying buffer,
// without advancing the cursor.
func (r *Reader) Remaining() []byte { return r.buf[r.off:] }

func (r *Reader) take(n int) ([]byte, error) {
	if n > r.Len() {
		return nil, errkind.UnmarshalBufferOverflow
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// GetUint8 reads a single byte.
func (r *Reader) GetUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// GetBool reads a boolean. Only 0x00 and 0x01 are valid; any other byte
// is an InvalidValue error.
func (r *Reader) GetBool() (bool, error) {
	v, err := r.GetUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: boolean byte 0x%02x", errkind.UnmarshalInvalidValue, v)
	}
}

// GetUint16 reads a 16-bit big-endian integer.
func (r *Reader) GetUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// GetUint32 reads a 32-bit big-endian integer.
func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// GetUint64 reads a 64-bit big-endian integer.
func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetRaw reads exactly n bytes with no length prefix, returning a slice
// that aliases the reader's backing array.
func (r *Reader) GetRaw(n int) ([]byte, error) {
	return r.take(n)
}

// GetBuffer reads a TPM2B-style sized buffer: a 16-bit big-endian length
// prefix followed by that many bytes. The returned slice aliases the
// reader's backing array (zero-copy).
func (r *Reader) GetBuffer() ([]byte, error) {
	n, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// Unmarshal parses v from r.
func Unmarshal(r *Reader, v Unmarshaler) error {
	return v.Unmarshal(r)
}

// MarshalList writes list as a TPML-style array: a 32-bit big-endian
// element count followed by each element's own encoding.
func MarshalList[T Marshaler](w *Writer, list []T) error {
	if uint64(len(list)) > 0xFFFFFFFF {
		return errkind.MarshalIntegerOverflow
	}
	if err := w.PutUint32(uint32(len(list))); err != nil {
		return err
	}
	for i := range list {
		if err := list[i].Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalList reads a TPML-style array into a freshly allocated slice.
// PT lets a value type T satisfy Unmarshaler through its pointer receiver,
// the usual shape for Unmarshal methods (they need to mutate the
// receiver).
func UnmarshalList[T any, PT interface {
	*T
	Unmarshaler
}](r *Reader) ([]T, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if err := PT(&out[i]).Unmarshal(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LazyList is a TPML-style array whose elements are parsed on demand
// rather than all at once. Unmarshaling a LazyList still walks every
// element once, to validate framing and to find where the list ends, but
// it discards the decoded values rather than retaining them; Iter
// re-parses from the retained raw bytes. This avoids holding a second
// decoded copy of a list a caller may only partially consume.
type LazyList[T any] struct {
	data   []byte
	count  uint32
	decode func(r *Reader) (T, error)
}

// UnmarshalLazyList reads a TPML-style array's count and validates that
// decode can parse exactly that many elements from r, then returns a
// LazyList that can be iterated later without re-validating.
func UnmarshalLazyList[T any](r *Reader, decode func(r *Reader) (T, error)) (LazyList[T], error) {
	n, err := r.GetUint32()
	if err != nil {
		return LazyList[T]{}, err
	}
	start := r.off
	for i := uint32(0); i < n; i++ {
		if _, err := decode(r); err != nil {
			return LazyList[T]{}, err
		}
	}
	data := r.buf[start:r.off]
	return LazyList[T]{data: data, count: n, decode: decode}, nil
}

// Len returns the number of elements in the list.
func (l LazyList[T]) Len() int { return int(l.count) }

// Iter returns a fresh iterator over the list's elements, re-parsing the
// retained raw bytes from the start.
func (l LazyList[T]) Iter() *LazyListIter[T] {
	return &LazyListIter[T]{r: NewReader(l.data), remaining: l.count, decode: l.decode}
}

// LazyListIter walks a LazyList's elements one at a time.
type LazyListIter[T any] struct {
	r         *Reader
	remaining uint32
	decode    func(r *Reader) (T, error)
}

// Next returns the next element, or ok == false once the list is
// exhausted. A decode error here indicates the retained bytes were
// corrupted after UnmarshalLazyList validated them, which should not
// happen in practice since the bytes are never mutated.
func (it *LazyListIter[T]) Next() (v T, ok bool, err error) {
	if it.remaining == 0 {
		return v, false, nil
	}
	v, err = it.decode(it.r)
	if err != nil {
		return v, false, err
	}
	it.remaining--
	return v, true, nil
}

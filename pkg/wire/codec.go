package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrNeedMoreBytes signals that a frame is not yet fully buffered; the
// caller should wait for more reads rather than treating this as failure.
var ErrNeedMoreBytes = errors.New("wire: need more bytes")

// ErrTooLarge signals a body_length beyond MaxBodySize; the Connection
// that produced it must be closed.
var ErrTooLarge = errors.New("wire: frame exceeds maximum body size")

// ErrMalformed signals a structurally invalid body (truncated string,
// negative-looking count, etc.) found mid-decode.
var ErrMalformed = errors.New("wire: malformed body")

// Reader walks a byte slice extracting the tagged primitives that make up
// a decoded RPC body. String and Bytes return copies, so their results stay
// valid after the backing slice is reused.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left to consume.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrNeedMoreBytes
	}
	return nil
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Uint64 reads a big-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Float64 reads an IEEE-754 big-endian double.
func (r *Reader) Float64() (float64, error) {
	bits, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// String reads a [u32 len][bytes] string. A length of 0xFFFFFFFF decodes
// to "", ok=false, distinguishing null from empty.
func (r *Reader) String() (s string, ok bool, err error) {
	n, err := r.Uint32()
	if err != nil {
		return "", false, err
	}
	if n == nullStringLen {
		return "", false, nil
	}
	if n > uint32(MaxBodySize) {
		return "", false, ErrMalformed
	}
	if err := r.need(int(n)); err != nil {
		return "", false, err
	}
	s = string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, true, nil
}

// Bytes reads a [u32 len][bytes] blob with no null sentinel.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if n > uint32(MaxBodySize) {
		return nil, ErrMalformed
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

// ArrayCount reads the [u32 count] prefix of an array; the caller loops
// count times decoding elements itself.
func (r *Reader) ArrayCount() (uint32, error) {
	return r.Uint32()
}

// Writer accumulates tagged primitives into a growing byte buffer in the
// same order a matching Reader expects them.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// PutUint16 appends a big-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

// PutUint32 appends a big-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

// PutUint64 appends a big-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// PutFloat64 appends an IEEE-754 big-endian double.
func (w *Writer) PutFloat64(v float64) {
	w.PutUint64(math.Float64bits(v))
}

// PutString appends a [u32 len][bytes] string. ok=false encodes the null
// sentinel regardless of s's content.
func (w *Writer) PutString(s string, ok bool) {
	if !ok {
		w.PutUint32(nullStringLen)
		return
	}
	w.PutUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// PutStringOrNull is shorthand for PutString(s, s != "").
func (w *Writer) PutStringOrNull(s string) {
	w.PutString(s, s != "")
}

// PutBytes appends a [u32 len][bytes] blob.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutArrayCount appends the [u32 count] prefix of an array.
func (w *Writer) PutArrayCount(n int) {
	w.PutUint32(uint32(n))
}

// checkVersion validates version falls within the supported window.
func checkVersion(version uint16) error {
	if version < MinProtocolVersion || version > CurrentProtocolVersion {
		return fmt.Errorf("%w: unsupported protocol version %d", ErrMalformed, version)
	}
	return nil
}

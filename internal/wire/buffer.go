package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// ErrDecode is returned for any malformed frame or snapshot: truncated
// input, an unrecognized tag byte, or a length prefix that does not fit
// the remaining buffer. Per spec, decode failures are always local and
// recoverable — the caller drops the frame (or, for a snapshot load,
// substitutes a default region) and continues.
var ErrDecode = errors.New("wire: decode error")

// writer accumulates a canonical little-endian encoding.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 256)} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) putUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putFloat32(v float32) {
	w.putUint32(math.Float32bits(v))
}

func (w *writer) putUUID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

func (w *writer) putBytesLP(p []byte) {
	w.putUint32(uint32(len(p)))
	w.buf = append(w.buf, p...)
}

// reader consumes a canonical little-endian encoding, tracking position
// and refusing to read past the end of the buffer.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrDecode
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) getUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) getUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) getUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) getFloat32() (float32, error) {
	v, err := r.getUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *reader) getUUID() (uuid.UUID, error) {
	b, err := r.take(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

func (r *reader) getBytesLP() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

func (r *reader) atEnd() bool { return r.remaining() == 0 }

// Package transport is the QUIC listener and length-delimited framing that
// carries wire.Request/wire.Response frames between a client and its
// session. It knows nothing about Request/Response semantics — that is
// internal/session's job — only about getting opaque byte payloads across
// a stream intact.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLength is the largest payload ReadFrame/WriteFrame will carry,
// matching original_source's fixed 65535-byte read buffer.
const MaxFrameLength = 65535

var (
	// ErrConnectionLost is returned when the underlying stream fails or
	// closes mid-frame; the caller should trip its kill switch.
	ErrConnectionLost = errors.New("transport: connection lost")
	// ErrFrameTooLarge is returned when a frame's length prefix exceeds
	// MaxFrameLength. The oversize frame's bytes are discarded so the
	// stream stays in sync; the caller may keep reading subsequent frames.
	ErrFrameTooLarge = errors.New("transport: frame too large")
)

// ReadFrame reads one 4-byte little-endian length prefix plus payload from
// r. On ErrFrameTooLarge the oversize payload has already been drained
// from r, so the stream remains framed correctly for the next call.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, wrapReadErr(err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxFrameLength {
		if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, wrapReadErr(err)
		}
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, wrapReadErr(err)
	}
	return payload, nil
}

// WriteFrame writes payload to w as a 4-byte little-endian length prefix
// followed by the payload itself.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(len(payload)))
	if _, err := w.Write(buf[:]); err != nil {
		return ErrConnectionLost
	}
	if _, err := w.Write(payload); err != nil {
		return ErrConnectionLost
	}
	return nil
}

func wrapReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionLost
	}
	return err
}

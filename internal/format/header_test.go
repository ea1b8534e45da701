package format

import (
	"testing"
)

// The tests here exercise the header against higgsd's one real caller,
// internal/wire's region-snapshot envelope, rather than generic type codes.
const (
	testType    = 'r'
	testVersion = byte(1)
)

func TestHeaderEncode(t *testing.T) {
	h := Header{Type: testType, Version: testVersion, Flags: 0}
	buf := h.Encode()

	if buf[0] != Signature {
		t.Errorf("expected signature 0x%02x, got 0x%02x", Signature, buf[0])
	}
	if buf[1] != testType {
		t.Errorf("expected type 0x%02x, got 0x%02x", testType, buf[1])
	}
	if buf[2] != testVersion {
		t.Errorf("expected version %d, got %d", testVersion, buf[2])
	}
	if buf[3] != 0 {
		t.Errorf("expected flags 0, got %d", buf[3])
	}
}

func TestHeaderEncodeInto(t *testing.T) {
	h := Header{Type: testType, Version: testVersion, Flags: 0x0F}
	buf := make([]byte, 10)
	n := h.EncodeInto(buf)

	if n != HeaderSize {
		t.Errorf("expected %d bytes written, got %d", HeaderSize, n)
	}
	if buf[0] != Signature {
		t.Errorf("expected signature 0x%02x, got 0x%02x", Signature, buf[0])
	}
	if buf[1] != testType {
		t.Errorf("expected type 0x%02x, got 0x%02x", testType, buf[1])
	}
	if buf[2] != testVersion {
		t.Errorf("expected version %d, got %d", testVersion, buf[2])
	}
	if buf[3] != 0x0F {
		t.Errorf("expected flags 0x0F, got 0x%02x", buf[3])
	}
}

func TestDecode(t *testing.T) {
	buf := []byte{Signature, testType, testVersion, 0x10}
	h, err := Decode(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Type != testType {
		t.Errorf("expected type 0x%02x, got 0x%02x", testType, h.Type)
	}
	if h.Version != testVersion {
		t.Errorf("expected version %d, got %d", testVersion, h.Version)
	}
	if h.Flags != 0x10 {
		t.Errorf("expected flags 0x10, got 0x%02x", h.Flags)
	}
}

func TestDecodeHeaderTooSmall(t *testing.T) {
	buf := []byte{Signature, testType, testVersion} // only 3 bytes
	_, err := Decode(buf)
	if err != ErrHeaderTooSmall {
		t.Errorf("expected ErrHeaderTooSmall, got %v", err)
	}
}

func TestDecodeSignatureMismatch(t *testing.T) {
	buf := []byte{'x', testType, testVersion, 0}
	_, err := Decode(buf)
	if err != ErrSignatureMismatch {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestDecodeAndValidate(t *testing.T) {
	buf := []byte{Signature, testType, testVersion, 0}
	h, err := DecodeAndValidate(buf, testType, testVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Type != testType {
		t.Errorf("expected type 0x%02x, got 0x%02x", testType, h.Type)
	}
}

func TestDecodeAndValidateTypeMismatch(t *testing.T) {
	buf := []byte{Signature, testType, testVersion, 0}
	_, err := DecodeAndValidate(buf, 's', testVersion)
	if err != ErrTypeMismatch {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDecodeAndValidateVersionMismatch(t *testing.T) {
	buf := []byte{Signature, testType, testVersion, 0}
	_, err := DecodeAndValidate(buf, testType, testVersion+1)
	if err != ErrVersionMismatch {
		t.Errorf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	original := Header{Type: testType, Version: testVersion, Flags: 0xAB}
	buf := original.Encode()
	decoded, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip failed: expected %+v, got %+v", original, decoded)
	}
}

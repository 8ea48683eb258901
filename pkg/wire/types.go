package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Payload field encodings: integers big-endian, strings {u16 length,
// utf-8 bytes}, byte blobs {u32 length, bytes}, bools a single byte.

func writeUint16(b *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.Write(buf[:])
}

func writeUint32(b *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	b.Write(buf[:])
}

func writeBool(b *bytes.Buffer, v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

func writeString(b *bytes.Buffer, s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	writeUint16(b, uint16(len(s)))
	b.WriteString(s)
}

func writeBlob(b *bytes.Buffer, p []byte) {
	writeUint32(b, uint32(len(p)))
	b.Write(p)
}

// payloadReader decodes payload fields and latches the first error so
// per-message decoders can read all fields then check once.
type payloadReader struct {
	b   []byte
	off int
	err error
}

func (r *payloadReader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s at offset %d", ErrFraming, what, r.off)
	}
}

func (r *payloadReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.fail(what)
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *payloadReader) uint8(what string) uint8 {
	p := r.take(1, what)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *payloadReader) uint16(what string) uint16 {
	p := r.take(2, what)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *payloadReader) uint32(what string) uint32 {
	p := r.take(4, what)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

func (r *payloadReader) bool(what string) bool {
	return r.uint8(what) != 0
}

func (r *payloadReader) string(what string) string {
	n := r.uint16(what)
	return string(r.take(int(n), what))
}

func (r *payloadReader) blob(what string) []byte {
	n := r.uint32(what)
	p := r.take(int(n), what)
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// finish reports the latched error, or a framing error if payload bytes
// remain unconsumed.
func (r *payloadReader) finish(t Type) error {
	if r.err != nil {
		return fmt.Errorf("decode %s: %w", t, r.err)
	}
	if r.off != len(r.b) {
		return fmt.Errorf("decode %s: %w: %d trailing bytes", t, ErrFraming, len(r.b)-r.off)
	}
	return nil
}

package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotClassFile is wrapped by the ParseError for input without the
// class-file magic number.
var ErrNotClassFile = errors.New("not a class file")

// ParseError reports malformed class-file bytes.
type ParseError struct {
	Offset int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("class file offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("class file offset %d: %s", e.Offset, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnsupportedConstantError reports a constant pool tag this package does
// not know. The pool cannot be walked past such an entry because its width
// is unknown.
type UnsupportedConstantError struct {
	Tag   uint8
	Index int
}

func (e *UnsupportedConstantError) Error() string {
	return fmt.Sprintf("unsupported constant pool tag %d at index %d", e.Tag, e.Index)
}

// reader decodes big-endian class-file data. The first failure sticks;
// later reads return zero values.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) fail(msg string, err error) {
	if r.err == nil {
		r.err = &ParseError{Offset: r.off, Msg: msg, Err: err}
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.b)-r.off < n {
		r.fail(fmt.Sprintf("truncated: need %d bytes, have %d", n, len(r.b)-r.off), nil)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) u8() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v
}

// bytes returns the next n bytes without copying.
func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.b[r.off : r.off+n : r.off+n]
	r.off += n
	return v
}

func (r *reader) remaining() int { return len(r.b) - r.off }

// writer encodes big-endian class-file data.
type writer struct {
	b []byte
}

func (w *writer) u1(v uint8)     { w.b = append(w.b, v) }
func (w *writer) u2(v uint16)    { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *writer) u4(v uint32)    { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *writer) u8(v uint64)    { w.b = binary.BigEndian.AppendUint64(w.b, v) }
func (w *writer) bytes(v []byte) { w.b = append(w.b, v...) }
func (w *writer) len() int       { return len(w.b) }

func (w *writer) count(n int) error {
	if n > 0xFFFF {
		return fmt.Errorf("table of %d entries exceeds the class-file limit", n)
	}
	w.u2(uint16(n))
	return nil
}

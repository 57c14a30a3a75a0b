// Package artifact holds the byte content of one file being rewritten.
package artifact

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// ByteData is one artifact: its path, its bytes and the charset of its
// text. A ByteData is never modified; rewriting returns a new value, or the
// same pointer when nothing changed, so callers can test identity.
type ByteData struct {
	Name    string
	Data    []byte
	Charset encoding.Encoding // nil means UTF-8
}

// New returns a ByteData for name and data.
func New(name string, data []byte, cs encoding.Encoding) *ByteData {
	return &ByteData{Name: name, Data: data, Charset: cs}
}

// WithName returns a copy renamed to name, sharing the bytes.
func (b *ByteData) WithName(name string) *ByteData {
	return &ByteData{Name: name, Data: b.Data, Charset: b.Charset}
}

// WithData returns a copy holding data.
func (b *ByteData) WithData(data []byte) *ByteData {
	return &ByteData{Name: b.Name, Data: data, Charset: b.Charset}
}

// IsUTF8 reports whether the charset is UTF-8.
func (b *ByteData) IsUTF8() bool {
	return b.Charset == nil || b.Charset == unicode.UTF8
}

// Text decodes the bytes. UTF-8 content is returned as is: invalid
// sequences are preserved rather than replaced.
func (b *ByteData) Text() (string, error) {
	if b.IsUTF8() {
		return string(b.Data), nil
	}
	out, err := b.Charset.NewDecoder().Bytes(b.Data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", b.Name, err)
	}
	return string(out), nil
}

// WithText returns a copy holding s encoded in the charset.
func (b *ByteData) WithText(s string) (*ByteData, error) {
	if b.IsUTF8() {
		return b.WithData([]byte(s)), nil
	}
	out, err := b.Charset.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", b.Name, err)
	}
	return b.WithData(out), nil
}

// Equal reports whether two artifacts have the same name and bytes.
func (b *ByteData) Equal(o *ByteData) bool {
	return b.Name == o.Name && bytes.Equal(b.Data, o.Data)
}

package classfile

import (
	"unicode/utf16"
	"unicode/utf8"
)

// DecodeModifiedUTF8 decodes the class-file string encoding: NUL is two
// bytes (C0 80) and supplementary characters are surrogate pairs of three
// bytes each. It reports false for malformed input, including unpaired
// surrogates, which have no UTF-8 representation.
func DecodeModifiedUTF8(b []byte) (string, bool) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), true
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		var r rune
		switch {
		case c == 0:
			return "", false
		case c < 0x80:
			r = rune(c)
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", false
			}
			r = rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", false
			}
			r = rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			i += 3
			if utf16.IsSurrogate(r) {
				if r >= 0xDC00 || i+2 >= len(b) || b[i] != 0xED {
					return "", false
				}
				lo := rune(b[i]&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
				if b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 || lo < 0xDC00 || lo > 0xDFFF {
					return "", false
				}
				r = utf16.DecodeRune(r, lo)
				i += 3
			}
		default:
			return "", false
		}
		out = utf8.AppendRune(out, r)
	}
	return string(out), true
}

// EncodeModifiedUTF8 encodes s for a Utf8 constant.
func EncodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = append(out, 0xE0|byte(r>>12), 0x80|byte(r>>6&0x3F), 0x80|byte(r&0x3F))
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit(out, hi)
			out = appendUnit(out, lo)
		}
	}
	return out
}

func appendUnit(out []byte, u rune) []byte {
	return append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
}

package resource

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ManifestPath is the archive path of the JAR manifest.
const ManifestPath = "META-INF/MANIFEST.MF"

// MaxLineBytes is the longest manifest line, newline excluded.
const MaxLineBytes = 72

// ErrMalformedManifest is wrapped by every ManifestError.
var ErrMalformedManifest = errors.New("malformed manifest")

// ManifestError reports a manifest line that cannot be parsed.
type ManifestError struct {
	Line int
	Msg  string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", ErrMalformedManifest, e.Line, e.Msg)
}

func (e *ManifestError) Unwrap() error { return ErrMalformedManifest }

// Header is one manifest header. raw keeps the physical lines it was read
// from so an unchanged header is written back byte for byte.
type Header struct {
	Name  string
	Value string
	raw   []string
}

// SetValue replaces the value; the header is rewrapped when written.
func (h *Header) SetValue(v string) {
	if h.Value != v {
		h.Value = v
		h.raw = nil
	}
}

// Section is the main section or one named section.
type Section struct {
	Headers []*Header
}

// Get returns the value of the first header called name (case-insensitive).
func (s *Section) Get(name string) (string, bool) {
	if h := s.header(name); h != nil {
		return h.Value, true
	}
	return "", false
}

func (s *Section) header(name string) *Header {
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			return h
		}
	}
	return nil
}

// Set replaces the value of header name, adding it when missing.
func (s *Section) Set(name, value string) {
	if h := s.header(name); h != nil {
		h.SetValue(value)
		return
	}
	s.Headers = append(s.Headers, &Header{Name: name, Value: value})
}

// Manifest is a parsed JAR manifest.
type Manifest struct {
	Main     *Section
	Sections []*Section
	newline  string
}

// ParseManifest reads a manifest. Lines end in CRLF, LF or CR; a line
// starting with a space continues the previous header; a blank line ends
// a section.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Main: &Section{}, newline: "\n"}
	if bytes.Contains(data, []byte("\r\n")) {
		m.newline = "\r\n"
	}
	cur := m.Main // nil between sections
	var last *Header
	for n, line := range splitLines(string(data)) {
		lineNo := n + 1
		switch {
		case line == "":
			cur, last = nil, nil
		case line[0] == ' ':
			if last == nil {
				return nil, &ManifestError{Line: lineNo, Msg: "continuation line without a header"}
			}
			last.Value += line[1:]
			last.raw = append(last.raw, line)
		default:
			name, value, ok := strings.Cut(line, ":")
			if !ok || name == "" || strings.ContainsAny(name, " \t") {
				return nil, &ManifestError{Line: lineNo, Msg: fmt.Sprintf("want \"Name: value\", got %q", line)}
			}
			if cur == nil {
				if !strings.EqualFold(name, "Name") {
					return nil, &ManifestError{Line: lineNo, Msg: "section does not start with Name"}
				}
				cur = &Section{}
				m.Sections = append(m.Sections, cur)
			}
			last = &Header{Name: name, Value: strings.TrimPrefix(value, " "), raw: []string{line}}
			cur.Headers = append(cur.Headers, last)
		}
	}
	return m, nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Bytes writes the manifest. Headers changed since parsing are wrapped at
// MaxLineBytes; the others keep their original lines.
func (m *Manifest) Bytes() []byte {
	var b bytes.Buffer
	writeSection(&b, m.Main, m.newline)
	b.WriteString(m.newline)
	for _, s := range m.Sections {
		writeSection(&b, s, m.newline)
		b.WriteString(m.newline)
	}
	return b.Bytes()
}

func writeSection(b *bytes.Buffer, s *Section, nl string) {
	for _, h := range s.Headers {
		if h.raw != nil {
			for _, l := range h.raw {
				b.WriteString(l)
				b.WriteString(nl)
			}
			continue
		}
		for _, l := range wrap(h.Name + ": " + h.Value) {
			b.WriteString(l)
			b.WriteString(nl)
		}
	}
}

// wrap splits a header line into physical lines of at most MaxLineBytes,
// never inside a UTF-8 sequence. Continuation lines start with a space.
func wrap(line string) []string {
	var out []string
	limit := MaxLineBytes
	prefix := ""
	for len(prefix)+len(line) > MaxLineBytes {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		out = append(out, prefix+line[:cut])
		line = line[cut:]
		prefix = " "
		limit = MaxLineBytes - 1
	}
	return append(out, prefix+line)
}

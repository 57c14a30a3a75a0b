// Package selection decides which artifacts a run rewrites and which
// charset their text is read in.
package selection

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnknownCharset is returned for charset names the IANA index does not
// resolve to a supported encoding.
var ErrUnknownCharset = errors.New("unknown charset")

// Properties files are ISO-8859-1 unless a charset rule says otherwise.
var propertiesCharset encoding.Encoding = charmap.ISO8859_1

type charsetRule struct {
	pattern string
	enc     encoding.Encoding
}

// Selector holds include and exclude globs and charset assignments.
// Patterns use path.Match syntax and are tried against the full slash
// separated name and its base name. A pattern ending in "/" matches every
// name below that directory.
type Selector struct {
	includes []string
	excludes []string
	charsets []charsetRule
}

// New validates the patterns and returns a Selector. Each charset entry
// has the form "pattern=charset"; the first matching entry wins.
func New(includes, excludes, charsets []string) (*Selector, error) {
	for _, p := range append(append([]string(nil), includes...), excludes...) {
		if err := checkPattern(p); err != nil {
			return nil, err
		}
	}
	s := &Selector{includes: includes, excludes: excludes}
	for _, c := range charsets {
		pattern, name, ok := strings.Cut(c, "=")
		if !ok || pattern == "" || name == "" {
			return nil, fmt.Errorf("charset rule %q: want pattern=charset", c)
		}
		if err := checkPattern(pattern); err != nil {
			return nil, err
		}
		enc, err := Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("charset rule %q: %w", c, err)
		}
		s.charsets = append(s.charsets, charsetRule{pattern: pattern, enc: enc})
	}
	return s, nil
}

func checkPattern(p string) error {
	if p == "" {
		return errors.New("empty selection pattern")
	}
	if _, err := path.Match(strings.TrimSuffix(p, "/"), ""); err != nil {
		return fmt.Errorf("selection pattern %q: %w", p, err)
	}
	return nil
}

// Lookup resolves a charset name or alias ("UTF-8", "latin1",
// "windows-1252").
func Lookup(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
	}
	return enc, nil
}

// Selected reports whether name should be rewritten: it matches some
// include pattern (or there are none) and no exclude pattern. Names not
// selected are copied unchanged.
func (s *Selector) Selected(name string) bool {
	if s == nil {
		return true
	}
	if len(s.includes) > 0 && !matchAny(s.includes, name) {
		return false
	}
	return !matchAny(s.excludes, name)
}

// Charset returns the encoding of the text in name.
func (s *Selector) Charset(name string) encoding.Encoding {
	if s != nil {
		for _, c := range s.charsets {
			if Match(c.pattern, name) {
				return c.enc
			}
		}
	}
	if strings.EqualFold(path.Ext(name), ".properties") {
		return propertiesCharset
	}
	return unicode.UTF8
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}

// Match reports whether name matches a selection pattern.
func Match(pattern, name string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		return name == dir || strings.HasPrefix(name, pattern)
	}
	if ok, _ := path.Match(pattern, name); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(name))
	return ok
}

// Package rename decides whether, and how, a package reference is replaced.
//
// A Matcher holds two tables built from the same rules: one for dotted
// package names (source-like text, string constants, manifests) and one for
// slashed package names (binary type names inside class files). Both tables
// share one boundary algorithm, parameterized by the separator.
//
// Rule kinds:
//   - exact:    "javax.servlet"   matches only the package javax.servlet
//   - wildcard: "javax.servlet.*" matches every sub-package of javax.servlet
//     (never javax.servlet itself); the unmatched suffix is kept as is.
package rename

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Form selects the separator of a package name.
type Form int

const (
	Dotted  Form = iota // javax.servlet.http
	Slashed             // javax/servlet/http
)

// Sep returns the package separator of the form.
func (f Form) Sep() byte {
	if f == Slashed {
		return '/'
	}
	return '.'
}

// dollarIdent says per form whether '$' continues an identifier. Dotted
// text follows Java source, where '$' is a letter; slashed binary names
// use it to join nested class names, which are never package segments.
var dollarIdent = [...]bool{Dotted: true, Slashed: true}

// Dollar reports whether '$' continues an identifier in this form, so a
// '$' next to a candidate rejects the match.
func (f Form) Dollar() bool { return dollarIdent[f] }

func (f Form) identStart(c byte) bool {
	if c == '$' {
		return f.Dollar()
	}
	return isIdentStart(c)
}

func (f Form) identPart(c byte) bool {
	if c == '$' {
		return f.Dollar()
	}
	return isIdentPart(c)
}

func (f Form) String() string {
	if f == Slashed {
		return "slashed"
	}
	return "dotted"
}

// WildcardSuffix marks a rule that applies to sub-packages only.
const WildcardSuffix = ".*"

// ErrEmptyPattern is returned for rules without a package name.
var ErrEmptyPattern = errors.New("empty package pattern")

// Rule is one package rename. Pattern and Replacement are dotted package
// names; Pattern never carries the ".*" suffix, Wildcard records it.
type Rule struct {
	Pattern     string
	Replacement string
	Wildcard    bool
}

// ParseRule builds a Rule from a "pattern[.*]" key and its replacement.
func ParseRule(key, replacement string) Rule {
	key = strings.TrimSpace(key)
	r := Rule{Replacement: strings.TrimSpace(replacement)}
	if strings.HasSuffix(key, WildcardSuffix) {
		r.Wildcard = true
		key = strings.TrimSuffix(key, WildcardSuffix)
	}
	r.Pattern = key
	return r
}

// Key returns the rule pattern as written in rule files.
func (r Rule) Key() string {
	if r.Wildcard {
		return r.Pattern + WildcardSuffix
	}
	return r.Pattern
}

func (r Rule) String() string { return r.Key() + "=" + r.Replacement }

type entry struct {
	key      string
	value    string
	wildcard bool
}

// table is one form's view of the rules.
type table struct {
	sep     byte
	exact   map[string]*entry
	wild    map[string]*entry
	byFirst map[string][]*entry // first key segment -> entries, most specific first
}

// Matcher applies package rename rules. It is immutable after NewMatcher
// and safe for concurrent use.
type Matcher struct {
	rules   []Rule
	dotted  *table
	slashed *table
}

// NewMatcher builds the dotted and slashed tables from rules.
func NewMatcher(rules []Rule) (*Matcher, error) {
	m := &Matcher{rules: append([]Rule(nil), rules...)}
	sort.SliceStable(m.rules, func(i, j int) bool { return moreSpecific(m.rules[i], m.rules[j]) })
	var err error
	if m.dotted, err = buildTable(m.rules, Dotted); err != nil {
		return nil, err
	}
	if m.slashed, err = buildTable(m.rules, Slashed); err != nil {
		return nil, err
	}
	return m, nil
}

// moreSpecific orders longer patterns first and, at equal length, exact
// patterns before wildcards.
func moreSpecific(a, b Rule) bool {
	if len(a.Pattern) != len(b.Pattern) {
		return len(a.Pattern) > len(b.Pattern)
	}
	if a.Wildcard != b.Wildcard {
		return !a.Wildcard
	}
	return a.Pattern < b.Pattern
}

func buildTable(rules []Rule, f Form) (*table, error) {
	t := &table{
		sep:     f.Sep(),
		exact:   make(map[string]*entry, len(rules)),
		wild:    make(map[string]*entry),
		byFirst: make(map[string][]*entry),
	}
	for _, r := range rules {
		if r.Pattern == "" || r.Replacement == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyPattern, r.String())
		}
		e := &entry{
			key:      convert(r.Pattern, f),
			value:    convert(r.Replacement, f),
			wildcard: r.Wildcard,
		}
		dst := t.exact
		if e.wildcard {
			dst = t.wild
		}
		if _, dup := dst[e.key]; dup {
			return nil, fmt.Errorf("duplicate package pattern %q", r.Key())
		}
		dst[e.key] = e
		first := e.key
		if i := strings.IndexByte(first, t.sep); i >= 0 {
			first = first[:i]
		}
		t.byFirst[first] = append(t.byFirst[first], e)
	}
	return t, nil
}

func convert(dotted string, f Form) string {
	if f == Slashed {
		return strings.ReplaceAll(dotted, ".", "/")
	}
	return dotted
}

// Rules returns the rules ordered most specific first.
func (m *Matcher) Rules() []Rule { return append([]Rule(nil), m.rules...) }

// Empty reports whether the matcher has no rules.
func (m *Matcher) Empty() bool { return m == nil || len(m.rules) == 0 }

func (m *Matcher) table(f Form) *table {
	if f == Slashed {
		return m.slashed
	}
	return m.dotted
}

// Rename renames a whole package name. Exact rules are tried on the full
// name first, then wildcard rules on progressively shorter prefixes; the
// first hit is the most specific one. It returns ("", false) when no rule
// applies or the replacement equals the input.
func (m *Matcher) Rename(pkg string, f Form) (string, bool) {
	if m.Empty() || pkg == "" {
		return "", false
	}
	t := m.table(f)
	if e, ok := t.exact[pkg]; ok {
		return changedOnly(pkg, e.value)
	}
	for end := strings.LastIndexByte(pkg, t.sep); end > 0; end = strings.LastIndexByte(pkg[:end], t.sep) {
		if e, ok := t.wild[pkg[:end]]; ok {
			return changedOnly(pkg, e.value+pkg[end:])
		}
	}
	return "", false
}

func changedOnly(in, out string) (string, bool) {
	if in == out {
		return "", false
	}
	return out, true
}

// RenameBinaryType renames the package of a slashed type name such as
// "javax/servlet/Servlet" or "javax/servlet/Servlet$Inner".
func (m *Matcher) RenameBinaryType(name string) (string, bool) {
	return m.renameType(name, Slashed)
}

// RenameDottedType renames the package of a dotted type name such as
// "javax.servlet.Servlet".
func (m *Matcher) RenameDottedType(name string) (string, bool) {
	return m.renameType(name, Dotted)
}

func (m *Matcher) renameType(name string, f Form) (string, bool) {
	i := strings.LastIndexByte(name, f.Sep())
	if i <= 0 {
		return "", false
	}
	pkg, ok := m.Rename(name[:i], f)
	if !ok {
		return "", false
	}
	return pkg + name[i:], true
}

// ReplaceAll substitutes every package reference embedded in text. The
// scan runs left to right; at each identifier start the candidate rules
// sharing its first segment are tried most specific first, and a rule
// applies only on a true package boundary (see matchesAfter). Scanning
// resumes after the spliced replacement, so at most one rule touches any
// reference. It returns ("", false) when nothing was substituted.
func (m *Matcher) ReplaceAll(text string, f Form) (string, bool) {
	if m.Empty() || text == "" {
		return "", false
	}
	t := m.table(f)
	var b strings.Builder
	last, changed := 0, false
	for i := 0; i < len(text); {
		if !f.identStart(text[i]) {
			i++
			continue
		}
		j := i + 1
		for j < len(text) && f.identPart(text[j]) {
			j++
		}
		if i > 0 && (f.identPart(text[i-1]) || text[i-1] == t.sep) {
			i = j
			continue
		}
		var hit *entry
		for _, e := range t.byFirst[text[i:j]] {
			if strings.HasPrefix(text[i:], e.key) && matchesAfter(text, i+len(e.key), f, e.wildcard) {
				hit = e
				break
			}
		}
		if hit == nil {
			i = j
			continue
		}
		if !changed {
			b.Grow(len(text) + 16)
			changed = true
		}
		b.WriteString(text[last:i])
		b.WriteString(hit.value)
		i += len(hit.key)
		last = i
	}
	if !changed {
		return "", false
	}
	b.WriteString(text[last:])
	out := b.String()
	if out == text {
		return "", false
	}
	return out, true
}

// matchesAfter checks the text following a key ending at end. An
// identifier character means the key is a prefix of a longer name. A
// separator must be followed by a further segment: a class name (upper
// case) for exact rules, a sub-package (anything else) for wildcard rules.
func matchesAfter(text string, end int, f Form, wildcard bool) bool {
	if end >= len(text) {
		return !wildcard
	}
	c := text[end]
	if f.identPart(c) {
		return false
	}
	if c != f.Sep() {
		return !wildcard
	}
	if end+1 >= len(text) || !f.identStart(text[end+1]) {
		return false
	}
	upper := text[end+1] >= 'A' && text[end+1] <= 'Z'
	if wildcard {
		return !upper
	}
	return upper
}

// isIdentStart reports whether c may start a Java identifier. Bytes of
// multi-byte UTF-8 sequences count as letters.
func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '$' || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// IsPackageName reports whether s is a dotted Java package name.
func IsPackageName(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" || !isIdentStart(seg[0]) {
			return false
		}
		for i := 1; i < len(seg); i++ {
			if !isIdentPart(seg[i]) {
				return false
			}
		}
	}
	return true
}

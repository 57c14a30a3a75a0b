// Package changes records what a rewrite did to each artifact.
package changes

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names one category of rewrite site.
type Kind string

const (
	ClassName          Kind = "class-name"
	SuperClass         Kind = "super-class"
	Interface          Kind = "interface"
	FieldDescriptor    Kind = "field-descriptor"
	MethodDescriptor   Kind = "method-descriptor"
	Signature          Kind = "signature"
	ClassReference     Kind = "class-reference" // exceptions, inner classes, nest and module tables
	Annotation         Kind = "annotation"
	StackMap           Kind = "stack-map"
	LocalVariable      Kind = "local-variable"
	Constant           Kind = "constant"
	StringOverride     Kind = "string-override"
	VersionOverride    Kind = "version-override"
	ManifestHeader     Kind = "manifest-header"
	ServiceProvider    Kind = "service-provider"
	Text               Kind = "text"
	ArchiveEntry       Kind = "archive-entry"
	ModuleDeclaration  Kind = "module"
	RecordComponent    Kind = "record-component"
	EnclosingReference Kind = "enclosing-method"
)

// Record is the outcome of one artifact. ContentChanged is set by the
// first Tracker.Record call; a record whose output name differs but whose
// content did not change is a bare rename.
type Record struct {
	InputName      string       `json:"input"`
	OutputName     string       `json:"output"`
	ContentChanged bool         `json:"contentChanged"`
	Counts         map[Kind]int `json:"counts,omitempty"`
	Nested         []*Record    `json:"nested,omitempty"`
}

// NameChanged reports whether the artifact was renamed.
func (r *Record) NameChanged() bool { return r.OutputName != r.InputName }

// Changed reports whether the artifact was renamed or rewritten.
func (r *Record) Changed() bool { return r.ContentChanged || r.NameChanged() }

// Total returns the number of recorded changes.
func (r *Record) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

// Count returns the number of changes of kind k.
func (r *Record) Count(k Kind) int { return r.Counts[k] }

func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.InputName)
	if r.NameChanged() {
		fmt.Fprintf(&b, " -> %s", r.OutputName)
	}
	if !r.ContentChanged {
		b.WriteString(" (content unchanged)")
		return b.String()
	}
	kinds := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	b.WriteString(" [")
	for i, k := range kinds {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%d", k, r.Counts[Kind(k)])
	}
	b.WriteString("]")
	return b.String()
}

// Tracker holds the records of the artifacts being processed. Sessions
// nest: an archive opens one session for itself and one per entry while
// its own is still open. A Tracker is owned by one goroutine.
type Tracker struct {
	stack []*Record
}

// NewTracker returns a Tracker with no open session.
func NewTracker() *Tracker { return &Tracker{} }

// Begin opens a session for the artifact name.
func (t *Tracker) Begin(name string) *Record {
	r := &Record{InputName: name, OutputName: name}
	t.stack = append(t.stack, r)
	return r
}

// Current returns the innermost open record, or nil.
func (t *Tracker) Current() *Record {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// Depth returns the number of open sessions.
func (t *Tracker) Depth() int { return len(t.stack) }

func (t *Tracker) mustCurrent(op string) *Record {
	r := t.Current()
	if r == nil {
		panic("changes: " + op + " outside a session")
	}
	return r
}

// Record counts one change of kind k in the innermost session.
func (t *Tracker) Record(k Kind) { t.Add(k, 1) }

// Add counts n changes of kind k in the innermost session.
func (t *Tracker) Add(k Kind, n int) {
	if n <= 0 {
		return
	}
	r := t.mustCurrent("Record")
	if r.Counts == nil {
		r.Counts = make(map[Kind]int)
	}
	r.Counts[k] += n
	r.ContentChanged = true
}

// Rename sets the output name of the innermost session.
func (t *Tracker) Rename(out string) { t.mustCurrent("Rename").OutputName = out }

// End closes the innermost session and returns its record. A closed
// record is attached to its parent session, if any.
func (t *Tracker) End() *Record {
	r := t.mustCurrent("End")
	t.stack = t.stack[:len(t.stack)-1]
	if p := t.Current(); p != nil && r.Changed() {
		p.Nested = append(p.Nested, r)
	}
	return r
}

// Abort closes the innermost session of a failed artifact and returns its
// record without attaching it to the parent.
func (t *Tracker) Abort() *Record {
	r := t.mustCurrent("Abort")
	t.stack = t.stack[:len(t.stack)-1]
	return r
}

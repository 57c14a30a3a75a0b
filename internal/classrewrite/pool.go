package classrewrite

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/changes"
	"class-transformer/internal/classfile"
	"class-transformer/internal/rename"
)

// poolWalk rewrites the constant pool in one pass over indices 1..N.
//
// Utf8 entries get text substitution in place: every embedded package
// reference in dotted or slashed form is renamed. Utf8 entries that are
// string literals first consult the override tables. Class, NameAndType,
// MethodType and Package entries are re-derived from their original
// values through the grammar-aware transforms (NameAndType names are kept
// as read); when the result differs from what the text pass left behind,
// the entry is pointed at a fresh Utf8. Every changed entry counts once.
type poolWalk struct {
	s    *session
	pool *classfile.Pool
	orig *classfile.Pool

	literal map[uint16]bool // Utf8 indices referenced by String entries
	module  map[uint16]bool // Utf8 indices naming modules
	done    []bool
}

func (s *session) walkPool() error {
	pool := s.cf.Pool
	w := &poolWalk{
		s:       s,
		pool:    pool,
		orig:    pool.Clone(),
		literal: make(map[uint16]bool),
		module:  make(map[uint16]bool),
		done:    make([]bool, pool.Len()),
	}
	n := pool.Len()
	for i := 1; i < n; i++ {
		switch c := pool.Get(uint16(i)).(type) {
		case *classfile.StringInfo:
			w.literal[c.StringIndex] = true
		case *classfile.ModuleInfo:
			w.module[c.NameIndex] = true
		}
	}
	for i := 1; i < n; i++ {
		if err := w.entry(uint16(i)); err != nil {
			return err
		}
	}
	return nil
}

func (w *poolWalk) entry(i uint16) error {
	tr := w.s.rw.tr
	switch c := w.orig.Get(i).(type) {
	case nil:
		// index 0 or the upper slot of a long or double
	case *classfile.Utf8Info:
		w.text(i)
	case *classfile.ClassInfo:
		idx, changed, moved, err := w.derive(c.NameIndex, tr.TransformBinaryType)
		if err != nil {
			return err
		}
		if moved {
			w.pool.Set(i, &classfile.ClassInfo{NameIndex: idx})
			w.count(changed)
		}
	case *classfile.NameAndTypeInfo:
		name, _, nameMoved, err := w.derive(c.NameIndex, nil)
		if err != nil {
			return err
		}
		desc, changed, descMoved, err := w.derive(c.DescriptorIndex, tr.TransformDescriptor)
		if err != nil {
			return err
		}
		if nameMoved || descMoved {
			w.pool.Set(i, &classfile.NameAndTypeInfo{NameIndex: name, DescriptorIndex: desc})
			w.count(changed && descMoved)
		}
	case *classfile.MethodTypeInfo:
		idx, changed, moved, err := w.derive(c.DescriptorIndex, tr.TransformDescriptor)
		if err != nil {
			return err
		}
		if moved {
			w.pool.Set(i, &classfile.MethodTypeInfo{DescriptorIndex: idx})
			w.count(changed)
		}
	case *classfile.PackageInfo:
		idx, changed, moved, err := w.derive(c.NameIndex, tr.TransformPackage)
		if err != nil {
			return err
		}
		if moved {
			w.pool.Set(i, &classfile.PackageInfo{NameIndex: idx})
			w.count(changed)
		}
	case *classfile.IntegerInfo, *classfile.FloatInfo, *classfile.LongInfo, *classfile.DoubleInfo,
		*classfile.StringInfo, *classfile.RefInfo, *classfile.MethodHandleInfo,
		*classfile.DynamicInfo, *classfile.ModuleInfo:
		// Nothing to rename, or renamed through the entries they refer to.
	default:
		return &classfile.UnsupportedConstantError{Tag: c.Tag(), Index: int(i)}
	}
	return nil
}

// derive points a structural reference at a Utf8 holding the transform of
// its original text, or the original text itself when transform is nil or
// leaves it alone. A Utf8 shared with a string literal may have been given
// different text by an override; the reference then moves to a fresh Utf8
// so member names and descriptors keep linking.
func (w *poolWalk) derive(i uint16, transform func(string) (string, bool)) (idx uint16, changed, moved bool, err error) {
	want, err := w.original(i)
	if err != nil {
		return 0, false, false, err
	}
	if transform != nil {
		if out, ok := transform(want); ok {
			want, changed = out, true
		}
	}
	idx, moved = w.repoint(i, want)
	return idx, changed, moved, nil
}

func (w *poolWalk) count(changed bool) {
	if changed {
		w.s.t.Record(changes.Constant)
	}
}

// original returns the Utf8 at i as it was before the walk.
func (w *poolWalk) original(i uint16) (string, error) {
	v, err := w.orig.Utf8(i)
	if err != nil {
		return "", fmt.Errorf("inconsistent constant pool: %w", err)
	}
	return v, nil
}

// repoint makes sure the Utf8 an entry refers to reads want. The text pass
// usually got there already; otherwise want is interned and its index
// returned with moved set.
func (w *poolWalk) repoint(i uint16, want string) (uint16, bool) {
	w.text(i)
	if cur, err := w.pool.Utf8(i); err == nil && cur == want {
		return i, false
	}
	// An equal Utf8 not visited yet could still be edited by the text
	// pass; settle it first and append a copy if it no longer reads want.
	idx := w.pool.AddUtf8(want)
	w.text(idx)
	if cur, err := w.pool.Utf8(idx); err != nil || cur != want {
		idx = w.pool.AddUtf8(want)
	}
	return idx, true
}

// text applies text substitution to the Utf8 at i once.
func (w *poolWalk) text(i uint16) {
	if int(i) >= len(w.done) || w.done[i] {
		return
	}
	w.done[i] = true
	u, ok := w.orig.Get(i).(*classfile.Utf8Info)
	if !ok || !u.Valid || w.module[i] {
		return
	}
	out, kind, ok := w.substitute(u.Value, w.literal[i])
	if !ok {
		return
	}
	w.pool.Set(i, classfile.NewUtf8(out))
	w.s.t.Record(kind)
}

// substitute computes the new text of a Utf8 value. String literals try
// the whole-string overrides, then the class's substring overrides, before
// falling back to package substitution.
func (w *poolWalk) substitute(v string, literal bool) (string, changes.Kind, bool) {
	set := w.s.rw.rules
	if literal {
		if out, ok := set.DirectFor(w.s.class, v); ok {
			if out == v {
				return "", "", false
			}
			w.s.log.WithFields(logrus.Fields{"from": v, "to": out}).Debug("string constant overridden")
			return out, changes.StringOverride, true
		}
		if out, ok := set.TextFor(w.s.class, v); ok {
			return out, changes.StringOverride, true
		}
	}
	out, changed := v, false
	for _, f := range []rename.Form{rename.Dotted, rename.Slashed} {
		if r, ok := w.s.rw.m.ReplaceAll(out, f); ok {
			out, changed = r, true
		}
	}
	if !changed || out == v {
		return "", "", false
	}
	return out, changes.Constant, true
}

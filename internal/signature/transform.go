package signature

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"class-transformer/internal/rename"
)

// Renamer renames a package name given in form f. *rename.Matcher
// implements it.
type Renamer interface {
	Rename(pkg string, f rename.Form) (string, bool)
}

// RenameType renames every class type reachable from t. It returns nil when
// nothing changed.
func RenameType(r Renamer, t JavaType) JavaType {
	switch t := t.(type) {
	case *ClassType:
		if out := renameClassType(r, t); out != nil {
			return out
		}
	case *ArrayType:
		if elem := RenameType(r, t.Elem); elem != nil {
			return &ArrayType{Elem: elem}
		}
	}
	return nil
}

func renameRef(r Renamer, t ReferenceType) ReferenceType {
	if t == nil {
		return nil
	}
	out := RenameType(r, t)
	if out == nil {
		return nil
	}
	return out.(ReferenceType)
}

func renameClassType(r Renamer, t *ClassType) *ClassType {
	pkg, pkgChanged := t.Package, false
	if pkg != "" {
		if p, ok := r.Rename(pkg, rename.Slashed); ok {
			pkg, pkgChanged = p, true
		}
	}
	outer, outerChanged := renameSimple(r, t.Outer)
	var inner []SimpleClassType
	for i, in := range t.Inner {
		if s, ok := renameSimple(r, in); ok {
			if inner == nil {
				inner = append([]SimpleClassType(nil), t.Inner...)
			}
			inner[i] = s
		}
	}
	if !pkgChanged && !outerChanged && inner == nil {
		return nil
	}
	if inner == nil {
		inner = t.Inner
	}
	return &ClassType{Package: pkg, Outer: outer, Inner: inner}
}

func renameSimple(r Renamer, s SimpleClassType) (SimpleClassType, bool) {
	args := renameArgs(r, s.Args)
	if args == nil {
		return s, false
	}
	return SimpleClassType{Name: s.Name, Args: args}, true
}

func renameArgs(r Renamer, args []TypeArgument) []TypeArgument {
	var out []TypeArgument
	for i, a := range args {
		t := renameRef(r, a.Type)
		if t == nil {
			continue
		}
		if out == nil {
			out = append([]TypeArgument(nil), args...)
		}
		out[i] = TypeArgument{Wildcard: a.Wildcard, Type: t}
	}
	return out
}

func renameRefs(r Renamer, ts []ReferenceType) []ReferenceType {
	var out []ReferenceType
	for i, t := range ts {
		n := renameRef(r, t)
		if n == nil {
			continue
		}
		if out == nil {
			out = append([]ReferenceType(nil), ts...)
		}
		out[i] = n
	}
	return out
}

func renameParams(r Renamer, params []TypeParameter) []TypeParameter {
	var out []TypeParameter
	for i, p := range params {
		cb := renameRef(r, p.ClassBound)
		ib := renameRefs(r, p.InterfaceBounds)
		if cb == nil && ib == nil {
			continue
		}
		if out == nil {
			out = append([]TypeParameter(nil), params...)
		}
		np := p
		if cb != nil {
			np.ClassBound = cb
		}
		if ib != nil {
			np.InterfaceBounds = ib
		}
		out[i] = np
	}
	return out
}

// RenameClassSignature returns a renamed copy of s, or nil when nothing
// changed.
func RenameClassSignature(r Renamer, s *ClassSignature) *ClassSignature {
	params := renameParams(r, s.TypeParams)
	super := renameClassType(r, s.Super)
	var ifaces []*ClassType
	for i, in := range s.Interfaces {
		n := renameClassType(r, in)
		if n == nil {
			continue
		}
		if ifaces == nil {
			ifaces = append([]*ClassType(nil), s.Interfaces...)
		}
		ifaces[i] = n
	}
	if params == nil && super == nil && ifaces == nil {
		return nil
	}
	out := *s
	if params != nil {
		out.TypeParams = params
	}
	if super != nil {
		out.Super = super
	}
	if ifaces != nil {
		out.Interfaces = ifaces
	}
	return &out
}

// RenameMethodSignature returns a renamed copy of s, or nil when nothing
// changed. It serves method descriptors too.
func RenameMethodSignature(r Renamer, s *MethodSignature) *MethodSignature {
	params := renameParams(r, s.TypeParams)
	var args []JavaType
	for i, p := range s.Params {
		n := RenameType(r, p)
		if n == nil {
			continue
		}
		if args == nil {
			args = append([]JavaType(nil), s.Params...)
		}
		args[i] = n
	}
	result := RenameType(r, s.Result)
	throws := renameRefs(r, s.Throws)
	if params == nil && args == nil && result == nil && throws == nil {
		return nil
	}
	out := *s
	if params != nil {
		out.TypeParams = params
	}
	if args != nil {
		out.Params = args
	}
	if result != nil {
		out.Result = result
	}
	if throws != nil {
		out.Throws = throws
	}
	return &out
}

// RenameFieldSignature returns a renamed copy of s, or nil when nothing
// changed.
func RenameFieldSignature(r Renamer, s *FieldSignature) *FieldSignature {
	t := renameRef(r, s.Type)
	if t == nil {
		return nil
	}
	return &FieldSignature{Type: t}
}

type cached struct {
	out     string
	changed bool
}

// memo maps an input text to its transform outcome. A nil memo caches
// nothing.
type memo struct {
	c *lru.Cache[string, cached]
}

func newMemo(size int) *memo {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil
	}
	return &memo{c: c}
}

func (m *memo) get(key string) (cached, bool) {
	if m == nil {
		return cached{}, false
	}
	return m.c.Get(key)
}

func (m *memo) put(key string, v cached) {
	if m != nil {
		m.c.Add(key, v)
	}
}

func (m *memo) len() int {
	if m == nil {
		return 0
	}
	return m.c.Len()
}

// Transformer applies a Renamer to binary type names, descriptors and
// signatures, memoizing outcomes per grammar. It is safe for concurrent
// use; cached outcomes depend only on their key.
type Transformer struct {
	r           Renamer
	log         logrus.FieldLogger
	types       *memo
	descriptors *memo
	signatures  *memo
}

// NewTransformer returns a Transformer whose caches each hold up to
// cacheSize entries. A cacheSize of zero disables caching.
func NewTransformer(r Renamer, cacheSize int, log logrus.FieldLogger) *Transformer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transformer{
		r:           r,
		log:         log,
		types:       newMemo(cacheSize),
		descriptors: newMemo(cacheSize),
		signatures:  newMemo(cacheSize),
	}
}

// Renamer returns the underlying renamer.
func (t *Transformer) Renamer() Renamer { return t.r }

// CacheStats reports the number of cached binary names, descriptors and
// signatures.
func (t *Transformer) CacheStats() (types, descriptors, signatures int) {
	return t.types.len(), t.descriptors.len(), t.signatures.len()
}

// TransformPackage renames a slashed package name.
func (t *Transformer) TransformPackage(pkg string) (string, bool) {
	return t.r.Rename(pkg, rename.Slashed)
}

// TransformBinaryType renames a binary class name such as
// "javax/servlet/Servlet". Array class names ("[Ljavax/servlet/Servlet;")
// are treated as field descriptors.
func (t *Transformer) TransformBinaryType(name string) (string, bool) {
	if strings.HasPrefix(name, "[") {
		return t.TransformDescriptor(name)
	}
	if c, ok := t.types.get(name); ok {
		return c.out, c.changed
	}
	var c cached
	if ct, err := ParseBinaryName(name); err != nil {
		t.log.WithField("name", name).WithError(err).Warn("unparsable class name left unchanged")
	} else if ct.Package != "" {
		if pkg, ok := t.r.Rename(ct.Package, rename.Slashed); ok {
			c = cached{out: pkg + name[len(ct.Package):], changed: true}
		}
	}
	t.types.put(name, c)
	return c.out, c.changed
}

// TransformDescriptor renames a field or method descriptor.
func (t *Transformer) TransformDescriptor(desc string) (string, bool) {
	if c, ok := t.descriptors.get(desc); ok {
		return c.out, c.changed
	}
	var (
		c   cached
		err error
	)
	if strings.HasPrefix(desc, "(") {
		var ms *MethodSignature
		if ms, err = ParseMethodDescriptor(desc); err == nil {
			if n := RenameMethodSignature(t.r, ms); n != nil {
				c = cached{out: n.String(), changed: true}
			}
		}
	} else {
		var jt JavaType
		if jt, err = ParseFieldDescriptor(desc); err == nil {
			if n := RenameType(t.r, jt); n != nil {
				c = cached{out: n.String(), changed: true}
			}
		}
	}
	if err != nil {
		t.log.WithField("descriptor", desc).WithError(err).Warn("unparsable descriptor left unchanged")
	}
	t.descriptors.put(desc, c)
	return c.out, c.changed
}

// TransformSignature renames a generic signature of the given kind.
func (t *Transformer) TransformSignature(sig string, kind Kind) (string, bool) {
	key := kind.String() + ":" + sig
	if c, ok := t.signatures.get(key); ok {
		return c.out, c.changed
	}
	var (
		c   cached
		err error
	)
	switch kind {
	case ClassKind:
		var s *ClassSignature
		if s, err = ParseClass(sig); err == nil {
			if n := RenameClassSignature(t.r, s); n != nil {
				c = cached{out: n.String(), changed: true}
			}
		}
	case MethodKind:
		var s *MethodSignature
		if s, err = ParseMethod(sig); err == nil {
			if n := RenameMethodSignature(t.r, s); n != nil {
				c = cached{out: n.String(), changed: true}
			}
		}
	default:
		var s *FieldSignature
		if s, err = ParseField(sig); err == nil {
			if n := RenameFieldSignature(t.r, s); n != nil {
				c = cached{out: n.String(), changed: true}
			}
		}
	}
	if err != nil {
		t.log.WithFields(logrus.Fields{"signature": sig, "kind": kind}).WithError(err).Warn("unparsable signature left unchanged")
	}
	if c.changed && c.out == sig {
		c = cached{}
	}
	t.signatures.put(key, c)
	return c.out, c.changed
}

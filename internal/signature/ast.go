// Package signature parses, prints and rewrites the type-encoding grammars
// found inside class files: generic signatures (class, method, field) and
// the simpler field and method descriptors.
//
// Printing a parsed value reproduces its input byte for byte. Rename
// functions never mutate their argument: they return nil when nothing in
// the subtree changed, or a new node that shares untouched children.
package signature

import "strings"

// Kind selects one of the three signature grammars.
type Kind int

const (
	ClassKind Kind = iota
	FieldKind
	MethodKind
)

func (k Kind) String() string {
	switch k {
	case ClassKind:
		return "class"
	case FieldKind:
		return "field"
	case MethodKind:
		return "method"
	}
	return "unknown"
}

// JavaType is a BaseType, *ClassType, *TypeVariable or *ArrayType.
type JavaType interface {
	write(b *strings.Builder)
	String() string
}

// ReferenceType is a *ClassType, *TypeVariable or *ArrayType.
type ReferenceType interface {
	JavaType
	reference()
}

// BaseType is a primitive type code (B C D F I J S Z), or V as a method
// result.
type BaseType byte

const Void BaseType = 'V'

func (t BaseType) write(b *strings.Builder) { b.WriteByte(byte(t)) }
func (t BaseType) String() string           { return string(rune(t)) }

// ClassType is "L" [Package "/"] Outer {"." Inner} ";".
type ClassType struct {
	Package string // slash separated, "" for the unnamed package
	Outer   SimpleClassType
	Inner   []SimpleClassType
}

// SimpleClassType is one class name segment with optional type arguments.
type SimpleClassType struct {
	Name string
	Args []TypeArgument
}

// TypeArgument is a type argument; Wildcard is 0, '+', '-' or '*'. Type is
// nil for the unbounded wildcard '*'.
type TypeArgument struct {
	Wildcard byte
	Type     ReferenceType
}

// TypeVariable is "T" Name ";".
type TypeVariable struct {
	Name string
}

// ArrayType is "[" Elem.
type ArrayType struct {
	Elem JavaType
}

// TypeParameter is Name ":" [ClassBound] {":" InterfaceBound}.
type TypeParameter struct {
	Name            string
	ClassBound      ReferenceType
	InterfaceBounds []ReferenceType
}

// ClassSignature is [TypeParams] Super {Interface}.
type ClassSignature struct {
	TypeParams []TypeParameter
	Super      *ClassType
	Interfaces []*ClassType
}

// MethodSignature is [TypeParams] "(" {Param} ")" Result {"^" Throw}. A
// method descriptor is a MethodSignature without type parameters and
// throws clauses.
type MethodSignature struct {
	TypeParams []TypeParameter
	Params     []JavaType
	Result     JavaType
	Throws     []ReferenceType
}

// FieldSignature is a single reference type.
type FieldSignature struct {
	Type ReferenceType
}

func (*ClassType) reference()    {}
func (*TypeVariable) reference() {}
func (*ArrayType) reference()    {}

// BinaryName returns the slashed class name without type arguments. Inner
// segments are joined with '$', so "Ljava/util/Map<TK;TV;>.Entry;" yields
// "java/util/Map$Entry".
func (t *ClassType) BinaryName() string {
	var b strings.Builder
	if t.Package != "" {
		b.WriteString(t.Package)
		b.WriteByte('/')
	}
	b.WriteString(t.Outer.Name)
	for _, in := range t.Inner {
		b.WriteByte('$')
		b.WriteString(in.Name)
	}
	return b.String()
}

func (t *ClassType) write(b *strings.Builder) {
	b.WriteByte('L')
	if t.Package != "" {
		b.WriteString(t.Package)
		b.WriteByte('/')
	}
	t.Outer.write(b)
	for _, in := range t.Inner {
		b.WriteByte('.')
		in.write(b)
	}
	b.WriteByte(';')
}

func (s SimpleClassType) write(b *strings.Builder) {
	b.WriteString(s.Name)
	writeArgs(b, s.Args)
}

func writeArgs(b *strings.Builder, args []TypeArgument) {
	if len(args) == 0 {
		return
	}
	b.WriteByte('<')
	for _, a := range args {
		if a.Wildcard == '*' {
			b.WriteByte('*')
			continue
		}
		if a.Wildcard != 0 {
			b.WriteByte(a.Wildcard)
		}
		a.Type.write(b)
	}
	b.WriteByte('>')
}

func (t *TypeVariable) write(b *strings.Builder) {
	b.WriteByte('T')
	b.WriteString(t.Name)
	b.WriteByte(';')
}

func (t *ArrayType) write(b *strings.Builder) {
	b.WriteByte('[')
	t.Elem.write(b)
}

func writeTypeParams(b *strings.Builder, params []TypeParameter) {
	if len(params) == 0 {
		return
	}
	b.WriteByte('<')
	for _, p := range params {
		b.WriteString(p.Name)
		b.WriteByte(':')
		if p.ClassBound != nil {
			p.ClassBound.write(b)
		}
		for _, ib := range p.InterfaceBounds {
			b.WriteByte(':')
			ib.write(b)
		}
	}
	b.WriteByte('>')
}

func (s *ClassSignature) write(b *strings.Builder) {
	writeTypeParams(b, s.TypeParams)
	s.Super.write(b)
	for _, in := range s.Interfaces {
		in.write(b)
	}
}

func (s *MethodSignature) write(b *strings.Builder) {
	writeTypeParams(b, s.TypeParams)
	b.WriteByte('(')
	for _, p := range s.Params {
		p.write(b)
	}
	b.WriteByte(')')
	s.Result.write(b)
	for _, t := range s.Throws {
		b.WriteByte('^')
		t.write(b)
	}
}

func (s *FieldSignature) write(b *strings.Builder) { s.Type.write(b) }

func (t *ClassType) String() string       { return render(t.write) }
func (t *TypeVariable) String() string    { return render(t.write) }
func (t *ArrayType) String() string       { return render(t.write) }
func (s *ClassSignature) String() string  { return render(s.write) }
func (s *MethodSignature) String() string { return render(s.write) }
func (s *FieldSignature) String() string  { return render(s.write) }

func render(write func(*strings.Builder)) string {
	var b strings.Builder
	write(&b)
	return b.String()
}

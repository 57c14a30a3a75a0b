package signature

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every SyntaxError.
var ErrMalformed = errors.New("malformed signature")

// SyntaxError reports malformed signature or descriptor text.
type SyntaxError struct {
	Text    string
	Pos     int
	Grammar string
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s %s %q at offset %d: %s", ErrMalformed, e.Grammar, e.Text, e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrMalformed }

// parser is a recursive-descent parser shared by the signature and the
// descriptor grammars. In descriptor mode type variables, type arguments
// and inner-class suffixes are rejected and identifiers may contain any
// character except '/' and ';'.
type parser struct {
	s       string
	pos     int
	generic bool
	grammar string
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Text: p.s, Pos: p.pos, Grammar: p.grammar, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		if p.eof() {
			return p.errorf("expected %q, found end of input", c)
		}
		return p.errorf("expected %q, found %q", c, p.s[p.pos])
	}
	p.pos++
	return nil
}

func (p *parser) done() error {
	if !p.eof() {
		return p.errorf("unexpected trailing text %q", p.s[p.pos:])
	}
	return nil
}

func (p *parser) stopsIdent(c byte) bool {
	if p.generic {
		return strings.IndexByte(".;[/<>:", c) >= 0
	}
	return c == ';' || c == '/'
}

func (p *parser) ident() (string, error) {
	start := p.pos
	for !p.eof() && !p.stopsIdent(p.s[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected identifier")
	}
	return p.s[start:p.pos], nil
}

func isBaseType(c byte) bool {
	return strings.IndexByte("BCDFIJSZ", c) >= 0
}

func (p *parser) javaType() (JavaType, error) {
	if c := p.peek(); isBaseType(c) {
		p.pos++
		return BaseType(c), nil
	}
	return p.referenceType()
}

func (p *parser) referenceType() (ReferenceType, error) {
	switch p.peek() {
	case 'L':
		return p.classType()
	case 'T':
		if p.generic {
			return p.typeVariable()
		}
	case '[':
		p.pos++
		elem, err := p.javaType()
		if err != nil {
			return nil, err
		}
		return &ArrayType{Elem: elem}, nil
	}
	if p.eof() {
		return nil, p.errorf("expected type, found end of input")
	}
	return nil, p.errorf("unexpected %q where a type is expected", p.s[p.pos])
}

func (p *parser) typeVariable() (*TypeVariable, error) {
	if err := p.expect('T'); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	return &TypeVariable{Name: name}, nil
}

func (p *parser) classType() (*ClassType, error) {
	if err := p.expect('L'); err != nil {
		return nil, err
	}
	start, lastSlash := p.pos, -1
	var name string
	for {
		id, err := p.ident()
		if err != nil {
			return nil, err
		}
		if p.peek() != '/' {
			name = id
			break
		}
		lastSlash = p.pos
		p.pos++
	}
	ct := &ClassType{Outer: SimpleClassType{Name: name}}
	if lastSlash >= 0 {
		ct.Package = p.s[start:lastSlash]
	}
	if p.generic {
		args, err := p.typeArgs()
		if err != nil {
			return nil, err
		}
		ct.Outer.Args = args
		for p.peek() == '.' {
			p.pos++
			id, err := p.ident()
			if err != nil {
				return nil, err
			}
			args, err := p.typeArgs()
			if err != nil {
				return nil, err
			}
			ct.Inner = append(ct.Inner, SimpleClassType{Name: id, Args: args})
		}
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	return ct, nil
}

// typeArgs parses an optional "<...>" list.
func (p *parser) typeArgs() ([]TypeArgument, error) {
	if p.peek() != '<' {
		return nil, nil
	}
	p.pos++
	var args []TypeArgument
	for p.peek() != '>' {
		switch c := p.peek(); c {
		case 0:
			return nil, p.errorf("unterminated type arguments")
		case '*':
			p.pos++
			args = append(args, TypeArgument{Wildcard: '*'})
		case '+', '-':
			p.pos++
			t, err := p.referenceType()
			if err != nil {
				return nil, err
			}
			args = append(args, TypeArgument{Wildcard: c, Type: t})
		default:
			t, err := p.referenceType()
			if err != nil {
				return nil, err
			}
			args = append(args, TypeArgument{Type: t})
		}
	}
	p.pos++
	if len(args) == 0 {
		return nil, p.errorf("empty type arguments")
	}
	return args, nil
}

func (p *parser) typeParams() ([]TypeParameter, error) {
	if p.peek() != '<' {
		return nil, nil
	}
	p.pos++
	var params []TypeParameter
	for p.peek() != '>' {
		if p.eof() {
			return nil, p.errorf("unterminated type parameters")
		}
		name, err := p.ident()
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		tp := TypeParameter{Name: name}
		if c := p.peek(); c == 'L' || c == 'T' || c == '[' {
			if tp.ClassBound, err = p.referenceType(); err != nil {
				return nil, err
			}
		}
		for p.peek() == ':' {
			p.pos++
			ib, err := p.referenceType()
			if err != nil {
				return nil, err
			}
			tp.InterfaceBounds = append(tp.InterfaceBounds, ib)
		}
		params = append(params, tp)
	}
	p.pos++
	if len(params) == 0 {
		return nil, p.errorf("empty type parameters")
	}
	return params, nil
}

func (p *parser) methodType() (*MethodSignature, error) {
	var (
		ms  MethodSignature
		err error
	)
	if p.generic {
		if ms.TypeParams, err = p.typeParams(); err != nil {
			return nil, err
		}
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}
	for p.peek() != ')' {
		if p.eof() {
			return nil, p.errorf("unterminated parameter list")
		}
		t, err := p.javaType()
		if err != nil {
			return nil, err
		}
		ms.Params = append(ms.Params, t)
	}
	p.pos++
	if p.peek() == 'V' {
		p.pos++
		ms.Result = Void
	} else if ms.Result, err = p.javaType(); err != nil {
		return nil, err
	}
	for p.generic && p.peek() == '^' {
		p.pos++
		var t ReferenceType
		switch p.peek() {
		case 'L':
			t, err = p.classType()
		case 'T':
			t, err = p.typeVariable()
		default:
			err = p.errorf("throws clause must name a class or type variable")
		}
		if err != nil {
			return nil, err
		}
		ms.Throws = append(ms.Throws, t)
	}
	return &ms, nil
}

// ParseClass parses a class signature.
func ParseClass(s string) (*ClassSignature, error) {
	p := &parser{s: s, generic: true, grammar: "class signature"}
	params, err := p.typeParams()
	if err != nil {
		return nil, err
	}
	super, err := p.classType()
	if err != nil {
		return nil, err
	}
	cs := &ClassSignature{TypeParams: params, Super: super}
	for !p.eof() {
		in, err := p.classType()
		if err != nil {
			return nil, err
		}
		cs.Interfaces = append(cs.Interfaces, in)
	}
	return cs, nil
}

// ParseMethod parses a method signature.
func ParseMethod(s string) (*MethodSignature, error) {
	p := &parser{s: s, generic: true, grammar: "method signature"}
	ms, err := p.methodType()
	if err != nil {
		return nil, err
	}
	return ms, p.done()
}

// ParseField parses a field signature.
func ParseField(s string) (*FieldSignature, error) {
	p := &parser{s: s, generic: true, grammar: "field signature"}
	t, err := p.referenceType()
	if err != nil {
		return nil, err
	}
	return &FieldSignature{Type: t}, p.done()
}

// ParseFieldDescriptor parses a field descriptor such as "I",
// "[Ljava/lang/String;" or "Ljavax/servlet/Servlet;".
func ParseFieldDescriptor(s string) (JavaType, error) {
	p := &parser{s: s, grammar: "field descriptor"}
	t, err := p.javaType()
	if err != nil {
		return nil, err
	}
	return t, p.done()
}

// ParseMethodDescriptor parses a method descriptor such as
// "(Ljavax/servlet/ServletRequest;I)V".
func ParseMethodDescriptor(s string) (*MethodSignature, error) {
	p := &parser{s: s, grammar: "method descriptor"}
	ms, err := p.methodType()
	if err != nil {
		return nil, err
	}
	return ms, p.done()
}

// ParseBinaryName splits a slashed class name such as
// "javax/servlet/Servlet$Inner" into a ClassType without arguments.
func ParseBinaryName(s string) (*ClassType, error) {
	if s == "" || strings.ContainsAny(s, ";[") {
		return nil, &SyntaxError{Text: s, Grammar: "binary name", Msg: "not a class name"}
	}
	ct := &ClassType{Outer: SimpleClassType{Name: s}}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		if i == 0 || i == len(s)-1 {
			return nil, &SyntaxError{Text: s, Pos: i, Grammar: "binary name", Msg: "empty name segment"}
		}
		ct.Package, ct.Outer.Name = s[:i], s[i+1:]
	}
	return ct, nil
}

// BinaryName prints a ClassType produced by ParseBinaryName.
func BinaryName(ct *ClassType) string {
	if ct.Package == "" {
		return ct.Outer.Name
	}
	return ct.Package + "/" + ct.Outer.Name
}

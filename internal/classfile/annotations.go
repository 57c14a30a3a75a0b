package classfile

import "fmt"

// Annotation is one annotation; Type is a field descriptor.
type Annotation struct {
	Type     string
	Elements []ElementPair
}

type ElementPair struct {
	Name  string
	Value *ElementValue
}

// ElementValue is one annotation element value, selected by Tag:
//
//	B C D F I J S Z s  ConstIndex (pool index of the constant)
//	e                  EnumType (descriptor) and EnumName
//	c                  Class (return descriptor, "V" allowed)
//	@                  Annotation
//	[                  Array
type ElementValue struct {
	Tag        byte
	ConstIndex uint16
	EnumType   string
	EnumName   string
	Class      string
	Annotation *Annotation
	Array      []*ElementValue
}

// AnnotationsAttribute is RuntimeVisibleAnnotations or
// RuntimeInvisibleAnnotations.
type AnnotationsAttribute struct {
	Name        string
	Annotations []*Annotation
}

// ParameterAnnotationsAttribute is RuntimeVisibleParameterAnnotations or
// RuntimeInvisibleParameterAnnotations.
type ParameterAnnotationsAttribute struct {
	Name       string
	Parameters [][]*Annotation
}

// TypeAnnotation keeps its target and type path undecoded; neither names
// a type.
type TypeAnnotation struct {
	TargetType uint8
	TargetInfo []byte
	TypePath   []byte
	Annotation *Annotation
}

type TypeAnnotationsAttribute struct {
	Name        string
	Annotations []*TypeAnnotation
}

type AnnotationDefaultAttribute struct {
	Value *ElementValue
}

func (a *AnnotationsAttribute) AttrName() string          { return a.Name }
func (a *ParameterAnnotationsAttribute) AttrName() string { return a.Name }
func (a *TypeAnnotationsAttribute) AttrName() string      { return a.Name }
func (*AnnotationDefaultAttribute) AttrName() string      { return AttrAnnotationDefault }

func (d *decoder) annotations(r *reader) []*Annotation {
	n := int(r.u2())
	out := make([]*Annotation, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, d.annotation(r))
	}
	return out
}

func (d *decoder) annotation(r *reader) *Annotation {
	a := &Annotation{Type: d.utf8(r)}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		p := ElementPair{Name: d.utf8(r)}
		p.Value = d.elementValue(r)
		a.Elements = append(a.Elements, p)
	}
	return a
}

func (d *decoder) elementValue(r *reader) *ElementValue {
	v := &ElementValue{Tag: r.u1()}
	if r.err != nil {
		return v
	}
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		v.ConstIndex = r.u2()
	case 'e':
		v.EnumType = d.utf8(r)
		v.EnumName = d.utf8(r)
	case 'c':
		v.Class = d.utf8(r)
	case '@':
		v.Annotation = d.annotation(r)
	case '[':
		n := int(r.u2())
		v.Array = make([]*ElementValue, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			v.Array = append(v.Array, d.elementValue(r))
		}
	default:
		r.fail(fmt.Sprintf("unknown element value tag %q", v.Tag), nil)
	}
	return v
}

func (d *decoder) parameterAnnotations(r *reader, name string) *ParameterAnnotationsAttribute {
	n := int(r.u1())
	a := &ParameterAnnotationsAttribute{Name: name, Parameters: make([][]*Annotation, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		a.Parameters = append(a.Parameters, d.annotations(r))
	}
	return a
}

// targetInfoLen returns the size of a type annotation's target_info.
func targetInfoLen(r *reader, target uint8) int {
	switch target {
	case 0x00, 0x01, 0x16:
		return 1
	case 0x10, 0x11, 0x12, 0x17, 0x42, 0x43, 0x44, 0x45, 0x46:
		return 2
	case 0x13, 0x14, 0x15:
		return 0
	case 0x47, 0x48, 0x49, 0x4A, 0x4B:
		return 3
	case 0x40, 0x41:
		// localvar_target: table_length then {start_pc, length, index}.
		if !r.need(2) {
			return 0
		}
		n := int(r.b[r.off])<<8 | int(r.b[r.off+1])
		return 2 + 6*n
	}
	r.fail(fmt.Sprintf("unknown type annotation target 0x%02x", target), nil)
	return 0
}

func (d *decoder) typeAnnotations(r *reader, name string) *TypeAnnotationsAttribute {
	n := int(r.u2())
	a := &TypeAnnotationsAttribute{Name: name, Annotations: make([]*TypeAnnotation, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		ta := &TypeAnnotation{TargetType: r.u1()}
		if r.err != nil {
			break
		}
		ta.TargetInfo = r.bytes(targetInfoLen(r, ta.TargetType))
		if r.need(1) {
			ta.TypePath = r.bytes(1 + 2*int(r.b[r.off]))
		}
		ta.Annotation = d.annotation(r)
		a.Annotations = append(a.Annotations, ta)
	}
	return a
}

func (e *encoder) annotations(w *writer, as []*Annotation) error {
	if err := w.count(len(as)); err != nil {
		return err
	}
	for _, a := range as {
		if err := e.annotation(w, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) annotation(w *writer, a *Annotation) error {
	w.u2(e.pool.AddUtf8(a.Type))
	if err := w.count(len(a.Elements)); err != nil {
		return err
	}
	for _, p := range a.Elements {
		w.u2(e.pool.AddUtf8(p.Name))
		if err := e.elementValue(w, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) elementValue(w *writer, v *ElementValue) error {
	w.u1(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		w.u2(v.ConstIndex)
	case 'e':
		w.u2(e.pool.AddUtf8(v.EnumType))
		w.u2(e.pool.AddUtf8(v.EnumName))
	case 'c':
		w.u2(e.pool.AddUtf8(v.Class))
	case '@':
		return e.annotation(w, v.Annotation)
	case '[':
		if err := w.count(len(v.Array)); err != nil {
			return err
		}
		for _, el := range v.Array {
			if err := e.elementValue(w, el); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown element value tag %q", v.Tag)
	}
	return nil
}

func (e *encoder) typeAnnotations(w *writer, a *TypeAnnotationsAttribute) error {
	if err := w.count(len(a.Annotations)); err != nil {
		return err
	}
	for _, ta := range a.Annotations {
		w.u1(ta.TargetType)
		w.bytes(ta.TargetInfo)
		w.bytes(ta.TypePath)
		if err := e.annotation(w, ta.Annotation); err != nil {
			return err
		}
	}
	return nil
}

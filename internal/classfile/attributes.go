package classfile

import "fmt"

// Attribute names with a typed representation. Every other attribute is
// kept as a *RawAttribute.
const (
	AttrCode                                 = "Code"
	AttrSignature                            = "Signature"
	AttrExceptions                           = "Exceptions"
	AttrInnerClasses                         = "InnerClasses"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrNestHost                             = "NestHost"
	AttrNestMembers                          = "NestMembers"
	AttrPermittedSubclasses                  = "PermittedSubclasses"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrStackMapTable                        = "StackMapTable"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrRecord                               = "Record"
	AttrModule                               = "Module"
	AttrModulePackages                       = "ModulePackages"
	AttrModuleMainClass                      = "ModuleMainClass"
)

// Attribute is one attribute of a class, member, Code attribute or record
// component. Names and class references are resolved to strings; they are
// interned back into the pool when the class file is written.
type Attribute interface {
	AttrName() string
}

// RawAttribute is an attribute kept byte for byte. Pool indices inside
// Data stay valid because the pool is never renumbered.
type RawAttribute struct {
	Name string
	Data []byte
}

type CodeAttribute struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Handlers   []ExceptionHandler
	Attributes []Attribute
}

// ExceptionHandler is one exception table row; an empty CatchType catches
// everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType string
}

type SignatureAttribute struct {
	Signature string
}

type ExceptionsAttribute struct {
	Classes []string
}

type InnerClassesAttribute struct {
	Classes []InnerClass
}

// InnerClass is one InnerClasses row. Outer and Name are empty when the
// format stores index 0.
type InnerClass struct {
	Inner  string
	Outer  string
	Name   string
	Access uint16
}

type NameAndType struct {
	Name       string
	Descriptor string
}

type EnclosingMethodAttribute struct {
	Class  string
	Method *NameAndType
}

type NestHostAttribute struct {
	Class string
}

// ClassListAttribute is NestMembers or PermittedSubclasses.
type ClassListAttribute struct {
	Name    string
	Classes []string
}

// LocalVariableTableAttribute is LocalVariableTable or
// LocalVariableTypeTable; for the latter Descriptor holds a field
// signature.
type LocalVariableTableAttribute struct {
	Name      string
	Variables []LocalVariable
}

type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

type RecordAttribute struct {
	Components []RecordComponent
}

type RecordComponent struct {
	Name       string
	Descriptor string
	Attributes []Attribute
}

// ModuleAttribute resolves the packages and classes it names. Module and
// version references stay pool indices: they never carry package names.
type ModuleAttribute struct {
	NameIndex    uint16
	Flags        uint16
	VersionIndex uint16
	Requires     []ModuleRequire
	Exports      []ModuleExport
	Opens        []ModuleExport
	Uses         []string
	Provides     []ModuleProvide
}

type ModuleRequire struct {
	ModuleIndex  uint16
	Flags        uint16
	VersionIndex uint16
}

type ModuleExport struct {
	Package string
	Flags   uint16
	To      []uint16
}

type ModuleProvide struct {
	Service string
	With    []string
}

type ModulePackagesAttribute struct {
	Packages []string
}

type ModuleMainClassAttribute struct {
	Class string
}

func (a *RawAttribute) AttrName() string                { return a.Name }
func (*CodeAttribute) AttrName() string                 { return AttrCode }
func (*SignatureAttribute) AttrName() string            { return AttrSignature }
func (*ExceptionsAttribute) AttrName() string           { return AttrExceptions }
func (*InnerClassesAttribute) AttrName() string         { return AttrInnerClasses }
func (*EnclosingMethodAttribute) AttrName() string      { return AttrEnclosingMethod }
func (*NestHostAttribute) AttrName() string             { return AttrNestHost }
func (a *ClassListAttribute) AttrName() string          { return a.Name }
func (a *LocalVariableTableAttribute) AttrName() string { return a.Name }
func (*RecordAttribute) AttrName() string               { return AttrRecord }
func (*ModuleAttribute) AttrName() string               { return AttrModule }
func (*ModulePackagesAttribute) AttrName() string       { return AttrModulePackages }
func (*ModuleMainClassAttribute) AttrName() string      { return AttrModuleMainClass }

// decoder resolves pool references while reading attributes.
type decoder struct {
	pool *Pool
}

func (d *decoder) utf8(r *reader) string {
	i := r.u2()
	if r.err != nil {
		return ""
	}
	s, err := d.pool.Utf8(i)
	if err != nil {
		r.fail("utf8 reference", err)
	}
	return s
}

func (d *decoder) optUtf8(r *reader) string {
	if i := r.u2(); r.err == nil && i != 0 {
		s, err := d.pool.Utf8(i)
		if err != nil {
			r.fail("utf8 reference", err)
		}
		return s
	}
	return ""
}

func (d *decoder) class(r *reader) string {
	i := r.u2()
	if r.err != nil {
		return ""
	}
	s, err := d.pool.ClassName(i)
	if err != nil {
		r.fail("class reference", err)
	}
	return s
}

func (d *decoder) optClass(r *reader) string {
	if i := r.u2(); r.err == nil && i != 0 {
		s, err := d.pool.ClassName(i)
		if err != nil {
			r.fail("class reference", err)
		}
		return s
	}
	return ""
}

func (d *decoder) classes(r *reader) []string {
	n := int(r.u2())
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, d.class(r))
	}
	return out
}

func (d *decoder) attributes(r *reader) []Attribute {
	n := int(r.u2())
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := d.utf8(r)
		length := r.u4()
		start := r.off
		data := r.bytes(int(length))
		if r.err != nil {
			break
		}
		a, err := d.attribute(name, data)
		if err != nil {
			r.err = &ParseError{Offset: start, Msg: "attribute " + name, Err: err}
			break
		}
		attrs = append(attrs, a)
	}
	return attrs
}

func (d *decoder) attribute(name string, data []byte) (Attribute, error) {
	r := &reader{b: data}
	var a Attribute
	switch name {
	case AttrCode:
		a = d.code(r)
	case AttrSignature:
		a = &SignatureAttribute{Signature: d.utf8(r)}
	case AttrExceptions:
		a = &ExceptionsAttribute{Classes: d.classes(r)}
	case AttrInnerClasses:
		a = d.innerClasses(r)
	case AttrEnclosingMethod:
		a = d.enclosingMethod(r)
	case AttrNestHost:
		a = &NestHostAttribute{Class: d.class(r)}
	case AttrNestMembers, AttrPermittedSubclasses:
		a = &ClassListAttribute{Name: name, Classes: d.classes(r)}
	case AttrLocalVariableTable, AttrLocalVariableTypeTable:
		a = d.localVariables(r, name)
	case AttrStackMapTable:
		a = d.stackMapTable(r)
	case AttrRuntimeVisibleAnnotations, AttrRuntimeInvisibleAnnotations:
		a = &AnnotationsAttribute{Name: name, Annotations: d.annotations(r)}
	case AttrRuntimeVisibleParameterAnnotations, AttrRuntimeInvisibleParameterAnnotations:
		a = d.parameterAnnotations(r, name)
	case AttrRuntimeVisibleTypeAnnotations, AttrRuntimeInvisibleTypeAnnotations:
		a = d.typeAnnotations(r, name)
	case AttrAnnotationDefault:
		a = &AnnotationDefaultAttribute{Value: d.elementValue(r)}
	case AttrRecord:
		a = d.record(r)
	case AttrModule:
		a = d.module(r)
	case AttrModulePackages:
		a = d.modulePackages(r)
	case AttrModuleMainClass:
		a = &ModuleMainClassAttribute{Class: d.class(r)}
	default:
		return &RawAttribute{Name: name, Data: data}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	if n := r.remaining(); n != 0 {
		return nil, fmt.Errorf("%d trailing bytes", n)
	}
	return a, nil
}

func (d *decoder) code(r *reader) *CodeAttribute {
	c := &CodeAttribute{MaxStack: r.u2(), MaxLocals: r.u2()}
	c.Code = r.bytes(int(r.u4()))
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		h := ExceptionHandler{StartPC: r.u2(), EndPC: r.u2(), HandlerPC: r.u2()}
		h.CatchType = d.optClass(r)
		c.Handlers = append(c.Handlers, h)
	}
	c.Attributes = d.attributes(r)
	return c
}

func (d *decoder) innerClasses(r *reader) *InnerClassesAttribute {
	n := int(r.u2())
	a := &InnerClassesAttribute{Classes: make([]InnerClass, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		ic := InnerClass{Inner: d.class(r), Outer: d.optClass(r), Name: d.optUtf8(r)}
		ic.Access = r.u2()
		a.Classes = append(a.Classes, ic)
	}
	return a
}

func (d *decoder) enclosingMethod(r *reader) *EnclosingMethodAttribute {
	a := &EnclosingMethodAttribute{Class: d.class(r)}
	i := r.u2()
	if r.err != nil || i == 0 {
		return a
	}
	nt, ok := d.pool.Get(i).(*NameAndTypeInfo)
	if !ok {
		r.fail("enclosing method", d.pool.kindError(i, TagNameAndType))
		return a
	}
	name, err := d.pool.Utf8(nt.NameIndex)
	if err == nil {
		var desc string
		if desc, err = d.pool.Utf8(nt.DescriptorIndex); err == nil {
			a.Method = &NameAndType{Name: name, Descriptor: desc}
		}
	}
	if err != nil {
		r.fail("enclosing method", err)
	}
	return a
}

func (d *decoder) localVariables(r *reader, name string) *LocalVariableTableAttribute {
	n := int(r.u2())
	a := &LocalVariableTableAttribute{Name: name, Variables: make([]LocalVariable, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		v := LocalVariable{StartPC: r.u2(), Length: r.u2()}
		v.Name = d.utf8(r)
		v.Descriptor = d.utf8(r)
		v.Index = r.u2()
		a.Variables = append(a.Variables, v)
	}
	return a
}

func (d *decoder) record(r *reader) *RecordAttribute {
	n := int(r.u2())
	a := &RecordAttribute{Components: make([]RecordComponent, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		c := RecordComponent{Name: d.utf8(r)}
		c.Descriptor = d.utf8(r)
		c.Attributes = d.attributes(r)
		a.Components = append(a.Components, c)
	}
	return a
}

func (d *decoder) packageName(r *reader) string {
	i := r.u2()
	if r.err != nil {
		return ""
	}
	s, err := d.pool.PackageName(i)
	if err != nil {
		r.fail("package reference", err)
	}
	return s
}

func (d *decoder) moduleExports(r *reader) []ModuleExport {
	n := int(r.u2())
	out := make([]ModuleExport, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		e := ModuleExport{Package: d.packageName(r), Flags: r.u2()}
		m := int(r.u2())
		for j := 0; j < m && r.err == nil; j++ {
			e.To = append(e.To, r.u2())
		}
		out = append(out, e)
	}
	return out
}

func (d *decoder) module(r *reader) *ModuleAttribute {
	a := &ModuleAttribute{NameIndex: r.u2(), Flags: r.u2(), VersionIndex: r.u2()}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		a.Requires = append(a.Requires, ModuleRequire{ModuleIndex: r.u2(), Flags: r.u2(), VersionIndex: r.u2()})
	}
	a.Exports = d.moduleExports(r)
	a.Opens = d.moduleExports(r)
	a.Uses = d.classes(r)
	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		p := ModuleProvide{Service: d.class(r)}
		p.With = d.classes(r)
		a.Provides = append(a.Provides, p)
	}
	return a
}

func (d *decoder) modulePackages(r *reader) *ModulePackagesAttribute {
	n := int(r.u2())
	a := &ModulePackagesAttribute{Packages: make([]string, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		a.Packages = append(a.Packages, d.packageName(r))
	}
	return a
}

// encoder interns attribute contents into the pool while writing.
type encoder struct {
	pool *Pool
}

func (e *encoder) optClass(w *writer, name string) {
	if name == "" {
		w.u2(0)
		return
	}
	w.u2(e.pool.AddClass(name))
}

func (e *encoder) classes(w *writer, names []string) error {
	if err := w.count(len(names)); err != nil {
		return err
	}
	for _, n := range names {
		w.u2(e.pool.AddClass(n))
	}
	return nil
}

func (e *encoder) attributes(w *writer, attrs []Attribute) error {
	if err := w.count(len(attrs)); err != nil {
		return err
	}
	for _, a := range attrs {
		w.u2(e.pool.AddUtf8(a.AttrName()))
		var body writer
		if err := e.attribute(&body, a); err != nil {
			return fmt.Errorf("attribute %s: %w", a.AttrName(), err)
		}
		w.u4(uint32(body.len()))
		w.bytes(body.b)
	}
	return nil
}

func (e *encoder) attribute(w *writer, a Attribute) error {
	switch a := a.(type) {
	case *RawAttribute:
		w.bytes(a.Data)
	case *CodeAttribute:
		return e.code(w, a)
	case *SignatureAttribute:
		w.u2(e.pool.AddUtf8(a.Signature))
	case *ExceptionsAttribute:
		return e.classes(w, a.Classes)
	case *InnerClassesAttribute:
		if err := w.count(len(a.Classes)); err != nil {
			return err
		}
		for _, ic := range a.Classes {
			w.u2(e.pool.AddClass(ic.Inner))
			e.optClass(w, ic.Outer)
			if ic.Name == "" {
				w.u2(0)
			} else {
				w.u2(e.pool.AddUtf8(ic.Name))
			}
			w.u2(ic.Access)
		}
	case *EnclosingMethodAttribute:
		w.u2(e.pool.AddClass(a.Class))
		if a.Method == nil {
			w.u2(0)
		} else {
			w.u2(e.pool.AddNameAndType(a.Method.Name, a.Method.Descriptor))
		}
	case *NestHostAttribute:
		w.u2(e.pool.AddClass(a.Class))
	case *ClassListAttribute:
		return e.classes(w, a.Classes)
	case *LocalVariableTableAttribute:
		if err := w.count(len(a.Variables)); err != nil {
			return err
		}
		for _, v := range a.Variables {
			w.u2(v.StartPC)
			w.u2(v.Length)
			w.u2(e.pool.AddUtf8(v.Name))
			w.u2(e.pool.AddUtf8(v.Descriptor))
			w.u2(v.Index)
		}
	case *StackMapTableAttribute:
		return e.stackMapTable(w, a)
	case *AnnotationsAttribute:
		return e.annotations(w, a.Annotations)
	case *ParameterAnnotationsAttribute:
		if len(a.Parameters) > 0xFF {
			return fmt.Errorf("%d parameters exceed the class-file limit", len(a.Parameters))
		}
		w.u1(uint8(len(a.Parameters)))
		for _, p := range a.Parameters {
			if err := e.annotations(w, p); err != nil {
				return err
			}
		}
	case *TypeAnnotationsAttribute:
		return e.typeAnnotations(w, a)
	case *AnnotationDefaultAttribute:
		return e.elementValue(w, a.Value)
	case *RecordAttribute:
		if err := w.count(len(a.Components)); err != nil {
			return err
		}
		for _, c := range a.Components {
			w.u2(e.pool.AddUtf8(c.Name))
			w.u2(e.pool.AddUtf8(c.Descriptor))
			if err := e.attributes(w, c.Attributes); err != nil {
				return err
			}
		}
	case *ModuleAttribute:
		return e.module(w, a)
	case *ModulePackagesAttribute:
		if err := w.count(len(a.Packages)); err != nil {
			return err
		}
		for _, p := range a.Packages {
			w.u2(e.pool.AddPackage(p))
		}
	case *ModuleMainClassAttribute:
		w.u2(e.pool.AddClass(a.Class))
	default:
		return fmt.Errorf("unknown attribute type %T", a)
	}
	return nil
}

func (e *encoder) code(w *writer, c *CodeAttribute) error {
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	w.u4(uint32(len(c.Code)))
	w.bytes(c.Code)
	if err := w.count(len(c.Handlers)); err != nil {
		return err
	}
	for _, h := range c.Handlers {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		e.optClass(w, h.CatchType)
	}
	return e.attributes(w, c.Attributes)
}

func (e *encoder) moduleExports(w *writer, exports []ModuleExport) error {
	if err := w.count(len(exports)); err != nil {
		return err
	}
	for _, x := range exports {
		w.u2(e.pool.AddPackage(x.Package))
		w.u2(x.Flags)
		if err := w.count(len(x.To)); err != nil {
			return err
		}
		for _, t := range x.To {
			w.u2(t)
		}
	}
	return nil
}

func (e *encoder) module(w *writer, m *ModuleAttribute) error {
	w.u2(m.NameIndex)
	w.u2(m.Flags)
	w.u2(m.VersionIndex)
	if err := w.count(len(m.Requires)); err != nil {
		return err
	}
	for _, r := range m.Requires {
		w.u2(r.ModuleIndex)
		w.u2(r.Flags)
		w.u2(r.VersionIndex)
	}
	if err := e.moduleExports(w, m.Exports); err != nil {
		return err
	}
	if err := e.moduleExports(w, m.Opens); err != nil {
		return err
	}
	if err := e.classes(w, m.Uses); err != nil {
		return err
	}
	if err := w.count(len(m.Provides)); err != nil {
		return err
	}
	for _, p := range m.Provides {
		w.u2(e.pool.AddClass(p.Service))
		if err := e.classes(w, p.With); err != nil {
			return err
		}
	}
	return nil
}

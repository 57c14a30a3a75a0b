// Package classfile reads and writes the JVM class-file format.
//
// The model resolves every class, descriptor and signature reference to a
// string so callers can rewrite names without tracking pool indices. When
// the model is written those strings are interned back into the pool,
// which is only ever appended to: bytecode and raw attributes that refer
// to pool indices stay valid.
package classfile

import (
	"bytes"
	"fmt"
)

// Magic is the class-file magic number.
const Magic = 0xCAFEBABE

// ClassFile is a parsed class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *Pool
	AccessFlags  uint16
	ThisClass    string
	SuperClass   string // empty for java/lang/Object and module-info
	Interfaces   []string
	Fields       []*Member
	Methods      []*Member
	Attributes   []Attribute
}

// Member is a field or method.
type Member struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []Attribute
}

// IsClassFile reports whether b starts with the class-file magic number.
func IsClassFile(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], []byte{0xCA, 0xFE, 0xBA, 0xBE})
}

// Parse decodes a class file. The returned model shares Utf8 bytes with b.
func Parse(b []byte) (*ClassFile, error) {
	if !IsClassFile(b) {
		return nil, &ParseError{Msg: "bad magic", Err: ErrNotClassFile}
	}
	r := &reader{b: b, off: 4}
	cf := &ClassFile{MinorVersion: r.u2(), MajorVersion: r.u2()}
	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool
	d := &decoder{pool: pool}

	cf.AccessFlags = r.u2()
	cf.ThisClass = d.class(r)
	cf.SuperClass = d.optClass(r)
	cf.Interfaces = d.classes(r)
	cf.Fields = d.members(r)
	cf.Methods = d.members(r)
	cf.Attributes = d.attributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.remaining() != 0 {
		return nil, &ParseError{Offset: r.off, Msg: fmt.Sprintf("%d trailing bytes", r.remaining())}
	}
	return cf, nil
}

func (d *decoder) members(r *reader) []*Member {
	n := int(r.u2())
	out := make([]*Member, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := &Member{AccessFlags: r.u2()}
		m.Name = d.utf8(r)
		m.Descriptor = d.utf8(r)
		m.Attributes = d.attributes(r)
		out = append(out, m)
	}
	return out
}

func parsePool(r *reader) (*Pool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		return nil, &ParseError{Offset: r.off - 2, Msg: "empty constant pool count"}
	}
	p := &Pool{entries: make([]Constant, 1, count)}
	for i := 1; i < count; i++ {
		start := r.off
		tag := r.u1()
		var c Constant
		switch tag {
		case TagUtf8:
			raw := r.bytes(int(r.u2()))
			v, ok := DecodeModifiedUTF8(raw)
			c = &Utf8Info{Value: v, Raw: raw, Valid: ok}
		case TagInteger:
			c = &IntegerInfo{Bits: r.u4()}
		case TagFloat:
			c = &FloatInfo{Bits: r.u4()}
		case TagLong:
			c = &LongInfo{Bits: r.u8()}
		case TagDouble:
			c = &DoubleInfo{Bits: r.u8()}
		case TagClass:
			c = &ClassInfo{NameIndex: r.u2()}
		case TagString:
			c = &StringInfo{StringIndex: r.u2()}
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			c = &RefInfo{Kind: tag, ClassIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagNameAndType:
			c = &NameAndTypeInfo{NameIndex: r.u2(), DescriptorIndex: r.u2()}
		case TagMethodHandle:
			c = &MethodHandleInfo{ReferenceKind: r.u1(), ReferenceIndex: r.u2()}
		case TagMethodType:
			c = &MethodTypeInfo{DescriptorIndex: r.u2()}
		case TagDynamic, TagInvokeDynamic:
			c = &DynamicInfo{Kind: tag, BootstrapIndex: r.u2(), NameAndTypeIndex: r.u2()}
		case TagModule:
			c = &ModuleInfo{NameIndex: r.u2()}
		case TagPackage:
			c = &PackageInfo{NameIndex: r.u2()}
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, &UnsupportedConstantError{Tag: tag, Index: i}
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries = append(p.entries, c)
		if IsWide(tag) {
			if i+1 >= count {
				return nil, &ParseError{Offset: start, Msg: fmt.Sprintf("%s constant at index %d overruns the pool", TagName(tag), i)}
			}
			p.entries = append(p.entries, nil)
			i++
		}
	}
	return p, nil
}

// Bytes encodes the class file. Strings of the model that are not yet in
// the pool are appended to it first.
func (cf *ClassFile) Bytes() ([]byte, error) {
	e := &encoder{pool: cf.Pool}
	var body writer
	if err := cf.encodeBody(e, &body); err != nil {
		return nil, err
	}
	if cf.Pool.Len() > MaxPoolSize {
		return nil, fmt.Errorf("constant pool of %d entries exceeds the class-file limit", cf.Pool.Len())
	}

	out := writer{b: make([]byte, 0, 10+body.len()+16*cf.Pool.Len())}
	out.u4(Magic)
	out.u2(cf.MinorVersion)
	out.u2(cf.MajorVersion)
	out.u2(uint16(cf.Pool.Len()))
	for i, c := range cf.Pool.entries {
		if c == nil {
			continue
		}
		if err := writeConstant(&out, c); err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
	}
	out.bytes(body.b)
	return out.b, nil
}

func (cf *ClassFile) encodeBody(e *encoder, w *writer) error {
	w.u2(cf.AccessFlags)
	w.u2(e.pool.AddClass(cf.ThisClass))
	e.optClass(w, cf.SuperClass)
	if err := e.classes(w, cf.Interfaces); err != nil {
		return err
	}
	for _, ms := range [][]*Member{cf.Fields, cf.Methods} {
		if err := w.count(len(ms)); err != nil {
			return err
		}
		for _, m := range ms {
			w.u2(m.AccessFlags)
			w.u2(e.pool.AddUtf8(m.Name))
			w.u2(e.pool.AddUtf8(m.Descriptor))
			if err := e.attributes(w, m.Attributes); err != nil {
				return fmt.Errorf("member %s%s: %w", m.Name, m.Descriptor, err)
			}
		}
	}
	return e.attributes(w, cf.Attributes)
}

func writeConstant(w *writer, c Constant) error {
	w.u1(c.Tag())
	switch c := c.(type) {
	case *Utf8Info:
		raw := c.Raw
		if raw == nil {
			raw = EncodeModifiedUTF8(c.Value)
		}
		if len(raw) > 0xFFFF {
			return fmt.Errorf("string of %d bytes exceeds the class-file limit", len(raw))
		}
		w.u2(uint16(len(raw)))
		w.bytes(raw)
	case *IntegerInfo:
		w.u4(c.Bits)
	case *FloatInfo:
		w.u4(c.Bits)
	case *LongInfo:
		w.u8(c.Bits)
	case *DoubleInfo:
		w.u8(c.Bits)
	case *ClassInfo:
		w.u2(c.NameIndex)
	case *StringInfo:
		w.u2(c.StringIndex)
	case *RefInfo:
		w.u2(c.ClassIndex)
		w.u2(c.NameAndTypeIndex)
	case *NameAndTypeInfo:
		w.u2(c.NameIndex)
		w.u2(c.DescriptorIndex)
	case *MethodHandleInfo:
		w.u1(c.ReferenceKind)
		w.u2(c.ReferenceIndex)
	case *MethodTypeInfo:
		w.u2(c.DescriptorIndex)
	case *DynamicInfo:
		w.u2(c.BootstrapIndex)
		w.u2(c.NameAndTypeIndex)
	case *ModuleInfo:
		w.u2(c.NameIndex)
	case *PackageInfo:
		w.u2(c.NameIndex)
	default:
		return &UnsupportedConstantError{Tag: c.Tag()}
	}
	return nil
}

// New returns an empty class file for a public class, with a fresh pool.
func New(name, super string, major uint16) *ClassFile {
	return &ClassFile{
		MajorVersion: major,
		Pool:         NewPool(),
		AccessFlags:  AccPublic | AccSuper,
		ThisClass:    name,
		SuperClass:   super,
	}
}

// Access flags used by New.
const (
	AccPublic = 0x0001
	AccSuper  = 0x0020
)

package classfile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleClass builds a class that exercises every typed attribute.
func sampleClass() *ClassFile {
	cf := New("javax/foo/Bar", "java/lang/Object", 61)
	cf.Interfaces = []string{"java/io/Serializable"}
	p := cf.Pool
	msg := p.AddString("javax.foo.Bar says hi")
	ver := p.AddUtf8("1.0")

	cf.Fields = []*Member{{
		AccessFlags: 0x0002,
		Name:        "self",
		Descriptor:  "Ljavax/foo/Bar;",
		Attributes: []Attribute{
			&SignatureAttribute{Signature: "Ljava/util/List<Ljavax/foo/Bar;>;"},
			&AnnotationsAttribute{Name: AttrRuntimeVisibleAnnotations, Annotations: []*Annotation{{
				Type: "Ljavax/foo/Marker;",
				Elements: []ElementPair{
					{Name: "value", Value: &ElementValue{Tag: 's', ConstIndex: ver}},
					{Name: "kind", Value: &ElementValue{Tag: 'e', EnumType: "Ljavax/foo/Kind;", EnumName: "A"}},
					{Name: "type", Value: &ElementValue{Tag: 'c', Class: "Ljavax/foo/Bar;"}},
					{Name: "nested", Value: &ElementValue{Tag: '@', Annotation: &Annotation{Type: "Ljavax/foo/Inner;"}}},
					{Name: "list", Value: &ElementValue{Tag: '[', Array: []*ElementValue{{Tag: 'c', Class: "V"}}}},
				},
			}}},
		},
	}}

	code := &CodeAttribute{
		MaxStack:  2,
		MaxLocals: 2,
		Code:      []byte{0x12, byte(msg), 0x57, 0xB1}, // ldc; pop; return
		Handlers: []ExceptionHandler{
			{StartPC: 0, EndPC: 3, HandlerPC: 3, CatchType: "javax/foo/BarException"},
			{StartPC: 0, EndPC: 3, HandlerPC: 3},
		},
		Attributes: []Attribute{
			&LocalVariableTableAttribute{Name: AttrLocalVariableTable, Variables: []LocalVariable{
				{StartPC: 0, Length: 4, Name: "this", Descriptor: "Ljavax/foo/Bar;", Index: 0},
			}},
			&StackMapTableAttribute{Frames: []Frame{
				{Type: 3},
				{Type: 64, Stack: []VerificationType{{Tag: ItemObject, Class: "javax/foo/BarException"}}},
				{Type: 252, OffsetDelta: 1, Locals: []VerificationType{{Tag: ItemInteger}}},
				{Type: 255, OffsetDelta: 0, Locals: []VerificationType{{Tag: ItemObject, Class: "javax/foo/Bar"}, {Tag: ItemUninitialized, Offset: 7}}, Stack: []VerificationType{{Tag: ItemNull}}},
			}},
			&RawAttribute{Name: "LineNumberTable", Data: []byte{0, 1, 0, 0, 0, 7}},
		},
	}
	cf.Methods = []*Member{{
		AccessFlags: AccPublic,
		Name:        "run",
		Descriptor:  "(Ljavax/foo/Bar;I)V",
		Attributes: []Attribute{
			code,
			&ExceptionsAttribute{Classes: []string{"javax/foo/BarException"}},
			&ParameterAnnotationsAttribute{Name: AttrRuntimeInvisibleParameterAnnotations, Parameters: [][]*Annotation{
				{{Type: "Ljavax/foo/Param;"}}, nil,
			}},
			&TypeAnnotationsAttribute{Name: AttrRuntimeVisibleTypeAnnotations, Annotations: []*TypeAnnotation{
				{TargetType: 0x16, TargetInfo: []byte{0}, TypePath: []byte{1, 3, 0}, Annotation: &Annotation{Type: "Ljavax/foo/NonNull;"}},
				{TargetType: 0x40, TargetInfo: []byte{0, 1, 0, 0, 0, 4, 0, 1}, TypePath: []byte{0}, Annotation: &Annotation{Type: "Ljavax/foo/NonNull;"}},
			}},
		},
	}}

	cf.Attributes = []Attribute{
		&SignatureAttribute{Signature: "Ljava/lang/Object;Ljava/io/Serializable;"},
		&InnerClassesAttribute{Classes: []InnerClass{
			{Inner: "javax/foo/Bar$In", Outer: "javax/foo/Bar", Name: "In", Access: 0x0009},
			{Inner: "javax/foo/Bar$1"},
		}},
		&EnclosingMethodAttribute{Class: "javax/foo/Outer", Method: &NameAndType{Name: "make", Descriptor: "()Ljavax/foo/Bar;"}},
		&NestHostAttribute{Class: "javax/foo/Outer"},
		&ClassListAttribute{Name: AttrPermittedSubclasses, Classes: []string{"javax/foo/Sub"}},
		&RecordAttribute{Components: []RecordComponent{{Name: "x", Descriptor: "Ljavax/foo/Bar;", Attributes: []Attribute{
			&SignatureAttribute{Signature: "Ljavax/foo/Bar;"},
		}}}},
	}
	return cf
}

func TestWriteParseRoundTrip(t *testing.T) {
	b, err := sampleClass().Bytes()
	require.NoError(t, err)
	require.True(t, IsClassFile(b))

	cf, err := Parse(b)
	require.NoError(t, err)
	require.Equal(t, "javax/foo/Bar", cf.ThisClass)
	require.Equal(t, "java/lang/Object", cf.SuperClass)
	require.Equal(t, []string{"java/io/Serializable"}, cf.Interfaces)
	require.Equal(t, uint16(61), cf.MajorVersion)
	require.Len(t, cf.Fields, 1)
	require.Equal(t, "Ljavax/foo/Bar;", cf.Fields[0].Descriptor)
	require.Len(t, cf.Methods, 1)

	code, ok := cf.Methods[0].Attributes[0].(*CodeAttribute)
	require.True(t, ok)
	require.Equal(t, "javax/foo/BarException", code.Handlers[0].CatchType)
	require.Empty(t, code.Handlers[1].CatchType)
	smt, ok := code.Attributes[1].(*StackMapTableAttribute)
	require.True(t, ok)
	require.Len(t, smt.Frames, 4)
	require.Equal(t, "javax/foo/Bar", smt.Frames[3].Locals[0].Class)
	require.Equal(t, uint16(7), smt.Frames[3].Locals[1].Offset)
	raw, ok := code.Attributes[2].(*RawAttribute)
	require.True(t, ok)
	require.Equal(t, "LineNumberTable", raw.Name)

	ann := cf.Fields[0].Attributes[1].(*AnnotationsAttribute).Annotations[0]
	require.Equal(t, "Ljavax/foo/Marker;", ann.Type)
	s, err := cf.Pool.Utf8(ann.Elements[0].Value.ConstIndex)
	require.NoError(t, err)
	require.Equal(t, "1.0", s)

	em := cf.Attributes[2].(*EnclosingMethodAttribute)
	require.Equal(t, "make", em.Method.Name)

	// Writing an unmodified parse reproduces the input.
	again, err := cf.Bytes()
	require.NoError(t, err)
	require.Equal(t, b, again)
}

func TestWideConstantsTakeTwoSlots(t *testing.T) {
	cf := New("a/B", "java/lang/Object", 52)
	l := cf.Pool.Add(&LongInfo{Bits: 1 << 40})
	d := cf.Pool.Add(&DoubleInfo{Bits: 0x400921FB54442D18})
	after := cf.Pool.AddUtf8("after")
	require.Equal(t, l+2, d)
	require.Equal(t, d+2, after)

	b, err := cf.Bytes()
	require.NoError(t, err)
	parsed, err := Parse(b)
	require.NoError(t, err)
	require.Nil(t, parsed.Pool.Get(l+1))
	require.Nil(t, parsed.Pool.Get(d+1))
	v, err := parsed.Pool.Utf8(after)
	require.NoError(t, err)
	require.Equal(t, "after", v)
	require.Equal(t, uint64(1<<40), parsed.Pool.Get(l).(*LongInfo).Bits)
}

func TestPoolInterning(t *testing.T) {
	p := NewPool()
	a := p.AddClass("javax/foo/Bar")
	require.Equal(t, a, p.AddClass("javax/foo/Bar"))
	n := p.Get(a).(*ClassInfo).NameIndex

	// Replacing a Utf8 in place redirects lookups of both values.
	p.Set(n, NewUtf8("jakarta/foo/Bar"))
	require.Equal(t, a, p.AddClass("jakarta/foo/Bar"))
	require.NotEqual(t, a, p.AddClass("javax/foo/Bar"))

	nt := p.AddNameAndType("run", "()V")
	require.Equal(t, nt, p.AddNameAndType("run", "()V"))
	require.Equal(t, p.AddString("x"), p.AddString("x"))
	require.Equal(t, p.AddPackage("javax/foo"), p.AddPackage("javax/foo"))
	require.Equal(t, p.AddModule("java.base"), p.AddModule("java.base"))

	clone := p.Clone()
	p.Set(n, NewUtf8("other"))
	s, err := clone.Utf8(n)
	require.NoError(t, err)
	require.Equal(t, "jakarta/foo/Bar", s)
}

func header(poolCount uint16) []byte {
	return []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52, byte(poolCount >> 8), byte(poolCount)}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("PK\x03\x04"))
	require.ErrorIs(t, err, ErrNotClassFile)

	_, err = Parse(append(header(2), 2, 0, 0))
	var uc *UnsupportedConstantError
	require.ErrorAs(t, err, &uc)
	require.Equal(t, uint8(2), uc.Tag)
	require.Equal(t, 1, uc.Index)

	_, err = Parse(append(header(3), TagUtf8, 0, 5, 'a'))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	// A long in the last slot overruns the pool.
	_, err = Parse(append(header(2), TagLong, 0, 0, 0, 0, 0, 0, 0, 1))
	require.ErrorAs(t, err, &pe)

	b, err := New("a/B", "", 52).Bytes()
	require.NoError(t, err)
	_, err = Parse(append(b, 0))
	require.ErrorAs(t, err, &pe)
	require.Contains(t, pe.Error(), "trailing")
	require.False(t, errors.Is(err, ErrNotClassFile))
}

func TestModuleAttributes(t *testing.T) {
	cf := New("module-info", "", 53)
	cf.AccessFlags = 0x8000
	p := cf.Pool
	cf.Attributes = []Attribute{
		&ModuleAttribute{
			NameIndex: p.AddModule("com.example"),
			Requires:  []ModuleRequire{{ModuleIndex: p.AddModule("java.base"), Flags: 0x8000}},
			Exports:   []ModuleExport{{Package: "javax/foo", To: []uint16{p.AddModule("other")}}},
			Opens:     []ModuleExport{{Package: "javax/foo/impl"}},
			Uses:      []string{"javax/foo/Spi"},
			Provides:  []ModuleProvide{{Service: "javax/foo/Spi", With: []string{"javax/foo/impl/SpiImpl"}}},
		},
		&ModulePackagesAttribute{Packages: []string{"javax/foo", "javax/foo/impl"}},
		&ModuleMainClassAttribute{Class: "javax/foo/Main"},
	}
	b, err := cf.Bytes()
	require.NoError(t, err)
	parsed, err := Parse(b)
	require.NoError(t, err)
	require.Empty(t, parsed.SuperClass)
	m := parsed.Attributes[0].(*ModuleAttribute)
	require.Equal(t, "javax/foo", m.Exports[0].Package)
	require.Equal(t, "javax/foo/impl", m.Opens[0].Package)
	require.Equal(t, []string{"javax/foo/Spi"}, m.Uses)
	require.Equal(t, []string{"javax/foo/impl/SpiImpl"}, m.Provides[0].With)
	require.Equal(t, []string{"javax/foo", "javax/foo/impl"}, parsed.Attributes[1].(*ModulePackagesAttribute).Packages)
	require.Equal(t, "javax/foo/Main", parsed.Attributes[2].(*ModuleMainClassAttribute).Class)
}

func TestModifiedUTF8(t *testing.T) {
	cases := map[string][]byte{
		"abc":        []byte("abc"),
		"a\x00b":     {'a', 0xC0, 0x80, 'b'},
		"\u00e9":     {0xC3, 0xA9},
		"\u20ac":     {0xE2, 0x82, 0xAC},
		"\U0001F600": {0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80},
	}
	for s, enc := range cases {
		require.Equal(t, enc, EncodeModifiedUTF8(s), "%q", s)
		got, ok := DecodeModifiedUTF8(enc)
		require.True(t, ok, "%q", s)
		require.Equal(t, s, got)
	}

	for _, bad := range [][]byte{{0x00}, {0xC3}, {0xED, 0xA0, 0xBD}, {0xED, 0xB8, 0x80}, {0xF0, 0x9F, 0x98, 0x80}} {
		_, ok := DecodeModifiedUTF8(bad)
		require.False(t, ok, "% x", bad)
	}
}

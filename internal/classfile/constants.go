package classfile

import "fmt"

// Constant pool tags.
const (
	TagUtf8               uint8 = 1
	TagInteger            uint8 = 3
	TagFloat              uint8 = 4
	TagLong               uint8 = 5
	TagDouble             uint8 = 6
	TagClass              uint8 = 7
	TagString             uint8 = 8
	TagFieldref           uint8 = 9
	TagMethodref          uint8 = 10
	TagInterfaceMethodref uint8 = 11
	TagNameAndType        uint8 = 12
	TagMethodHandle       uint8 = 15
	TagMethodType         uint8 = 16
	TagDynamic            uint8 = 17
	TagInvokeDynamic      uint8 = 18
	TagModule             uint8 = 19
	TagPackage            uint8 = 20
)

// Constant is one constant pool entry. The concrete types form a closed
// set: *Utf8Info, *IntegerInfo, *FloatInfo, *LongInfo, *DoubleInfo,
// *ClassInfo, *StringInfo, *RefInfo, *NameAndTypeInfo, *MethodHandleInfo,
// *MethodTypeInfo, *DynamicInfo, *ModuleInfo and *PackageInfo.
type Constant interface {
	Tag() uint8
}

// Utf8Info holds a modified UTF-8 string. Raw keeps the bytes as read so
// unchanged entries are written back verbatim; Valid is false when Raw is
// not decodable, in which case Value is empty and the entry must not be
// rewritten.
type Utf8Info struct {
	Value string
	Raw   []byte
	Valid bool
}

// NewUtf8 returns an entry for s.
func NewUtf8(s string) *Utf8Info {
	return &Utf8Info{Value: s, Raw: EncodeModifiedUTF8(s), Valid: true}
}

type IntegerInfo struct{ Bits uint32 }
type FloatInfo struct{ Bits uint32 }
type LongInfo struct{ Bits uint64 }
type DoubleInfo struct{ Bits uint64 }

type ClassInfo struct{ NameIndex uint16 }
type StringInfo struct{ StringIndex uint16 }

// RefInfo is a Fieldref, Methodref or InterfaceMethodref.
type RefInfo struct {
	Kind             uint8
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

type NameAndTypeInfo struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

type MethodHandleInfo struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

type MethodTypeInfo struct{ DescriptorIndex uint16 }

// DynamicInfo is a Dynamic or InvokeDynamic entry.
type DynamicInfo struct {
	Kind             uint8
	BootstrapIndex   uint16
	NameAndTypeIndex uint16
}

type ModuleInfo struct{ NameIndex uint16 }
type PackageInfo struct{ NameIndex uint16 }

func (*Utf8Info) Tag() uint8         { return TagUtf8 }
func (*IntegerInfo) Tag() uint8      { return TagInteger }
func (*FloatInfo) Tag() uint8        { return TagFloat }
func (*LongInfo) Tag() uint8         { return TagLong }
func (*DoubleInfo) Tag() uint8       { return TagDouble }
func (*ClassInfo) Tag() uint8        { return TagClass }
func (*StringInfo) Tag() uint8       { return TagString }
func (c *RefInfo) Tag() uint8        { return c.Kind }
func (*NameAndTypeInfo) Tag() uint8  { return TagNameAndType }
func (*MethodHandleInfo) Tag() uint8 { return TagMethodHandle }
func (*MethodTypeInfo) Tag() uint8   { return TagMethodType }
func (c *DynamicInfo) Tag() uint8    { return c.Kind }
func (*ModuleInfo) Tag() uint8       { return TagModule }
func (*PackageInfo) Tag() uint8      { return TagPackage }

// IsWide reports whether a constant with the tag occupies two pool slots.
func IsWide(tag uint8) bool { return tag == TagLong || tag == TagDouble }

// TagName returns a readable name for a pool tag.
func TagName(tag uint8) string {
	switch tag {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagDynamic:
		return "Dynamic"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	case TagModule:
		return "Module"
	case TagPackage:
		return "Package"
	}
	return fmt.Sprintf("tag(%d)", tag)
}

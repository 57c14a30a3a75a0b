package classfile

import "fmt"

// Verification type tags.
const (
	ItemTop               uint8 = 0
	ItemInteger           uint8 = 1
	ItemFloat             uint8 = 2
	ItemDouble            uint8 = 3
	ItemLong              uint8 = 4
	ItemNull              uint8 = 5
	ItemUninitializedThis uint8 = 6
	ItemObject            uint8 = 7
	ItemUninitialized     uint8 = 8
)

// VerificationType is one stack map slot. Class is set for ItemObject,
// Offset for ItemUninitialized.
type VerificationType struct {
	Tag    uint8
	Class  string
	Offset uint16
}

// Frame is one stack_map_frame. OffsetDelta is meaningful only for frame
// types 247 and above; smaller types encode it in Type.
type Frame struct {
	Type        uint8
	OffsetDelta uint16
	Locals      []VerificationType
	Stack       []VerificationType
}

type StackMapTableAttribute struct {
	Frames []Frame
}

func (*StackMapTableAttribute) AttrName() string { return AttrStackMapTable }

func (d *decoder) verificationType(r *reader) VerificationType {
	v := VerificationType{Tag: r.u1()}
	switch v.Tag {
	case ItemObject:
		v.Class = d.class(r)
	case ItemUninitialized:
		v.Offset = r.u2()
	default:
		if v.Tag > ItemUninitialized {
			r.fail(fmt.Sprintf("unknown verification type %d", v.Tag), nil)
		}
	}
	return v
}

func (d *decoder) verificationTypes(r *reader, n int) []VerificationType {
	out := make([]VerificationType, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, d.verificationType(r))
	}
	return out
}

func (d *decoder) stackMapTable(r *reader) *StackMapTableAttribute {
	n := int(r.u2())
	a := &StackMapTableAttribute{Frames: make([]Frame, 0, n)}
	for i := 0; i < n && r.err == nil; i++ {
		f := Frame{Type: r.u1()}
		switch t := f.Type; {
		case t < 64:
		case t < 128:
			f.Stack = d.verificationTypes(r, 1)
		case t < 247:
			r.fail(fmt.Sprintf("reserved frame type %d", t), nil)
		case t == 247:
			f.OffsetDelta = r.u2()
			f.Stack = d.verificationTypes(r, 1)
		case t < 252:
			f.OffsetDelta = r.u2()
		case t < 255:
			f.OffsetDelta = r.u2()
			f.Locals = d.verificationTypes(r, int(t)-251)
		default:
			f.OffsetDelta = r.u2()
			f.Locals = d.verificationTypes(r, int(r.u2()))
			f.Stack = d.verificationTypes(r, int(r.u2()))
		}
		a.Frames = append(a.Frames, f)
	}
	return a
}

func (e *encoder) verificationTypes(w *writer, vs []VerificationType) {
	for _, v := range vs {
		w.u1(v.Tag)
		switch v.Tag {
		case ItemObject:
			w.u2(e.pool.AddClass(v.Class))
		case ItemUninitialized:
			w.u2(v.Offset)
		}
	}
}

func (e *encoder) stackMapTable(w *writer, a *StackMapTableAttribute) error {
	if err := w.count(len(a.Frames)); err != nil {
		return err
	}
	for _, f := range a.Frames {
		w.u1(f.Type)
		switch t := f.Type; {
		case t < 64:
		case t < 128:
			e.verificationTypes(w, f.Stack)
		case t < 247:
			return fmt.Errorf("reserved frame type %d", t)
		case t == 247:
			w.u2(f.OffsetDelta)
			e.verificationTypes(w, f.Stack)
		case t < 255:
			w.u2(f.OffsetDelta)
			e.verificationTypes(w, f.Locals)
		default:
			w.u2(f.OffsetDelta)
			if err := w.count(len(f.Locals)); err != nil {
				return err
			}
			e.verificationTypes(w, f.Locals)
			if err := w.count(len(f.Stack)); err != nil {
				return err
			}
			e.verificationTypes(w, f.Stack)
		}
	}
	return nil
}

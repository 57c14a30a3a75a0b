package classrewrite

import (
	"class-transformer/internal/changes"
	"class-transformer/internal/classfile"
	"class-transformer/internal/signature"
)

// attributes rewrites attrs in place. kind is the signature grammar of the
// owner: class, method, or field (also used for record components).
func (s *session) attributes(attrs []classfile.Attribute, kind signature.Kind) {
	for _, a := range attrs {
		switch a := a.(type) {
		case *classfile.CodeAttribute:
			for i := range a.Handlers {
				if a.Handlers[i].CatchType != "" {
					a.Handlers[i].CatchType = s.binaryType(a.Handlers[i].CatchType, changes.ClassReference)
				}
			}
			s.attributes(a.Attributes, kind)
		case *classfile.SignatureAttribute:
			a.Signature = s.signature(a.Signature, kind, changes.Signature)
		case *classfile.ExceptionsAttribute:
			s.classList(a.Classes)
		case *classfile.InnerClassesAttribute:
			for i := range a.Classes {
				ic := &a.Classes[i]
				ic.Inner = s.binaryType(ic.Inner, changes.ClassReference)
				if ic.Outer != "" {
					ic.Outer = s.binaryType(ic.Outer, changes.ClassReference)
				}
			}
		case *classfile.EnclosingMethodAttribute:
			a.Class = s.binaryType(a.Class, changes.EnclosingReference)
			if a.Method != nil {
				a.Method.Descriptor = s.descriptor(a.Method.Descriptor, changes.EnclosingReference)
			}
		case *classfile.NestHostAttribute:
			a.Class = s.binaryType(a.Class, changes.ClassReference)
		case *classfile.ClassListAttribute:
			s.classList(a.Classes)
		case *classfile.LocalVariableTableAttribute:
			s.localVariables(a)
		case *classfile.StackMapTableAttribute:
			for i := range a.Frames {
				s.verificationTypes(a.Frames[i].Locals)
				s.verificationTypes(a.Frames[i].Stack)
			}
		case *classfile.AnnotationsAttribute:
			for _, ann := range a.Annotations {
				s.annotation(ann)
			}
		case *classfile.ParameterAnnotationsAttribute:
			for _, param := range a.Parameters {
				for _, ann := range param {
					s.annotation(ann)
				}
			}
		case *classfile.TypeAnnotationsAttribute:
			for _, ta := range a.Annotations {
				s.annotation(ta.Annotation)
			}
		case *classfile.AnnotationDefaultAttribute:
			s.elementValue(a.Value)
		case *classfile.RecordAttribute:
			for i := range a.Components {
				c := &a.Components[i]
				c.Descriptor = s.descriptor(c.Descriptor, changes.RecordComponent)
				s.attributes(c.Attributes, signature.FieldKind)
			}
		case *classfile.ModuleAttribute:
			s.module(a)
		case *classfile.ModulePackagesAttribute:
			for i, p := range a.Packages {
				a.Packages[i] = s.pkg(p, changes.ModuleDeclaration)
			}
		case *classfile.ModuleMainClassAttribute:
			a.Class = s.binaryType(a.Class, changes.ModuleDeclaration)
		case *classfile.RawAttribute:
			// Pool references inside raw attributes are covered by the
			// constant pool walk.
		default:
			s.log.WithField("attribute", a.AttrName()).Debug("attribute type not rewritten")
		}
	}
}

func (s *session) classList(names []string) {
	for i, name := range names {
		names[i] = s.binaryType(name, changes.ClassReference)
	}
}

func (s *session) localVariables(a *classfile.LocalVariableTableAttribute) {
	typed := a.Name == classfile.AttrLocalVariableTypeTable
	for i := range a.Variables {
		v := &a.Variables[i]
		if typed {
			v.Descriptor = s.signature(v.Descriptor, signature.FieldKind, changes.LocalVariable)
		} else {
			v.Descriptor = s.descriptor(v.Descriptor, changes.LocalVariable)
		}
	}
}

func (s *session) verificationTypes(vs []classfile.VerificationType) {
	for i := range vs {
		if vs[i].Tag == classfile.ItemObject {
			vs[i].Class = s.binaryType(vs[i].Class, changes.StackMap)
		}
	}
}

func (s *session) annotation(a *classfile.Annotation) {
	if a == nil {
		return
	}
	a.Type = s.descriptor(a.Type, changes.Annotation)
	for _, el := range a.Elements {
		s.elementValue(el.Value)
	}
}

// elementValue rewrites an element value. Constant values ('s' and the
// primitives) live in the pool and are handled by the pool walk.
func (s *session) elementValue(v *classfile.ElementValue) {
	if v == nil {
		return
	}
	switch v.Tag {
	case 'e':
		v.EnumType = s.descriptor(v.EnumType, changes.Annotation)
	case 'c':
		if v.Class != "V" {
			v.Class = s.descriptor(v.Class, changes.Annotation)
		}
	case '@':
		s.annotation(v.Annotation)
	case '[':
		for _, el := range v.Array {
			s.elementValue(el)
		}
	}
}

func (s *session) module(m *classfile.ModuleAttribute) {
	exports := func(es []classfile.ModuleExport) {
		for i := range es {
			es[i].Package = s.pkg(es[i].Package, changes.ModuleDeclaration)
		}
	}
	exports(m.Exports)
	exports(m.Opens)
	for i, u := range m.Uses {
		m.Uses[i] = s.binaryType(u, changes.ModuleDeclaration)
	}
	for i := range m.Provides {
		p := &m.Provides[i]
		p.Service = s.binaryType(p.Service, changes.ModuleDeclaration)
		for j, w := range p.With {
			p.With[j] = s.binaryType(w, changes.ModuleDeclaration)
		}
	}
}

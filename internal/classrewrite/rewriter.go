// Package classrewrite renames the packages referenced by a class file.
//
// A rewrite visits every place a type name can appear: this, super and
// interface classes, member descriptors, attributes (signatures, inner
// class and nest tables, annotations, stack maps, local variable tables,
// records, modules) and the constant pool. The class is re-encoded only
// when one of those sites changed.
//
// Strings in a class file are always modified UTF-8, so the Charset of the
// input ByteData is ignored here and passed through to the output.
package classrewrite

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/artifact"
	"class-transformer/internal/changes"
	"class-transformer/internal/classfile"
	"class-transformer/internal/rename"
	"class-transformer/internal/rules"
	"class-transformer/internal/signature"
)

// VersionAnnotation is the descriptor of the OSGi @Version annotation
// whose value may be overridden on package-info classes.
const VersionAnnotation = "Lorg/osgi/annotation/versioning/Version;"

const classSuffix = ".class"

// Rewriter rewrites class files. It is safe for concurrent use as long as
// each goroutine passes its own Tracker.
type Rewriter struct {
	tr    *signature.Transformer
	m     *rename.Matcher
	rules *rules.Set
	log   logrus.FieldLogger
}

// New returns a Rewriter. tr must wrap m.
func New(tr *signature.Transformer, m *rename.Matcher, set *rules.Set, log logrus.FieldLogger) *Rewriter {
	if set == nil {
		set = &rules.Set{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Rewriter{tr: tr, m: m, rules: set, log: log}
}

// Rewrite renames the packages referenced by the class file in. It opens
// a session on t for the artifact and closes it before returning. When
// nothing changed the result is in itself; when only the name changed it
// shares in's bytes.
func (rw *Rewriter) Rewrite(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	t.Begin(in.Name)
	out, err := rw.rewrite(in, t)
	if err != nil {
		return nil, t.Abort(), err
	}
	return out, t.End(), nil
}

func (rw *Rewriter) rewrite(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, error) {
	cf, err := classfile.Parse(in.Data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", in.Name, err)
	}
	s := &session{
		rw:    rw,
		t:     t,
		cf:    cf,
		class: cf.ThisClass,
		log:   rw.log.WithField("artifact", in.Name),
	}

	if name, ok := rw.tr.TransformBinaryType(cf.ThisClass); ok {
		cf.ThisClass = name
		t.Record(changes.ClassName)
		t.Rename(s.relocate(in.Name, s.class, name))
	}
	if cf.SuperClass != "" {
		cf.SuperClass = s.binaryType(cf.SuperClass, changes.SuperClass)
	}
	for i, name := range cf.Interfaces {
		cf.Interfaces[i] = s.binaryType(name, changes.Interface)
	}
	for _, f := range cf.Fields {
		f.Descriptor = s.descriptor(f.Descriptor, changes.FieldDescriptor)
		s.attributes(f.Attributes, signature.FieldKind)
	}
	for _, m := range cf.Methods {
		m.Descriptor = s.descriptor(m.Descriptor, changes.MethodDescriptor)
		s.attributes(m.Attributes, signature.MethodKind)
	}
	s.attributes(cf.Attributes, signature.ClassKind)
	s.packageVersion()
	if err := s.walkPool(); err != nil {
		return nil, fmt.Errorf("constant pool of %s: %w", in.Name, err)
	}

	rec := t.Current()
	switch {
	case !rec.ContentChanged && !rec.NameChanged():
		return in, nil
	case !rec.ContentChanged:
		return in.WithName(rec.OutputName), nil
	}
	b, err := cf.Bytes()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", in.Name, err)
	}
	return &artifact.ByteData{Name: rec.OutputName, Data: b, Charset: in.Charset}, nil
}

// session is the state of one class rewrite.
type session struct {
	rw    *Rewriter
	t     *changes.Tracker
	cf    *classfile.ClassFile
	class string // this_class as read
	log   logrus.FieldLogger
}

func (s *session) binaryType(name string, k changes.Kind) string {
	if out, ok := s.rw.tr.TransformBinaryType(name); ok {
		s.t.Record(k)
		return out
	}
	return name
}

func (s *session) descriptor(desc string, k changes.Kind) string {
	if out, ok := s.rw.tr.TransformDescriptor(desc); ok {
		s.t.Record(k)
		return out
	}
	return desc
}

func (s *session) signature(sig string, kind signature.Kind, k changes.Kind) string {
	if out, ok := s.rw.tr.TransformSignature(sig, kind); ok {
		s.t.Record(k)
		return out
	}
	return sig
}

func (s *session) pkg(name string, k changes.Kind) string {
	if out, ok := s.rw.tr.TransformPackage(name); ok {
		s.t.Record(k)
		return out
	}
	return name
}

var knownPrefix = regexp.MustCompile(`(?:^|/)(?:WEB-INF/classes|META-INF/versions/[0-9]+)/`)

// relocate computes the output path of a renamed class. A path that ends
// in the old class name keeps whatever precedes it. Otherwise the class was
// stored somewhere unexpected: the mismatch is logged and the innermost
// known prefix (WEB-INF/classes/, META-INF/versions/<n>/) is kept.
func (s *session) relocate(name, oldClass, newClass string) string {
	want := oldClass + classSuffix
	if strings.HasSuffix(name, want) {
		prefix := name[:len(name)-len(want)]
		if prefix == "" || strings.HasSuffix(prefix, "/") {
			return prefix + newClass + classSuffix
		}
	}
	prefix := ""
	if locs := knownPrefix.FindAllStringIndex(name, -1); len(locs) > 0 {
		prefix = name[:locs[len(locs)-1][1]]
	}
	out := prefix + newClass + classSuffix
	s.log.WithFields(logrus.Fields{"class": oldClass, "output": out}).
		Warn("class name does not match its location")
	return out
}

// packageVersion overrides the value of @Version on a package-info class
// from the version table.
func (s *session) packageVersion() {
	if path.Base(s.cf.ThisClass) != "package-info" {
		return
	}
	pkg := strings.ReplaceAll(path.Dir(s.cf.ThisClass), "/", ".")
	v, ok := s.rw.rules.VersionFor(rules.VersionAttribute, pkg)
	if !ok {
		return
	}
	for _, a := range s.cf.Attributes {
		aa, ok := a.(*classfile.AnnotationsAttribute)
		if !ok {
			continue
		}
		for _, ann := range aa.Annotations {
			if ann.Type != VersionAnnotation {
				continue
			}
			for _, el := range ann.Elements {
				if el.Name != "value" || el.Value.Tag != 's' {
					continue
				}
				if cur, err := s.cf.Pool.Utf8(el.Value.ConstIndex); err == nil && cur == v {
					continue
				}
				el.Value.ConstIndex = s.cf.Pool.AddUtf8(v)
				s.t.Record(changes.VersionOverride)
				s.log.WithFields(logrus.Fields{"package": pkg, "version": v}).Debug("package version overridden")
			}
		}
	}
}

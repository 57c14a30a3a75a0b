// Package resource rewrites the non-class artifacts of an application:
// JAR manifests, service-loader configuration files, and text resources
// such as properties, XML and JSP files.
package resource

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/artifact"
	"class-transformer/internal/changes"
	"class-transformer/internal/rename"
	"class-transformer/internal/rules"
)

// ServicesDir holds service-loader configuration files.
const ServicesDir = "META-INF/services/"

// Rewriter rewrites resources with one rule set. It keeps no state between
// calls.
type Rewriter struct {
	m     *rename.Matcher
	rules *rules.Set
	log   logrus.FieldLogger
}

// New returns a Rewriter.
func New(m *rename.Matcher, set *rules.Set, log logrus.FieldLogger) *Rewriter {
	if set == nil {
		set = &rules.Set{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Rewriter{m: m, rules: set, log: log}
}

// IsManifest reports whether name is a JAR manifest.
func IsManifest(name string) bool {
	return strings.EqualFold(name, ManifestPath) || strings.HasSuffix(strings.ToUpper(name), "/"+ManifestPath)
}

// IsService reports whether name is a service-loader configuration file.
func IsService(name string) bool {
	dir, base := path.Split(name)
	return base != "" && (dir == ServicesDir || strings.HasSuffix(dir, "/"+ServicesDir))
}

// replace substitutes embedded package references, dotted form first.
func (rw *Rewriter) replace(s string) (string, bool) {
	out, changed := s, false
	for _, f := range []rename.Form{rename.Dotted, rename.Slashed} {
		if r, ok := rw.m.ReplaceAll(out, f); ok {
			out, changed = r, true
		}
	}
	return out, changed && out != s
}

// session runs fn inside a tracker session for in.
func session(in *artifact.ByteData, t *changes.Tracker, fn func() (*artifact.ByteData, error)) (*artifact.ByteData, *changes.Record, error) {
	t.Begin(in.Name)
	out, err := fn()
	if err != nil {
		return nil, t.Abort(), err
	}
	return out, t.End(), nil
}

// result picks the cheapest representation of a rewrite outcome.
func result(in *artifact.ByteData, rec *changes.Record, data func() ([]byte, error)) (*artifact.ByteData, error) {
	if !rec.ContentChanged {
		if rec.NameChanged() {
			return in.WithName(rec.OutputName), nil
		}
		return in, nil
	}
	b, err := data()
	if err != nil {
		return nil, err
	}
	return &artifact.ByteData{Name: rec.OutputName, Data: b, Charset: in.Charset}, nil
}

// Manifest rewrites a JAR manifest: package headers clause by clause with
// version overrides, bundle identity from the bundle update table, named
// section paths, and every other header by text substitution.
func (rw *Rewriter) Manifest(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	return session(in, t, func() (*artifact.ByteData, error) {
		mf, err := ParseManifest(in.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name, err)
		}
		log := rw.log.WithField("artifact", in.Name)
		for _, h := range mf.Main.Headers {
			var (
				out string
				ok  bool
			)
			switch {
			case isIdentityHeader(h.Name):
				continue
			case isPackageHeader(h.Name):
				out, ok = rw.packageList(h.Name, h.Value, log)
			default:
				out, ok = rw.replace(h.Value)
			}
			if ok {
				h.SetValue(out)
				t.Record(changes.ManifestHeader)
			}
		}
		rw.bundleIdentity(mf.Main, t, log)
		for _, s := range mf.Sections {
			for _, h := range s.Headers {
				var (
					out string
					ok  bool
				)
				if strings.EqualFold(h.Name, "Name") {
					out, ok = rw.sectionName(h.Value)
				} else {
					out, ok = rw.replace(h.Value)
				}
				if ok {
					h.SetValue(out)
					t.Record(changes.ManifestHeader)
				}
			}
		}
		return result(in, t.Current(), func() ([]byte, error) { return mf.Bytes(), nil })
	})
}

// packageList renames the packages of a package header and the package
// references inside its attributes and directives. A clause whose package
// was renamed and has a version override gets its version attribute
// replaced.
func (rw *Rewriter) packageList(header, value string, log logrus.FieldLogger) (string, bool) {
	clauses := splitOutside(value, ',')
	changed := false
	for i, raw := range clauses {
		c := parseClause(raw)
		renamed := ""
		for j := 0; j < c.paths; j++ {
			pkg := strings.TrimSpace(c.parts[j])
			out, ok := rw.renamePackage(pkg)
			if !ok {
				continue
			}
			c.parts[j] = strings.Replace(c.parts[j], pkg, out, 1)
			if renamed == "" {
				renamed = out
			}
		}
		touched := renamed != ""
		for j := c.paths; j < len(c.parts); j++ {
			// uses:= and similar directives list packages too
			if out, ok := rw.m.ReplaceAll(c.parts[j], rename.Dotted); ok {
				c.parts[j] = out
				touched = true
			}
		}
		if !touched {
			continue
		}
		if v, ok := rw.version(header, renamed); renamed != "" && ok {
			old, _ := c.attribute("version")
			if old != v && c.setAttribute("version", v) {
				log.WithFields(logrus.Fields{"header": header, "package": renamed, "from": old, "to": v}).Debug("package version overridden")
			}
		}
		clauses[i] = c.String()
		changed = true
	}
	if !changed {
		return "", false
	}
	return strings.Join(clauses, ","), true
}

// renamePackage renames one package name of a header, including the
// "pkg.*" form DynamicImport-Package allows.
func (rw *Rewriter) renamePackage(pkg string) (string, bool) {
	if base, ok := strings.CutSuffix(pkg, ".*"); ok {
		out, ok := rw.m.Rename(base, rename.Dotted)
		if !ok {
			return "", false
		}
		return out + ".*", true
	}
	return rw.m.Rename(pkg, rename.Dotted)
}

// version returns the version override of a renamed package. Exports use
// the header-specific table, then the general one; other headers use
// their specific table only.
func (rw *Rewriter) version(header, pkg string) (string, bool) {
	if strings.EqualFold(header, HeaderExport) {
		return rw.rules.VersionFor(HeaderExport, pkg)
	}
	v, ok := rw.rules.SpecificVersions[header][pkg]
	return v, ok
}

// bundleIdentity applies the bundle update for the manifest's symbolic
// name.
func (rw *Rewriter) bundleIdentity(main *Section, t *changes.Tracker, log logrus.FieldLogger) {
	value, ok := main.Get(HeaderSymbolicName)
	if !ok {
		return
	}
	c := parseClause(value)
	if c.paths == 0 {
		return
	}
	symbolic := strings.TrimSpace(c.parts[0])
	u, ok := rw.rules.BundleFor(symbolic)
	if !ok {
		return
	}
	set := func(name, v string) {
		if v == "" {
			return
		}
		if cur, _ := main.Get(name); cur == v {
			return
		}
		main.Set(name, v)
		t.Record(changes.ManifestHeader)
	}
	if u.SymbolicName != "" && u.SymbolicName != symbolic {
		c.parts[0] = strings.Replace(c.parts[0], symbolic, u.SymbolicName, 1)
		set(HeaderSymbolicName, c.String())
	}
	set(HeaderVersion, u.Version)
	set(HeaderName, u.Name)
	set(HeaderDescription, u.Description)
	log.WithField("bundle", symbolic).Debug("bundle identity updated")
}

// sectionName renames the path of a named section. Directory sections
// ("javax/foo/", used for package sealing) rename the whole package.
func (rw *Rewriter) sectionName(name string) (string, bool) {
	if dir, ok := strings.CutSuffix(name, "/"); ok {
		out, ok := rw.m.Rename(dir, rename.Slashed)
		if !ok {
			return "", false
		}
		return out + "/", true
	}
	return rw.m.ReplaceAll(name, rename.Slashed)
}

// Service rewrites a service-loader configuration file: the file name is
// the service type and every non-comment line names a provider class.
func (rw *Rewriter) Service(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	return session(in, t, func() (*artifact.ByteData, error) {
		dir, base := path.Split(in.Name)
		if out, ok := rw.m.RenameDottedType(base); ok {
			t.Rename(dir + out)
		}
		text, err := in.Text()
		if err != nil {
			return nil, err
		}
		lines := strings.SplitAfter(text, "\n")
		for i, line := range lines {
			content := strings.TrimRight(line, "\r\n")
			body, comment := content, ""
			if j := strings.IndexByte(content, '#'); j >= 0 {
				body, comment = content[:j], content[j:]
			}
			provider := strings.TrimSpace(body)
			if provider == "" {
				continue
			}
			out, ok := rw.m.RenameDottedType(provider)
			if !ok {
				continue
			}
			lines[i] = strings.Replace(body, provider, out, 1) + comment + line[len(content):]
			t.Record(changes.ServiceProvider)
		}
		return result(in, t.Current(), func() ([]byte, error) {
			b, err := in.WithText(strings.Join(lines, ""))
			if err != nil {
				return nil, err
			}
			return b.Data, nil
		})
	})
}

// Text rewrites a text resource in its charset. Resources stored below a
// renamed package directory move with it.
func (rw *Rewriter) Text(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	return session(in, t, func() (*artifact.ByteData, error) {
		if out, ok := rw.RelocatePath(in.Name); ok {
			t.Rename(out)
		}
		text, err := in.Text()
		if err != nil {
			return nil, err
		}
		out, ok := rw.replace(text)
		if ok {
			t.Record(changes.Text)
		}
		return result(in, t.Current(), func() ([]byte, error) {
			b, err := in.WithText(out)
			if err != nil {
				return nil, err
			}
			return b.Data, nil
		})
	})
}

var knownPrefix = regexp.MustCompile(`^(?:.*/)?(?:WEB-INF/classes|META-INF/versions/[0-9]+)/`)

// RelocatePath renames the package directory of a resource path,
// keeping the WEB-INF/classes/ and META-INF/versions/<n>/ prefixes.
func (rw *Rewriter) RelocatePath(name string) (string, bool) {
	prefix := knownPrefix.FindString(name)
	rest := name[len(prefix):]
	dir, base := path.Split(rest)
	if dir == "" {
		return "", false
	}
	out, ok := rw.m.Rename(strings.TrimSuffix(dir, "/"), rename.Slashed)
	if !ok {
		return "", false
	}
	return prefix + out + "/" + base, true
}

package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"class-transformer/internal/rename"
)

func TestDefaultRules(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)
	m, err := s.Matcher()
	require.NoError(t, err)

	out, ok := m.Rename("javax.servlet.http", rename.Dotted)
	require.True(t, ok)
	require.Equal(t, "jakarta.servlet.http", out)

	out, ok = m.Rename("javax/persistence", rename.Slashed)
	require.True(t, ok)
	require.Equal(t, "jakarta/persistence", out)

	// JDK packages stay put.
	for _, pkg := range []string{"javax.annotation.processing", "javax.transaction.xa", "javax.swing", "javax.crypto"} {
		_, ok = m.Rename(pkg, rename.Dotted)
		require.False(t, ok, pkg)
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
renames:
  javax.foo: jakarta.foo
  javax.foo.*: jakarta.foo
versions:
  jakarta.foo: "2.0"
specificVersions:
  "@Version":
    jakarta.foo: "2.0.1"
bundles:
  "*":
    version: "9.0.0"
direct:
  "javax.foo.Legacy": "jakarta.foo.Modern"
perClass:
  com/acme/Config:
    "javax.foo": "keep.me"
perClassText:
  com/acme/Config:
    "javax.": "jakarta."
`)
	s, err := ParseYAML("test.yaml", data)
	require.NoError(t, err)
	require.Len(t, s.Renames, 2)

	v, ok := s.VersionFor(VersionAttribute, "jakarta.foo")
	require.True(t, ok)
	require.Equal(t, "2.0.1", v)
	v, ok = s.VersionFor("Export-Package", "jakarta.foo")
	require.True(t, ok)
	require.Equal(t, "2.0", v)
	_, ok = s.VersionFor("Export-Package", "other")
	require.False(t, ok)

	b, ok := s.BundleFor("any.bundle")
	require.True(t, ok)
	require.Equal(t, "9.0.0", b.Version)

	r, ok := s.DirectFor("com/acme/Config", "javax.foo")
	require.True(t, ok)
	require.Equal(t, "keep.me", r)
	r, ok = s.DirectFor("com/acme/Other", "javax.foo.Legacy")
	require.True(t, ok)
	require.Equal(t, "jakarta.foo.Modern", r)
	_, ok = s.DirectFor("com/acme/Other", "javax.foo")
	require.False(t, ok)

	r, ok = s.TextFor("com/acme/Config", "see javax.foo.Bar")
	require.True(t, ok)
	require.Equal(t, "see jakarta.foo.Bar", r)
	_, ok = s.TextFor("com/acme/Other", "see javax.foo.Bar")
	require.False(t, ok)
}

func TestMalformedRuleData(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "renames: [",
		"unknown key":     "renamez:\n  a: b\n",
		"bad package":     "renames:\n  javax..foo: jakarta.foo\n",
		"bad replacement": "renames:\n  javax.foo: \"\"\n",
		"empty version":   "versions:\n  javax.foo: \"\"\n",
		"noop bundle":     "bundles:\n  x: {}\n",
		"empty substring": "perClassText:\n  a/B:\n    \"\": x\n",
	}
	for name, data := range cases {
		_, err := ParseYAML(name, []byte(data))
		require.ErrorIs(t, err, ErrMalformed, name)
		var re *RuleError
		require.ErrorAs(t, err, &re, name)
	}
}

func TestParseProperties(t *testing.T) {
	data := []byte(`# comment
! also a comment
javax.servlet=jakarta.servlet
javax.servlet.*  :  jakarta.servlet
javax.ws.rs \
    = jakarta.ws.rs
`)
	s, err := ParseProperties("r.properties", data)
	require.NoError(t, err)
	m, err := s.Matcher()
	require.NoError(t, err)
	require.Len(t, m.Rules(), 3)

	out, ok := m.Rename("javax.ws.rs", rename.Dotted)
	require.True(t, ok)
	require.Equal(t, "jakarta.ws.rs", out)

	_, err = ParseProperties("bad.properties", []byte("=jakarta.x\n"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBuildMergesAndInverts(t *testing.T) {
	dir := t.TempDir()
	extra := filepath.Join(dir, "extra.properties")
	require.NoError(t, os.WriteFile(extra, []byte("javax.servlet=custom.servlet\ncom.acme=org.acme\n"), 0o644))

	s, err := Build(Options{Files: []string{extra}})
	require.NoError(t, err)
	m, err := s.Matcher()
	require.NoError(t, err)
	out, ok := m.Rename("javax.servlet", rename.Dotted)
	require.True(t, ok)
	require.Equal(t, "custom.servlet", out, "later files win")
	out, ok = m.Rename("com.acme", rename.Dotted)
	require.True(t, ok)
	require.Equal(t, "org.acme", out)

	inv, err := Build(Options{Files: []string{extra}, NoDefaults: true, Invert: true})
	require.NoError(t, err)
	m, err = inv.Matcher()
	require.NoError(t, err)
	out, ok = m.Rename("org.acme", rename.Dotted)
	require.True(t, ok)
	require.Equal(t, "com.acme", out)

	_, err = Build(Options{NoDefaults: true})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Build(Options{Files: []string{filepath.Join(dir, "missing.yaml")}})
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestInvertRejectsAmbiguousTargets(t *testing.T) {
	s := &Set{Renames: []rename.Rule{
		rename.ParseRule("a.one", "x.y"),
		rename.ParseRule("a.two", "x.y"),
	}}
	_, err := s.Invert()
	require.ErrorIs(t, err, ErrMalformed)
}

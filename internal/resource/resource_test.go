package resource

import (
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"class-transformer/internal/artifact"
	"class-transformer/internal/changes"
	"class-transformer/internal/rename"
	"class-transformer/internal/rules"
)

func fooRules() *rules.Set {
	return &rules.Set{Renames: []rename.Rule{
		rename.ParseRule("javax.foo", "jakarta.foo"),
		rename.ParseRule("javax.foo.*", "jakarta.foo"),
	}}
}

func newRewriter(t *testing.T, set *rules.Set) *Rewriter {
	t.Helper()
	m, err := set.Matcher()
	require.NoError(t, err)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(m, set, log)
}

const sampleManifest = "Manifest-Version: 1.0\r\n" +
	"Bundle-SymbolicName: com.acme.web;singleton:=true\r\n" +
	"Bundle-Version: 1.0.0\r\n" +
	"Export-Package: javax.foo;version=\"1.0\",javax.foo.impl;uses:=\"javax.foo\"\r\n" +
	" ;version=1.0,com.acme.api;version=\"2.0\"\r\n" +
	"Import-Package: javax.foo;version=\"[1,2)\",org.other\r\n" +
	"Main-Class: javax.foo.Main\r\n" +
	"Created-By: hand\r\n" +
	"\r\n" +
	"Name: javax/foo/Bar.class\r\n" +
	"SHA-256-Digest: abc\r\n" +
	"\r\n" +
	"Name: javax/foo/\r\n" +
	"Sealed: true\r\n" +
	"\r\n"

func TestManifest(t *testing.T) {
	set := fooRules()
	set.Versions = map[string]string{"jakarta.foo": "2.0"}
	set.SpecificVersions = map[string]map[string]string{"Import-Package": {"jakarta.foo": "[2,3)"}}
	set.Bundles = map[string]rules.BundleUpdate{"com.acme.web": {SymbolicName: "com.acme.web.jakarta", Version: "2.0.0"}}

	in := artifact.New(ManifestPath, []byte(sampleManifest), nil)
	out, rec, err := newRewriter(t, set).Manifest(in, changes.NewTracker())
	require.NoError(t, err)
	require.Equal(t, ManifestPath, out.Name)
	require.Equal(t, 7, rec.Count(changes.ManifestHeader))

	mf, err := ParseManifest(out.Data)
	require.NoError(t, err)
	get := func(s *Section, name string) string {
		v, ok := s.Get(name)
		require.True(t, ok, name)
		return v
	}
	require.Equal(t, `jakarta.foo;version="2.0",jakarta.foo.impl;uses:="jakarta.foo";version=1.0,com.acme.api;version="2.0"`, get(mf.Main, "Export-Package"))
	require.Equal(t, `jakarta.foo;version="[2,3)",org.other`, get(mf.Main, "Import-Package"))
	require.Equal(t, "jakarta.foo.Main", get(mf.Main, "Main-Class"))
	require.Equal(t, "com.acme.web.jakarta;singleton:=true", get(mf.Main, HeaderSymbolicName))
	require.Equal(t, "2.0.0", get(mf.Main, HeaderVersion))
	require.Len(t, mf.Sections, 2)
	require.Equal(t, "jakarta/foo/Bar.class", get(mf.Sections[0], "Name"))
	require.Equal(t, "abc", get(mf.Sections[0], "SHA-256-Digest"))
	require.Equal(t, "jakarta/foo/", get(mf.Sections[1], "Name"))

	text := string(out.Data)
	require.Contains(t, text, "Created-By: hand\r\n")
	for _, line := range strings.Split(text, "\r\n") {
		require.LessOrEqual(t, len(line), MaxLineBytes, line)
	}

	again, rec, err := newRewriter(t, set).Manifest(out, changes.NewTracker())
	require.NoError(t, err)
	require.Same(t, out, again)
	require.False(t, rec.Changed())
}

func TestManifestUnchanged(t *testing.T) {
	in := artifact.New(ManifestPath, []byte("Manifest-Version: 1.0\nCreated-By: hand\n\n"), nil)
	out, rec, err := newRewriter(t, fooRules()).Manifest(in, changes.NewTracker())
	require.NoError(t, err)
	require.Same(t, in, out)
	require.False(t, rec.Changed())
}

func TestManifestRoundTrip(t *testing.T) {
	mf, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Equal(t, sampleManifest, string(mf.Bytes()))
}

func TestParseManifestErrors(t *testing.T) {
	cases := map[string]string{
		"no colon":          "Manifest-Version: 1.0\nbad line\n",
		"dangling cont":     " leading\n",
		"unnamed section":   "Manifest-Version: 1.0\n\nFoo: bar\n",
		"space in name":     "Bad Name: x\n",
		"cont after break":  "Manifest-Version: 1.0\n\n more\n",
		"empty header name": ": value\n",
	}
	for name, data := range cases {
		_, err := ParseManifest([]byte(data))
		require.ErrorIs(t, err, ErrMalformedManifest, name)
	}
}

func TestWrap(t *testing.T) {
	line := "Bundle-Description: " + strings.Repeat("é", 60)
	lines := wrap(line)
	require.Greater(t, len(lines), 1)
	var joined strings.Builder
	for i, l := range lines {
		require.LessOrEqual(t, len(l), MaxLineBytes)
		if i > 0 {
			require.True(t, strings.HasPrefix(l, " "))
			l = l[1:]
		}
		require.True(t, utf8.ValidString(l), "line %d splits a character", i)
		joined.WriteString(l)
	}
	require.Equal(t, line, joined.String())
	require.Equal(t, []string{"Short: value"}, wrap("Short: value"))
}

func TestService(t *testing.T) {
	in := artifact.New("META-INF/services/javax.foo.Spi", []byte("# providers\njavax.foo.impl.SpiImpl # default\r\ncom.acme.Other\n"), nil)
	out, rec, err := newRewriter(t, fooRules()).Service(in, changes.NewTracker())
	require.NoError(t, err)
	require.Equal(t, "META-INF/services/jakarta.foo.Spi", out.Name)
	require.Equal(t, "# providers\njakarta.foo.impl.SpiImpl # default\r\ncom.acme.Other\n", string(out.Data))
	require.Equal(t, 1, rec.Count(changes.ServiceProvider))

	onlyName := artifact.New("META-INF/services/javax.foo.Spi", []byte("com.acme.Impl\n"), nil)
	out, rec, err = newRewriter(t, fooRules()).Service(onlyName, changes.NewTracker())
	require.NoError(t, err)
	require.Equal(t, "META-INF/services/jakarta.foo.Spi", out.Name)
	require.Equal(t, onlyName.Data, out.Data)
	require.False(t, rec.ContentChanged)
	require.True(t, rec.NameChanged())
}

func TestText(t *testing.T) {
	rw := newRewriter(t, fooRules())
	in := artifact.New("WEB-INF/web.xml", []byte("<servlet-class>javax.foo.Servlet</servlet-class>\n<file>javax/foo/x.tld</file>\n"), nil)
	out, rec, err := rw.Text(in, changes.NewTracker())
	require.NoError(t, err)
	require.Equal(t, "WEB-INF/web.xml", out.Name)
	require.Equal(t, "<servlet-class>jakarta.foo.Servlet</servlet-class>\n<file>jakarta/foo/x.tld</file>\n", string(out.Data))
	require.Equal(t, 1, rec.Count(changes.Text))

	latin := artifact.New("conf/app.properties", []byte("greeting=caf\xe9 javax.foo.Bar\n"), charmap.ISO8859_1)
	out, _, err = rw.Text(latin, changes.NewTracker())
	require.NoError(t, err)
	require.Equal(t, []byte("greeting=caf\xe9 jakarta.foo.Bar\n"), out.Data)

	plain := artifact.New("index.html", []byte("<p>javax.swing</p>"), nil)
	out, rec, err = rw.Text(plain, changes.NewTracker())
	require.NoError(t, err)
	require.Same(t, plain, out)
	require.False(t, rec.Changed())
}

func TestRelocatePath(t *testing.T) {
	rw := newRewriter(t, fooRules())
	cases := map[string]string{
		"javax/foo/LocalStrings.properties":      "jakarta/foo/LocalStrings.properties",
		"javax/foo/impl/schema.xsd":              "jakarta/foo/impl/schema.xsd",
		"WEB-INF/classes/javax/foo/x.xml":        "WEB-INF/classes/jakarta/foo/x.xml",
		"META-INF/versions/17/javax/foo/a.txt":   "META-INF/versions/17/jakarta/foo/a.txt",
		"META-INF/MANIFEST.MF":                   "",
		"index.html":                             "",
		"com/acme/javax/foo/not-a-package.txt":   "",
		"WEB-INF/classes/com/acme/messages.json": "",
	}
	for in, want := range cases {
		got, ok := rw.RelocatePath(in)
		require.Equal(t, want != "", ok, in)
		require.Equal(t, want, got, in)
	}
}

func TestKinds(t *testing.T) {
	require.True(t, IsManifest("META-INF/MANIFEST.MF"))
	require.True(t, IsManifest("nested/META-INF/manifest.mf"))
	require.False(t, IsManifest("META-INF/OTHER.MF"))
	require.True(t, IsService("META-INF/services/javax.foo.Spi"))
	require.False(t, IsService("META-INF/services/"))
	require.False(t, IsService("META-INF/javax.foo.Spi"))
}

package selection

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestSelected(t *testing.T) {
	s, err := New([]string{"*.class", "META-INF/"}, []string{"module-info.class", "*Test.class"}, nil)
	require.NoError(t, err)

	cases := map[string]bool{
		"javax/foo/Bar.class":         true,
		"module-info.class":           false,
		"com/acme/FooTest.class":      false,
		"META-INF/MANIFEST.MF":        true,
		"META-INF/services/javax.Foo": true,
		"web.xml":                     false,
	}
	for name, want := range cases {
		require.Equal(t, want, s.Selected(name), name)
	}

	var all *Selector
	require.True(t, all.Selected("anything"))
}

func TestCharset(t *testing.T) {
	s, err := New(nil, nil, []string{"legacy/*.txt=windows-1252", "*.properties=UTF-8"})
	require.NoError(t, err)
	require.Equal(t, charmap.Windows1252, s.Charset("legacy/readme.txt"))
	require.Equal(t, unicode.UTF8, s.Charset("messages.properties"))
	require.Equal(t, unicode.UTF8, s.Charset("web.xml"))

	def, err := New(nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, charmap.ISO8859_1, def.Charset("conf/app.properties"))
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New([]string{"[unclosed"}, nil, nil)
	require.Error(t, err)

	_, err = New(nil, nil, []string{"*.txt"})
	require.Error(t, err)

	_, err = New(nil, nil, []string{"*.txt=no-such-charset"})
	require.ErrorIs(t, err, ErrUnknownCharset)
}

func TestLookupAliases(t *testing.T) {
	enc, err := Lookup("latin1")
	require.NoError(t, err)
	require.Equal(t, charmap.ISO8859_1, enc)
}

package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnified(t *testing.T) {
	body, oversize := Unified("web.xml", "web.xml", []byte("a\nb\nc\n"), []byte("a\nB\nc\n"), Options{})
	require.False(t, oversize)
	require.Equal(t, "--- a/web.xml\n+++ b/web.xml\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n", body)
}

func TestUnifiedRename(t *testing.T) {
	body, _ := Unified("javax/foo/x.txt", "jakarta/foo/x.txt", []byte("same"), []byte("other"), Options{})
	require.True(t, strings.HasPrefix(body, "--- a/javax/foo/x.txt\n+++ b/jakarta/foo/x.txt\n"), body)
	require.Contains(t, body, "-same\n")
	require.Contains(t, body, "+other\n")
}

func TestUnifiedEqual(t *testing.T) {
	body, oversize := Unified("a", "a", []byte("x\n"), []byte("x\n"), Options{})
	require.Empty(t, body)
	require.False(t, oversize)
}

func TestUnifiedGuards(t *testing.T) {
	body, oversize := Unified("a", "a", []byte("12345"), []byte("678901"), Options{MaxBytes: 10})
	require.True(t, oversize)
	require.Contains(t, body, "# diff omitted (oversize)")

	body, oversize = Unified("a", "a", []byte("\xff\xfe"), []byte("x"), Options{})
	require.False(t, oversize)
	require.Contains(t, body, "# diff omitted (binary)")
}

func TestSplitLinesKeepNL(t *testing.T) {
	require.Equal(t, []string{}, splitLinesKeepNL(""))
	require.Equal(t, []string{"a\n", "b\n"}, splitLinesKeepNL("a\nb\n"))
	require.Equal(t, []string{"a\n", "b\n"}, splitLinesKeepNL("a\nb"))
}

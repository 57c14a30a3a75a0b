package ziputil

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"class-transformer/internal/artifact"
)

var stamp = time.Date(2020, 5, 17, 10, 30, 0, 0, time.UTC)

type entry struct {
	name   string
	body   string
	method uint16
}

func buildZip(t *testing.T, comment string, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		h := &zip.FileHeader{Name: e.name, Method: e.method, Modified: stamp}
		w, err := zw.CreateHeader(h)
		require.NoError(t, err)
		if !strings.HasSuffix(e.name, "/") {
			_, err = io.WriteString(w, e.body)
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.SetComment(comment))
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readZip(t *testing.T, data []byte) (*zip.Reader, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	bodies := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		bodies[f.Name] = string(b)
	}
	return zr, bodies
}

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRewrite(t *testing.T) {
	data := buildZip(t, "built by test",
		entry{name: "META-INF/", method: zip.Store},
		entry{name: "a.txt", body: "javax", method: zip.Deflate},
		entry{name: "old/x.txt", body: "same", method: zip.Deflate},
		entry{name: "lib/nested.jar", body: "stored javax", method: zip.Store},
		entry{name: "b.txt", body: "dup", method: zip.Deflate},
		entry{name: "keep.bin", body: "\x00\x01", method: zip.Deflate},
	)

	fn := func(in *artifact.ByteData) (*artifact.ByteData, error) {
		switch in.Name {
		case "a.txt", "lib/nested.jar":
			return in.WithData([]byte(strings.ReplaceAll(string(in.Data), "javax", "jakarta"))), nil
		case "old/x.txt":
			return in.WithName("new/x.txt"), nil
		case "b.txt":
			return in.WithName("a.txt"), nil
		}
		return in, nil
	}
	out, st, err := Rewrite(data, fn, quiet())
	require.NoError(t, err)
	require.Equal(t, Stats{Entries: 6, Changed: 2, Renamed: 2, Duplicates: 1}, st)

	zr, bodies := readZip(t, out)
	require.Equal(t, "built by test", zr.Comment)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		require.True(t, f.Modified.Equal(stamp), f.Name)
	}
	require.Equal(t, []string{"META-INF/", "a.txt", "new/x.txt", "lib/nested.jar", "keep.bin"}, names)
	require.Equal(t, "jakarta", bodies["a.txt"])
	require.Equal(t, "same", bodies["new/x.txt"])
	require.Equal(t, "stored jakarta", bodies["lib/nested.jar"])
	require.Equal(t, "\x00\x01", bodies["keep.bin"])

	nested := zr.File[3]
	require.Equal(t, zip.Store, nested.Method)
	require.Zero(t, nested.Flags&0x8, "stored entries carry no data descriptor")
}

func TestRewriteUnchangedReturnsInput(t *testing.T) {
	data := buildZip(t, "", entry{name: "a.txt", body: "x", method: zip.Deflate})
	out, st, err := Rewrite(data, func(in *artifact.ByteData) (*artifact.ByteData, error) { return in, nil }, quiet())
	require.NoError(t, err)
	require.Equal(t, 1, st.Entries)
	require.True(t, &out[0] == &data[0], "unchanged archive is returned as is")
}

func TestRewriteErrors(t *testing.T) {
	_, _, err := Rewrite([]byte("not a zip"), nil, quiet())
	require.Error(t, err)

	data := buildZip(t, "", entry{name: "a.txt", body: "x", method: zip.Deflate})
	boom := io.ErrUnexpectedEOF
	_, _, err = Rewrite(data, func(*artifact.ByteData) (*artifact.ByteData, error) { return nil, boom }, quiet())
	require.ErrorIs(t, err, boom)
}

func TestIsArchive(t *testing.T) {
	for _, n := range []string{"a.jar", "b.WAR", "dir/c.ear", "d.rar", "e.zip"} {
		require.True(t, IsArchive(n), n)
	}
	for _, n := range []string{"a.class", "jar", "x.jar.txt"} {
		require.False(t, IsArchive(n), n)
	}
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt":      "a/b/c.txt",
		"/abs/path":      "abs/path",
		"../../evil":     "evil",
		"a/./b/../c":     "a/c",
		"":               "entry",
		"dir//x.class":   "dir/x.class",
		"WEB-INF/../../": "entry",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizePath(in), in)
	}
}

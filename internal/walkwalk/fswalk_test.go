package walkwalk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestCollectFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "WEB-INF/classes/javax/foo/Bar.class", "cafe")
	write(t, root, "WEB-INF/web.xml", "<web-app/>")
	write(t, root, "lib/a.jar", "PK")
	write(t, root, "build-tmp/skip.class", "x")
	write(t, root, ".git/config", "x")
	write(t, root, "big.bin", "0123456789A")

	files, total, err := CollectFiles(root, Options{
		Exclude:      []string{".git", "build*"},
		MaxFileBytes: 10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"WEB-INF/classes/javax/foo/Bar.class", "WEB-INF/web.xml", "big.bin", "lib/a.jar"}, relPaths(files))
	require.Equal(t, int64(4+10+11+2), total)
	require.Equal(t, ".class", files[0].Ext)
	require.Equal(t, os.FileMode(0o644), files[1].Mode)
	require.True(t, filepath.IsAbs(files[3].AbsPath))

	var oversize []string
	for _, f := range files {
		if f.Oversize {
			oversize = append(oversize, f.RelPath)
		}
	}
	require.Equal(t, []string{"big.bin"}, oversize)
}

func TestCollectFilesSkip(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "a")
	write(t, root, "out/b.txt", "b")
	write(t, root, "c.txt", "c")

	var seen []string
	files, _, err := CollectFiles(root, Options{Skip: func(rel string, dir bool) bool {
		seen = append(seen, rel)
		return rel == "out" && dir || rel == "c.txt"
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, relPaths(files))
	require.NotContains(t, seen, "out/b.txt")
}

func TestCollectFilesSymlinks(t *testing.T) {
	root := t.TempDir()
	write(t, root, "real.txt", "r")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	files, _, err := CollectFiles(root, Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"real.txt"}, relPaths(files))

	files, _, err = CollectFiles(root, Options{FollowSymlinks: true})
	require.NoError(t, err)
	require.Equal(t, []string{"link.txt", "real.txt"}, relPaths(files))
}

func TestCollectFilesMissingRoot(t *testing.T) {
	_, _, err := CollectFiles(filepath.Join(t.TempDir(), "nope"), Options{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

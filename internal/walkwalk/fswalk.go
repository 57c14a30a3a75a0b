// Package walkwalk provides a deterministic, filterable filesystem walker
// used to gather the files of an input directory.
package walkwalk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo is a minimal, deterministic descriptor of a collected file.
type FileInfo struct {
	RelPath string      // root-relative path with forward slashes
	AbsPath string      // absolute filesystem path
	Size    int64       // size in bytes
	Mode    fs.FileMode // permission bits, kept on output files
	Ext     string      // lowercase extension including dot (e.g., ".class")

	// Oversize is set for files larger than Options.MaxFileBytes.
	Oversize bool
}

// Options filters a walk.
type Options struct {
	// Exclude holds base names that are skipped with everything below
	// them. A trailing '*' matches by prefix ("build*").
	Exclude []string
	// Skip, when set, is asked for every entry below the root.
	Skip func(rel string, dir bool) bool
	// MaxFileBytes marks larger files Oversize. They are still collected
	// so the caller can copy them. 0 means no limit.
	MaxFileBytes   int64
	FollowSymlinks bool
}

type walkState struct {
	opts  Options
	root  string
	files []FileInfo
}

// CollectFiles walks src and returns the regular files that pass the
// filters, sorted by RelPath, with their total size.
func CollectFiles(src string, opts Options) ([]FileInfo, int64, error) {
	root, err := filepath.Abs(src)
	if err != nil {
		return nil, 0, err
	}
	state := &walkState{opts: opts, root: root}
	if err := filepath.WalkDir(root, state.visit); err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", src, err)
	}
	sort.Slice(state.files, func(i, j int) bool { return state.files[i].RelPath < state.files[j].RelPath })
	var total int64
	for _, f := range state.files {
		total += f.Size
	}
	return state.files, total, nil
}

func (ws *walkState) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if path == ws.root {
		return nil
	}
	rel, ok := ws.relative(path)
	if !ok {
		return nil
	}
	if ws.shouldSkip(rel, d) {
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}
	return ws.handleFile(path, rel, d)
}

func (ws *walkState) relative(path string) (string, bool) {
	rel, err := filepath.Rel(ws.root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", false
	}
	return rel, true
}

func (ws *walkState) shouldSkip(rel string, d fs.DirEntry) bool {
	if isExcluded(filepath.Base(rel), ws.opts.Exclude) {
		return true
	}
	return ws.opts.Skip != nil && ws.opts.Skip(rel, d.IsDir())
}

func (ws *walkState) handleFile(path, rel string, d fs.DirEntry) error {
	if isSymlink(d) {
		if !ws.opts.FollowSymlinks {
			return nil
		}
		// WalkDir does not descend into linked directories; only linked
		// files are collected.
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		path = target
	}
	info, err := statRegular(path, d)
	if err != nil || info == nil {
		return err
	}
	ws.files = append(ws.files, FileInfo{
		RelPath:  rel,
		AbsPath:  path,
		Size:     info.Size(),
		Mode:     info.Mode().Perm(),
		Ext:      strings.ToLower(filepath.Ext(rel)),
		Oversize: ws.opts.MaxFileBytes > 0 && info.Size() > ws.opts.MaxFileBytes,
	})
	return nil
}

// statRegular returns nil info for anything that is not a regular file.
func statRegular(path string, d fs.DirEntry) (fs.FileInfo, error) {
	var (
		info fs.FileInfo
		err  error
	)
	if isSymlink(d) {
		info, err = os.Stat(path)
	} else {
		info, err = d.Info()
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}
	return info, nil
}

// isSymlink reports whether the DirEntry is a symlink (file or directory).
func isSymlink(d fs.DirEntry) bool {
	return d.Type()&fs.ModeSymlink != 0
}

// isExcluded reports whether base equals an exclude entry or starts with
// one that ends in '*'.
func isExcluded(base string, exclude []string) bool {
	for _, k := range exclude {
		if p, ok := strings.CutSuffix(k, "*"); ok {
			if strings.HasPrefix(base, p) {
				return true
			}
			continue
		}
		if base == k {
			return true
		}
	}
	return false
}

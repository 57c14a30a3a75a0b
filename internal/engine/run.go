package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"class-transformer/internal/artifact"
	"class-transformer/internal/changes"
	"class-transformer/internal/report"
	"class-transformer/internal/walkwalk"
	"class-transformer/internal/ziputil"
)

// Run rewrites input, a file or a directory, into output and fills rep.
// A failed artifact is copied unchanged and reported unless the engine is
// strict, in which case Run stops at the first failure.
func (e *Engine) Run(ctx context.Context, input, output string, rep *report.Report) error {
	fi, err := os.Stat(input)
	if err != nil {
		return wrap(input, err)
	}
	r := &run{e: e, rep: rep}
	if fi.IsDir() {
		err = r.dir(ctx, input, output)
	} else {
		err = r.single(input, output, fi.Mode().Perm())
	}
	types, descriptors, signatures := e.tr.CacheStats()
	e.log.WithFields(logrus.Fields{
		"types":       types,
		"descriptors": descriptors,
		"signatures":  signatures,
	}).Debug("signature caches")
	return err
}

func (r *run) single(input, output string, perm os.FileMode) error {
	name := filepath.ToSlash(input)
	data, err := os.ReadFile(input)
	if err != nil {
		return wrap(name, err)
	}
	out, err := r.top(artifact.New(name, data, nil))
	if err != nil {
		return err
	}
	if err := report.WriteFile(output, out.Data, perm); err != nil {
		return wrap(output, err)
	}
	return nil
}

// placement is a rewritten directory entry waiting in a temporary file.
type placement struct {
	rel string // input path
	out string // output path, relative to the output root
	tmp string
}

// dir rewrites the files below input concurrently. Outputs are written to
// temporary files first and moved into place in input order, so when two
// inputs map to the same output path the first one wins on every run.
func (r *run) dir(ctx context.Context, input, output string) error {
	opts := walkwalk.Options{
		Exclude:        r.e.opts.Prune,
		MaxFileBytes:   r.e.opts.MaxFileBytes,
		FollowSymlinks: r.e.opts.FollowSymlinks,
	}
	if rel, ok := below(input, output); ok {
		opts.Skip = func(p string, dir bool) bool { return dir && p == rel }
	}
	files, total, err := walkwalk.CollectFiles(input, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return wrap(output, err)
	}
	r.e.log.WithFields(logrus.Fields{"files": len(files), "bytes": total, "workers": r.e.opts.Workers}).Info("rewriting directory")

	placed := make([]placement, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := r.file(f, output)
			if err != nil {
				return err
			}
			placed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, p := range placed {
			if p.tmp != "" {
				_ = os.Remove(p.tmp)
			}
		}
		return err
	}
	return r.place(placed, output)
}

// file rewrites one directory entry into a temporary file below output.
func (r *run) file(f walkwalk.FileInfo, output string) (placement, error) {
	data, err := os.ReadFile(f.AbsPath)
	if err != nil {
		if r.e.opts.Strict {
			return placement{}, wrap(f.RelPath, err)
		}
		r.fail(f.RelPath, err, false)
		return placement{}, nil
	}
	in := artifact.New(f.RelPath, data, nil)
	out := in
	if f.Oversize {
		err := fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, f.Size, r.e.opts.MaxFileBytes)
		if r.e.opts.Strict {
			return placement{}, wrap(f.RelPath, err)
		}
		r.fail(f.RelPath, err, true)
		r.add(&changes.Record{InputName: in.Name, OutputName: in.Name})
	} else if out, err = r.top(in); err != nil {
		return placement{}, err
	}
	tmp, err := report.WriteTemp(output, path.Base(out.Name), out.Data, f.Mode)
	if err != nil {
		return placement{}, wrap(f.RelPath, err)
	}
	return placement{rel: f.RelPath, out: ziputil.SanitizePath(out.Name), tmp: tmp}, nil
}

func (r *run) place(placed []placement, output string) error {
	owner := make(map[string]string, len(placed))
	for i, p := range placed {
		if p.tmp == "" {
			continue
		}
		if prev, dup := owner[p.out]; dup {
			_ = os.Remove(p.tmp)
			err := fmt.Errorf("%w: %s already written for %s", ErrDuplicateOutput, p.out, prev)
			if r.e.opts.Strict {
				removeTemps(placed[i+1:])
				return wrap(p.rel, err)
			}
			r.fail(p.rel, err, false)
			continue
		}
		owner[p.out] = p.rel
		dst := filepath.Join(output, filepath.FromSlash(p.out))
		err := os.MkdirAll(filepath.Dir(dst), 0o755)
		if err == nil {
			err = os.Rename(p.tmp, dst)
		}
		if err != nil {
			_ = os.Remove(p.tmp)
			removeTemps(placed[i+1:])
			return wrap(p.out, err)
		}
	}
	return nil
}

func removeTemps(placed []placement) {
	for _, p := range placed {
		if p.tmp != "" {
			_ = os.Remove(p.tmp)
		}
	}
}

// below returns the slash separated path of p relative to dir when p lies
// inside dir.
func below(dir, p string) (string, bool) {
	d, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	q, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(d, q)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

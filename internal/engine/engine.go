// Package engine dispatches artifacts to the class, resource and archive
// rewriters and runs them over files and directories.
package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/artifact"
	"class-transformer/internal/changes"
	"class-transformer/internal/classrewrite"
	"class-transformer/internal/diff"
	"class-transformer/internal/report"
	"class-transformer/internal/resource"
	"class-transformer/internal/rules"
	"class-transformer/internal/selection"
	"class-transformer/internal/signature"
	"class-transformer/internal/ziputil"
)

// Kind is the rewriter an artifact is handed to.
type Kind string

const (
	KindClass    Kind = "class"
	KindManifest Kind = "manifest"
	KindService  Kind = "service"
	KindArchive  Kind = "archive"
	KindText     Kind = "text"
	KindBinary   Kind = "binary" // relocated only
)

var textExts = map[string]bool{
	".properties": true, ".xml": true, ".xsd": true, ".dtd": true,
	".wsdl": true, ".xmi": true, ".tld": true, ".tag": true,
	".tagx": true, ".jsp": true, ".jspx": true, ".jspf": true,
	".html": true, ".htm": true, ".xhtml": true, ".json": true,
	".txt": true, ".yaml": true, ".yml": true, ".conf": true,
	".inc": true, ".js": true, ".sql": true,
}

// KindOf picks the rewriter for an artifact name.
func KindOf(name string) Kind {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == ".class":
		return KindClass
	case resource.IsManifest(name):
		return KindManifest
	case resource.IsService(name):
		return KindService
	case ziputil.IsArchive(name):
		return KindArchive
	case textExts[ext]:
		return KindText
	}
	return KindBinary
}

// Options configures an Engine.
type Options struct {
	Rules    *rules.Set
	Selector *selection.Selector // nil selects everything

	CacheSize int // entries per signature cache; 0 disables caching
	Workers   int // parallel files for directory input

	// Strict fails the run on the first artifact that cannot be
	// rewritten; otherwise it is copied unchanged with a warning.
	Strict bool

	// Directory input: base names left out of the output, the size above
	// which a file is copied unchanged (0 = no limit), and whether files
	// behind symbolic links are read.
	Prune          []string
	MaxFileBytes   int64
	FollowSymlinks bool

	// Diff adds unified diffs of rewritten text artifacts to the report.
	Diff         bool
	DiffMaxBytes int

	Log logrus.FieldLogger
}

// Engine rewrites artifacts of every kind with one rule set. It is safe
// for concurrent use.
type Engine struct {
	opts      Options
	log       logrus.FieldLogger
	tr        *signature.Transformer
	classes   *classrewrite.Rewriter
	resources *resource.Rewriter
}

// New builds the matcher and rewriters for opts.Rules.
func New(opts Options) (*Engine, error) {
	if opts.Rules == nil {
		return nil, &rules.RuleError{Source: "engine", Msg: "no rules"}
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	m, err := opts.Rules.Matcher()
	if err != nil {
		return nil, err
	}
	tr := signature.NewTransformer(m, opts.CacheSize, opts.Log)
	return &Engine{
		opts:      opts,
		log:       opts.Log,
		tr:        tr,
		classes:   classrewrite.New(tr, m, opts.Rules, opts.Log),
		resources: resource.New(m, opts.Rules, opts.Log),
	}, nil
}

// Transform rewrites one artifact of any kind. Archive entries that fail
// are copied unchanged unless the engine is strict.
func (e *Engine) Transform(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	r := &run{e: e}
	return r.transform(in, t, in.Name)
}

// run carries the report of one Run through the recursion.
type run struct {
	e   *Engine
	rep *report.Report // nil outside Run
}

// transform dispatches in by kind. where names the artifact for logs and
// the report, including its enclosing archives.
func (r *run) transform(in *artifact.ByteData, t *changes.Tracker, where string) (*artifact.ByteData, *changes.Record, error) {
	if !r.e.opts.Selector.Selected(in.Name) {
		t.Begin(in.Name)
		return in, t.End(), nil
	}
	switch KindOf(in.Name) {
	case KindClass:
		return r.e.classes.Rewrite(in, t)
	case KindManifest:
		return r.text(in, t, where, r.e.resources.Manifest)
	case KindService:
		return r.text(in, t, where, r.e.resources.Service)
	case KindArchive:
		return r.archive(in, t, where)
	case KindText:
		return r.text(in, t, where, r.e.resources.Text)
	}
	return r.binary(in, t)
}

type rewriteFunc func(*artifact.ByteData, *changes.Tracker) (*artifact.ByteData, *changes.Record, error)

// text runs a resource rewriter in the artifact's charset and records a
// diff of the change.
func (r *run) text(in *artifact.ByteData, t *changes.Tracker, where string, fn rewriteFunc) (*artifact.ByteData, *changes.Record, error) {
	src := in
	if in.Charset == nil {
		src = &artifact.ByteData{Name: in.Name, Data: in.Data, Charset: r.e.opts.Selector.Charset(in.Name)}
	}
	out, rec, err := fn(src, t)
	if err != nil {
		return nil, rec, err
	}
	if out == src {
		return in, rec, nil
	}
	if rec.ContentChanged {
		r.diff(where, src, out)
	}
	return out, rec, nil
}

func (r *run) diff(where string, in, out *artifact.ByteData) {
	if r.rep == nil || !r.e.opts.Diff {
		return
	}
	a, errA := in.Text()
	b, errB := out.Text()
	if errA != nil || errB != nil {
		return
	}
	to := strings.TrimSuffix(where, in.Name) + out.Name
	patch, oversize := diff.Unified(where, to, []byte(a), []byte(b), diff.Options{MaxBytes: r.e.opts.DiffMaxBytes})
	if patch == "" {
		return
	}
	r.rep.AddDiff(report.Diff{Name: where, Patch: patch, Oversize: oversize})
}

// binary moves a resource out of a renamed package directory; its bytes
// are kept.
func (r *run) binary(in *artifact.ByteData, t *changes.Tracker) (*artifact.ByteData, *changes.Record, error) {
	t.Begin(in.Name)
	if out, ok := r.e.resources.RelocatePath(in.Name); ok {
		t.Rename(out)
	}
	rec := t.End()
	if rec.NameChanged() {
		return in.WithName(rec.OutputName), rec, nil
	}
	return in, rec, nil
}

// archive rewrites every entry of a zip based archive inside a session of
// its own, so entry records nest below the archive's.
func (r *run) archive(in *artifact.ByteData, t *changes.Tracker, where string) (*artifact.ByteData, *changes.Record, error) {
	t.Begin(in.Name)
	log := r.e.log.WithField("artifact", where)
	data, st, err := ziputil.Rewrite(in.Data, func(entry *artifact.ByteData) (*artifact.ByteData, error) {
		at := where + "!/" + entry.Name
		out, rec, err := r.transform(entry, t, at)
		if err != nil {
			if r.e.opts.Strict {
				return nil, wrap(at, err)
			}
			r.fail(at, err, true)
			return entry, nil
		}
		if !rec.Changed() {
			return entry, nil
		}
		t.Record(changes.ArchiveEntry)
		return out, nil
	}, log)
	if err != nil {
		return nil, t.Abort(), err
	}
	t.Add(changes.ArchiveEntry, st.Duplicates)
	rec := t.End()
	log.WithFields(logrus.Fields{
		"entries":    st.Entries,
		"changed":    st.Changed,
		"renamed":    st.Renamed,
		"duplicates": st.Duplicates,
	}).Debug("archive rewritten")
	if !rec.ContentChanged {
		return in, rec, nil
	}
	return in.WithData(data), rec, nil
}

// fail logs and reports an artifact that is kept as it was (copied) or
// left out of the output.
func (r *run) fail(where string, err error, copied bool) {
	kind := Classify(err)
	msg := "artifact copied unchanged"
	if !copied {
		msg = "artifact skipped"
	}
	r.e.log.WithFields(logrus.Fields{"artifact": where, "kind": kind}).WithError(err).Warn(msg)
	if r.rep != nil {
		r.rep.Fail(report.Failure{Name: where, Kind: string(kind), Error: err.Error(), Copied: copied})
	}
}

// top rewrites one top-level artifact under the strictness policy and
// reports it.
func (r *run) top(in *artifact.ByteData) (*artifact.ByteData, error) {
	t := changes.NewTracker()
	out, rec, err := r.transform(in, t, in.Name)
	if err != nil {
		if r.e.opts.Strict {
			return nil, wrap(in.Name, err)
		}
		r.fail(in.Name, err, true)
		r.add(&changes.Record{InputName: in.Name, OutputName: in.Name})
		return in, nil
	}
	if t.Depth() != 0 {
		panic(fmt.Sprintf("engine: %d sessions left open after %s", t.Depth(), in.Name))
	}
	r.add(rec)
	if rec.Changed() {
		r.e.log.WithField("artifact", in.Name).Debug(rec.String())
	}
	return out, nil
}

func (r *run) add(rec *changes.Record) {
	if r.rep != nil {
		r.rep.Add(rec)
	}
}

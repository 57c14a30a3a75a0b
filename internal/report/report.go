// Package report collects the outcome of a run and persists it as JSON.
//
// A Report is filled concurrently by the workers of a run, then finished
// and saved with an atomic write (temporary file in the target directory,
// then rename) so readers never observe a partially written report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"class-transformer/internal/changes"
)

// FormatVersion versions the report schema.
const FormatVersion = "1"

// Failure is one artifact that could not be rewritten.
type Failure struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
	Copied bool   `json:"copied"` // written unchanged to the output
}

// Diff is the unified diff of one rewritten text artifact.
type Diff struct {
	Name     string `json:"name"`
	Patch    string `json:"patch"`
	Oversize bool   `json:"oversize,omitempty"`
}

// Totals summarizes a run.
type Totals struct {
	Artifacts int                  `json:"artifacts"`
	Changed   int                  `json:"changed"`
	Renamed   int                  `json:"renamed"`
	Failed    int                  `json:"failed"`
	Counts    map[changes.Kind]int `json:"counts,omitempty"`
}

// Report is the outcome of one run. Only changed artifacts are listed;
// Totals counts all of them.
type Report struct {
	FormatVersion string            `json:"formatVersion"`
	Created       string            `json:"created"`
	Input         string            `json:"input"`
	Output        string            `json:"output"`
	Artifacts     []*changes.Record `json:"artifacts"`
	Failures      []Failure         `json:"failures,omitempty"`
	Diffs         []Diff            `json:"diffs,omitempty"`
	Totals        Totals            `json:"totals"`

	mu sync.Mutex
}

// New returns an empty report for a run from input to output.
func New(input, output string) *Report {
	return &Report{
		FormatVersion: FormatVersion,
		Input:         input,
		Output:        output,
		Artifacts:     []*changes.Record{},
	}
}

// Add records the outcome of one top-level artifact.
func (r *Report) Add(rec *changes.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Totals.Artifacts++
	if !rec.Changed() {
		return
	}
	r.Artifacts = append(r.Artifacts, rec)
	if rec.ContentChanged {
		r.Totals.Changed++
	}
	if rec.NameChanged() {
		r.Totals.Renamed++
	}
	if r.Totals.Counts == nil {
		r.Totals.Counts = make(map[changes.Kind]int)
	}
	addCounts(r.Totals.Counts, rec)
}

func addCounts(dst map[changes.Kind]int, rec *changes.Record) {
	for k, n := range rec.Counts {
		dst[k] += n
	}
	for _, c := range rec.Nested {
		addCounts(dst, c)
	}
}

// Fail records an artifact that could not be rewritten. Failed archive
// entries are reported too, so Failed can exceed the number of top-level
// artifacts, which only Add counts.
func (r *Report) Fail(f Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Totals.Failed++
	r.Failures = append(r.Failures, f)
}

// AddDiff records the diff of a rewritten text artifact.
func (r *Report) AddDiff(d Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Diffs = append(r.Diffs, d)
}

// Finish stamps the report and sorts its lists by name so that reports of
// identical runs are identical apart from Created.
func (r *Report) Finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created = now.UTC().Format(time.RFC3339)
	sort.Slice(r.Artifacts, func(i, j int) bool { return r.Artifacts[i].InputName < r.Artifacts[j].InputName })
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Name < r.Failures[j].Name })
	sort.Slice(r.Diffs, func(i, j int) bool { return r.Diffs[i].Name < r.Diffs[j].Name })
}

// Load reads a report saved by Save.
func Load(path string) (*Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	if r.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("report %s: unsupported format version %q", path, r.FormatVersion)
	}
	return &r, nil
}

// Save writes the report atomically to path, creating its directory.
func Save(path string, r *Report) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, f, err := createTempFile(dir, filepath.Base(path))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	r.mu.Lock()
	err = enc.Encode(r)
	r.mu.Unlock()
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp) // best-effort cleanup
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// WriteFile writes data to path atomically with the given permissions,
// creating parent directories.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := WriteTemp(dir, filepath.Base(path), data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// WriteTemp writes data to a new temporary file in dir and returns its
// path. The caller renames it into place or removes it.
func WriteTemp(dir, base string, data []byte, perm os.FileMode) (string, error) {
	tmp, f, err := createTempFile(dir, base)
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(perm)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	return tmp, nil
}

// createTempFile creates a temporary file in the target directory with a
// name derived from base (".tmp-<base>-<rand>"), returning its path and an
// *os.File ready for writing. Caller is responsible for closing it.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, ".tmp-"+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

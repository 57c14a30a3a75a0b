// Package rules loads the rename tables that drive a run: package renames,
// version overrides, bundle identity updates and per-class string
// overrides.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"class-transformer/internal/rename"
)

// VersionAttribute keys the specific-version table for @Version
// annotations on package-info classes.
const VersionAttribute = "@Version"

// AnyBundle keys a bundle update that applies to every bundle.
const AnyBundle = "*"

// ErrMalformed is wrapped by every RuleError.
var ErrMalformed = errors.New("malformed rule data")

// RuleError reports rule data that cannot be used.
type RuleError struct {
	Source string
	Key    string
	Msg    string
}

func (e *RuleError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s: %s", ErrMalformed, e.Source, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %q: %s", ErrMalformed, e.Source, e.Key, e.Msg)
}

func (e *RuleError) Unwrap() error { return ErrMalformed }

// BundleUpdate replaces the identity of an OSGi bundle. Empty fields keep
// the original value.
type BundleUpdate struct {
	SymbolicName string `yaml:"symbolicName"`
	Version      string `yaml:"version"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
}

// Set is the complete rule data of a run. It is read-only once built.
type Set struct {
	Renames []rename.Rule

	// Versions maps a dotted package to the version its exports get.
	Versions map[string]string
	// SpecificVersions maps a manifest header name, or VersionAttribute,
	// to a package version table that wins over Versions.
	SpecificVersions map[string]map[string]string
	// Bundles maps an original Bundle-SymbolicName, or AnyBundle, to its
	// replacement identity.
	Bundles map[string]BundleUpdate

	// Direct maps a whole string constant to its replacement in every
	// class.
	Direct map[string]string
	// PerClass maps a slashed class name to whole-string replacements for
	// that class only.
	PerClass map[string]map[string]string
	// PerClassText maps a slashed class name to substring replacements for
	// that class only.
	PerClassText map[string]map[string]string
}

// Matcher builds the package matcher for the rename rules.
func (s *Set) Matcher() (*rename.Matcher, error) {
	m, err := rename.NewMatcher(s.Renames)
	if err != nil {
		return nil, &RuleError{Source: "renames", Msg: err.Error()}
	}
	return m, nil
}

// VersionFor returns the version for a dotted package as seen by the
// header or attribute named property. The specific table wins.
func (s *Set) VersionFor(property, pkg string) (string, bool) {
	if v, ok := s.SpecificVersions[property][pkg]; ok {
		return v, true
	}
	v, ok := s.Versions[pkg]
	return v, ok
}

// BundleFor returns the identity update for a bundle symbolic name.
func (s *Set) BundleFor(symbolicName string) (BundleUpdate, bool) {
	if u, ok := s.Bundles[symbolicName]; ok {
		return u, true
	}
	u, ok := s.Bundles[AnyBundle]
	return u, ok
}

// DirectFor returns the whole-string replacement of value inside class:
// the class's own table first, then the global one.
func (s *Set) DirectFor(class, value string) (string, bool) {
	if v, ok := s.PerClass[class][value]; ok {
		return v, true
	}
	v, ok := s.Direct[value]
	return v, ok
}

// TextFor applies the substring replacements of class to value, longest
// key first. It returns false when none applied.
func (s *Set) TextFor(class, value string) (string, bool) {
	table := s.PerClassText[class]
	if len(table) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, table[k])
	}
	out := strings.NewReplacer(pairs...).Replace(value)
	if out == value {
		return "", false
	}
	return out, true
}

// HasOverrides reports whether any string override applies to class.
func (s *Set) HasOverrides(class string) bool {
	return len(s.Direct) > 0 || len(s.PerClass[class]) > 0 || len(s.PerClassText[class]) > 0
}

// Merge overlays o onto s: rename rules with the same key and map entries
// with the same key are replaced by o's.
func (s *Set) Merge(o *Set) {
	if o == nil {
		return
	}
	byKey := make(map[string]int, len(s.Renames))
	for i, r := range s.Renames {
		byKey[r.Key()] = i
	}
	for _, r := range o.Renames {
		if i, ok := byKey[r.Key()]; ok {
			s.Renames[i] = r
			continue
		}
		byKey[r.Key()] = len(s.Renames)
		s.Renames = append(s.Renames, r)
	}
	s.Versions = mergeFlat(s.Versions, o.Versions)
	s.Direct = mergeFlat(s.Direct, o.Direct)
	s.SpecificVersions = mergeNested(s.SpecificVersions, o.SpecificVersions)
	s.PerClass = mergeNested(s.PerClass, o.PerClass)
	s.PerClassText = mergeNested(s.PerClassText, o.PerClassText)
	for k, v := range o.Bundles {
		if s.Bundles == nil {
			s.Bundles = make(map[string]BundleUpdate)
		}
		s.Bundles[k] = v
	}
}

func mergeFlat(dst, src map[string]string) map[string]string {
	for k, v := range src {
		if dst == nil {
			dst = make(map[string]string, len(src))
		}
		dst[k] = v
	}
	return dst
}

func mergeNested(dst, src map[string]map[string]string) map[string]map[string]string {
	for k, m := range src {
		if dst == nil {
			dst = make(map[string]map[string]string, len(src))
		}
		dst[k] = mergeFlat(dst[k], m)
	}
	return dst
}

// Invert returns a set that undoes the package renames of s. Version,
// bundle and string override tables describe one direction only and are
// dropped.
func (s *Set) Invert() (*Set, error) {
	out := &Set{Renames: make([]rename.Rule, 0, len(s.Renames))}
	seen := make(map[string]string, len(s.Renames))
	for _, r := range s.Renames {
		inv := rename.Rule{Pattern: r.Replacement, Replacement: r.Pattern, Wildcard: r.Wildcard}
		if prev, dup := seen[inv.Key()]; dup {
			if prev == inv.Replacement {
				continue
			}
			return nil, &RuleError{Source: "invert", Key: inv.Key(), Msg: fmt.Sprintf("is the target of both %s and %s", prev, inv.Replacement)}
		}
		seen[inv.Key()] = inv.Replacement
		out.Renames = append(out.Renames, inv)
	}
	return out, nil
}

// Validate checks the set the way it will be used, so that malformed data
// fails before any artifact is processed.
func (s *Set) Validate(source string) error {
	for _, r := range s.Renames {
		if !rename.IsPackageName(r.Pattern) {
			return &RuleError{Source: source, Key: r.Key(), Msg: "not a package name"}
		}
		if !rename.IsPackageName(r.Replacement) {
			return &RuleError{Source: source, Key: r.Key(), Msg: fmt.Sprintf("replacement %q is not a package name", r.Replacement)}
		}
	}
	if _, err := rename.NewMatcher(s.Renames); err != nil {
		return &RuleError{Source: source, Msg: err.Error()}
	}
	for pkg, v := range s.Versions {
		if err := checkVersion(source, pkg, v); err != nil {
			return err
		}
	}
	for prop, table := range s.SpecificVersions {
		if prop == "" {
			return &RuleError{Source: source, Msg: "empty property in specific versions"}
		}
		for pkg, v := range table {
			if err := checkVersion(source, prop+" "+pkg, v); err != nil {
				return err
			}
		}
	}
	for name, b := range s.Bundles {
		if name == "" {
			return &RuleError{Source: source, Msg: "empty bundle symbolic name"}
		}
		if b == (BundleUpdate{}) {
			return &RuleError{Source: source, Key: name, Msg: "bundle update changes nothing"}
		}
	}
	for class, table := range s.PerClassText {
		for k := range table {
			if k == "" {
				return &RuleError{Source: source, Key: class, Msg: "empty substring override"}
			}
		}
	}
	return nil
}

func checkVersion(source, key, v string) error {
	if strings.TrimSpace(v) == "" {
		return &RuleError{Source: source, Key: key, Msg: "empty version"}
	}
	return nil
}

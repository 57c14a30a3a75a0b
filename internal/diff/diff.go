// Package diff renders unified diffs of rewritten text artifacts using
// github.com/pmezard/go-difflib/difflib.
package diff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Options controls patch generation.
type Options struct {
	// MaxBytes is a guardrail on input size (old+new). When exceeded a
	// placeholder patch is returned and oversize is true. 0 means no limit.
	MaxBytes int

	// Context is the number of context lines in hunks. 0 means 3.
	Context int
}

// Unified produces a unified patch from a to b. The file headers carry
// the "a/" and "b/" prefixes. It returns "" when a and b are equal.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if string(a) == string(b) {
		return "", false
	}
	from, to := "a/"+aName, "b/"+bName
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(from, to, "oversize"), true
	}
	if !utf8.Valid(a) || !utf8.Valid(b) {
		return omitted(from, to, "binary"), false
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: from,
		ToFile:   to,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil || s == "" {
		return omitted(from, to, "unavailable"), false
	}
	return s, false
}

// splitLinesKeepNL splits into lines and keeps newline characters. A last
// line without a newline gets one so that hunks stay line oriented.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if last := lines[len(lines)-1]; last == "" {
		lines = lines[:len(lines)-1]
	} else if !strings.HasSuffix(last, "\n") {
		lines[len(lines)-1] = last + "\n"
	}
	return lines
}

// omitted returns a compact placeholder patch.
func omitted(from, to, why string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (%s)\n", from, to, why)
}

package engine

import (
	"archive/zip"
	"errors"

	"class-transformer/internal/classfile"
	"class-transformer/internal/resource"
	"class-transformer/internal/rules"
	"class-transformer/internal/signature"
)

// ErrorKind is the category of a failure in the run report.
type ErrorKind string

const (
	ParseFailure            ErrorKind = "parse-failure"
	UnsupportedConstantKind ErrorKind = "unsupported-constant"
	IOFailure               ErrorKind = "io-failure"
	MalformedRuleData       ErrorKind = "malformed-rule-data"
)

// ErrDuplicateOutput is reported for a directory entry whose output path
// was already taken by an earlier entry.
var ErrDuplicateOutput = errors.New("duplicate output path")

// ErrTooLarge is reported for a directory entry above the size limit; it
// is copied without being read as an artifact.
var ErrTooLarge = errors.New("file too large")

// ArtifactError ties a failure to the artifact it happened in. Entries of
// archives are named "outer.jar!/inner/Name.class".
type ArtifactError struct {
	Path string
	Err  error
}

func (e *ArtifactError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *ArtifactError) Unwrap() error { return e.Err }

func wrap(path string, err error) error {
	var ae *ArtifactError
	if errors.As(err, &ae) {
		return err
	}
	return &ArtifactError{Path: path, Err: err}
}

// Classify maps an error to its kind. Errors no rewriter produces itself,
// file system errors among them, are IOFailure.
func Classify(err error) ErrorKind {
	var (
		unsupported *classfile.UnsupportedConstantError
		rule        *rules.RuleError
		class       *classfile.ParseError
		syntax      *signature.SyntaxError
		manifest    *resource.ManifestError
	)
	switch {
	case errors.As(err, &unsupported):
		return UnsupportedConstantKind
	case errors.As(err, &rule):
		return MalformedRuleData
	case errors.As(err, &class), errors.As(err, &syntax), errors.As(err, &manifest),
		errors.Is(err, zip.ErrFormat), errors.Is(err, zip.ErrAlgorithm), errors.Is(err, zip.ErrChecksum):
		return ParseFailure
	default:
		return IOFailure
	}
}

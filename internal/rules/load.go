package rules

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"class-transformer/internal/rename"
)

//go:embed default.yaml
var defaultYAML []byte

// fileSet is the YAML shape of a rule file.
type fileSet struct {
	Renames          map[string]string            `yaml:"renames"`
	Versions         map[string]string            `yaml:"versions"`
	SpecificVersions map[string]map[string]string `yaml:"specificVersions"`
	Bundles          map[string]BundleUpdate      `yaml:"bundles"`
	Direct           map[string]string            `yaml:"direct"`
	PerClass         map[string]map[string]string `yaml:"perClass"`
	PerClassText     map[string]map[string]string `yaml:"perClassText"`
}

// Default returns the built-in javax to jakarta rules.
func Default() (*Set, error) {
	return ParseYAML("default.yaml", defaultYAML)
}

// ParseYAML decodes and validates a YAML rule file.
func ParseYAML(source string, data []byte) (*Set, error) {
	var f fileSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &RuleError{Source: source, Msg: err.Error()}
	}
	s := &Set{
		Renames:          renamesOf(f.Renames),
		Versions:         f.Versions,
		SpecificVersions: f.SpecificVersions,
		Bundles:          f.Bundles,
		Direct:           f.Direct,
		PerClass:         f.PerClass,
		PerClassText:     f.PerClassText,
	}
	if err := s.Validate(source); err != nil {
		return nil, err
	}
	return s, nil
}

func renamesOf(m map[string]string) []rename.Rule {
	out := make([]rename.Rule, 0, len(m))
	for k, v := range m {
		out = append(out, rename.ParseRule(k, v))
	}
	return out
}

// ParseProperties decodes a Java properties file of package renames
// ("javax.servlet=jakarta.servlet", "javax.servlet.*=jakarta.servlet").
func ParseProperties(source string, data []byte) (*Set, error) {
	props, err := parseProperties(data)
	if err != nil {
		return nil, &RuleError{Source: source, Msg: err.Error()}
	}
	s := &Set{Renames: renamesOf(props)}
	if err := s.Validate(source); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads one rule file; ".properties" files hold renames only, any
// other file is YAML.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".properties") {
		return ParseProperties(path, data)
	}
	return ParseYAML(path, data)
}

// Options selects the rule sources of a run.
type Options struct {
	Files      []string
	NoDefaults bool
	Invert     bool
}

// Build merges the default rules (unless disabled) with every file in
// order, later files winning, and validates the result.
func Build(opts Options) (*Set, error) {
	s := &Set{}
	if !opts.NoDefaults {
		d, err := Default()
		if err != nil {
			return nil, err
		}
		s.Merge(d)
	}
	for _, p := range opts.Files {
		f, err := Load(p)
		if err != nil {
			return nil, err
		}
		s.Merge(f)
	}
	if len(s.Renames) == 0 {
		return nil, &RuleError{Source: "rules", Msg: "no package renames configured"}
	}
	if opts.Invert {
		inv, err := s.Invert()
		if err != nil {
			return nil, err
		}
		s = inv
	}
	if err := s.Validate("rules"); err != nil {
		return nil, err
	}
	return s, nil
}

// parseProperties reads key=value, key:value and "key value" lines with
// '#' and '!' comments and backslash line continuations.
func parseProperties(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	var logical strings.Builder
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimLeft(sc.Text(), " \t\f")
		if logical.Len() == 0 && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}
		if cont := trailingBackslashes(line)%2 == 1; cont {
			logical.WriteString(line[:len(line)-1])
			continue
		}
		logical.WriteString(line)
		key, value, ok := splitProperty(logical.String())
		logical.Reset()
		if !ok {
			return nil, fmt.Errorf("line %d: missing key", lineNo)
		}
		out[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if logical.Len() > 0 {
		key, value, ok := splitProperty(logical.String())
		if !ok {
			return nil, fmt.Errorf("line %d: missing key", lineNo)
		}
		out[key] = value
	}
	return out, nil
}

func trailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

func splitProperty(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, "=: \t")
	if i < 0 {
		return strings.TrimSpace(line), "", line != ""
	}
	key = line[:i]
	rest := strings.TrimLeft(line[i:], " \t")
	if rest != "" && (rest[0] == '=' || rest[0] == ':') {
		rest = rest[1:]
	}
	return key, strings.TrimSpace(rest), key != ""
}

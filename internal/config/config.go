// Package config turns command-line flags, environment variables and an
// optional .env file into the settings of a run.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys that supply flag defaults.
const (
	EnvRules     = "CT_RULES"
	EnvLogLevel  = "CT_LOG_LEVEL"
	EnvLogFormat = "CT_LOG_FORMAT"
	EnvWorkers   = "CT_WORKERS"
	EnvCacheSize = "CT_CACHE_SIZE"
	EnvStrict    = "CT_STRICT"
)

// DefaultCacheSize bounds each signature cache.
const DefaultCacheSize = 10000

// UsageError reports bad command-line input.
type UsageError struct{ Msg string }

func (e *UsageError) Error() string { return e.Msg }

func usagef(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Config holds the settings of one run.
type Config struct {
	Input  string
	Output string

	Rules      []string
	NoDefaults bool
	Invert     bool

	Report       string
	Diff         bool
	DiffMaxBytes int

	Workers   int
	CacheSize int
	Strict    bool

	LogLevel  string
	LogFormat string

	Includes []string
	Excludes []string
	Charsets []string

	// Directory input only.
	Prune          []string
	MaxFileBytes   int64
	FollowSymlinks bool
}

// LoadEnv loads path into the process environment if it exists. Variables
// already set win over the file.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// listFlag collects a repeatable, comma-separated flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, splitCSV(v)...)
	return nil
}

// splitCSV splits a comma-separated list, trimming spaces and dropping
// empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse parses args (without the program name). Defaults come from getenv.
// Usage and help text go to w. Errors from bad input are *UsageError,
// except flag.ErrHelp.
func Parse(args []string, getenv func(string) string, w io.Writer) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	workers, err := envInt(getenv, EnvWorkers, runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	cacheSize, err := envInt(getenv, EnvCacheSize, DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	strict := false
	if v := strings.TrimSpace(getenv(EnvStrict)); v != "" {
		if strict, err = strconv.ParseBool(v); err != nil {
			return nil, usagef("%s=%q: not a boolean", EnvStrict, v)
		}
	}

	cfg := &Config{}
	set := flag.NewFlagSet("class-transformer", flag.ContinueOnError)
	set.SetOutput(w)
	set.Usage = func() {
		fmt.Fprintln(w, "Usage:")
		fmt.Fprintln(w, "  class-transformer [flags] <input> [output]")
		fmt.Fprintln(w, "\n<input> is a class file, an archive (jar, war, ear, rar, zip), a resource or a directory.")
		fmt.Fprintln(w, "\nFlags:")
		set.PrintDefaults()
	}
	set.Var((*listFlag)(&cfg.Rules), "rules", "rule file (YAML or .properties); repeatable, comma-separated (default $"+EnvRules+")")
	set.BoolVar(&cfg.NoDefaults, "no-defaults", false, "do not load the built-in javax to jakarta rules")
	set.BoolVar(&cfg.Invert, "invert", false, "apply the rename rules in reverse")
	set.StringVar(&cfg.Output, "o", "", "output path (default: <input> with .out before the extension, <input>_output for directories)")
	set.StringVar(&cfg.Report, "report", "", "write a JSON run report to this path")
	set.BoolVar(&cfg.Diff, "diff", false, "include unified diffs of rewritten text resources (stdout without -report)")
	set.IntVar(&cfg.DiffMaxBytes, "diff-max-bytes", 1_000_000, "skip diffs of larger resources (0 = no limit)")
	set.IntVar(&cfg.Workers, "workers", workers, "parallel workers for directory input ($"+EnvWorkers+")")
	set.IntVar(&cfg.CacheSize, "cache-size", cacheSize, "entries per signature cache, 0 disables caching ($"+EnvCacheSize+")")
	set.BoolVar(&cfg.Strict, "strict", strict, "fail the run on the first artifact that cannot be rewritten ($"+EnvStrict+")")
	set.StringVar(&cfg.LogLevel, "log-level", env(EnvLogLevel, "info"), "log level: debug, info, warn, error ($"+EnvLogLevel+")")
	set.StringVar(&cfg.LogFormat, "log-format", env(EnvLogFormat, "text"), "log format: text or json ($"+EnvLogFormat+")")
	set.Var((*listFlag)(&cfg.Includes), "include", "only rewrite matching artifacts (glob); repeatable")
	set.Var((*listFlag)(&cfg.Excludes), "exclude", "never rewrite matching artifacts (glob); repeatable")
	set.Var((*listFlag)(&cfg.Charsets), "charset", "charset of matching text resources, as pattern=charset; repeatable")
	set.Var((*listFlag)(&cfg.Prune), "prune", "leave files and directories with this base name out of a directory output (trailing * matches a prefix); repeatable")
	set.Int64Var(&cfg.MaxFileBytes, "max-file-bytes", 0, "copy larger files of a directory input unchanged and report them (0 = no limit)")
	set.BoolVar(&cfg.FollowSymlinks, "follow-symlinks", false, "rewrite files reached through symbolic links in a directory input")

	if err := set.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, &UsageError{Msg: err.Error()}
	}
	switch set.NArg() {
	case 1:
	case 2:
		if cfg.Output != "" && cfg.Output != set.Arg(1) {
			return nil, usagef("output given twice: -o %s and %s", cfg.Output, set.Arg(1))
		}
		cfg.Output = set.Arg(1)
	case 0:
		set.Usage()
		return nil, usagef("missing <input>")
	default:
		return nil, usagef("too many arguments: %q", set.Args()[2:])
	}
	cfg.Input = filepath.Clean(set.Arg(0))
	if len(cfg.Rules) == 0 {
		cfg.Rules = splitCSV(getenv(EnvRules))
	}
	if cfg.Workers < 1 {
		return nil, usagef("-workers must be at least 1")
	}
	if cfg.CacheSize < 0 {
		return nil, usagef("-cache-size must not be negative")
	}
	if cfg.MaxFileBytes < 0 {
		return nil, usagef("-max-file-bytes must not be negative")
	}
	return cfg, nil
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, usagef("%s=%q: not an integer", key, v)
	}
	return n, nil
}

// Resolve checks the input and fills in the default output. It reports
// whether the input is a directory.
func (c *Config) Resolve() (dir bool, err error) {
	fi, err := os.Stat(c.Input)
	if err != nil {
		return false, err
	}
	dir = fi.IsDir()
	if c.Output == "" {
		c.Output = DefaultOutput(c.Input, dir)
	}
	c.Output = filepath.Clean(c.Output)
	if same, _ := samePath(c.Input, c.Output); same {
		return false, usagef("output %s would overwrite the input", c.Output)
	}
	if dir && within(c.Input, c.Output) {
		return false, usagef("output %s is inside the input directory", c.Output)
	}
	return dir, nil
}

// DefaultOutput returns the output path used when none is given:
// "app.war" becomes "app.out.war" and a directory "classes" becomes
// "classes_output".
func DefaultOutput(input string, dir bool) string {
	input = filepath.Clean(input)
	if dir {
		return input + "_output"
	}
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".out" + ext
}

func samePath(a, b string) (bool, error) {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return aa == bb, nil
}

func within(dir, p string) bool {
	d, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	q, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(d, q)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

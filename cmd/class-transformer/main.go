// Package main provides the class-transformer CLI. It rewrites the package
// names referenced by compiled Java artifacts (class files, jar/war/ear
// archives, manifests, service-loader files and text resources) according
// to a set of rename rules, javax to jakarta by default.
//
// Usage:
//
//	class-transformer [flags] <input> [output]
//
// <input> may be a class file, an archive, a single resource or a
// directory. Without an explicit output the result goes next to the input
// ("app.war" becomes "app.out.war", "classes" becomes "classes_output").
//
// Exit status is 0 on success, 1 when the run failed and 2 on usage errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"class-transformer/internal/config"
	"class-transformer/internal/engine"
	"class-transformer/internal/logging"
	"class-transformer/internal/report"
	"class-transformer/internal/rules"
	"class-transformer/internal/selection"
)

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the exit status.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "ERROR:", err)
		return 2
	}
	dir, err := cfg.Resolve()
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		var ue *config.UsageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	log, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 2
	}

	set, err := rules.Build(rules.Options{Files: cfg.Rules, NoDefaults: cfg.NoDefaults, Invert: cfg.Invert})
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
	sel, err := selection.New(cfg.Includes, cfg.Excludes, cfg.Charsets)
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 2
	}
	e, err := engine.New(engine.Options{
		Rules:          set,
		Selector:       sel,
		CacheSize:      cfg.CacheSize,
		Workers:        cfg.Workers,
		Strict:         cfg.Strict,
		Prune:          cfg.Prune,
		MaxFileBytes:   cfg.MaxFileBytes,
		FollowSymlinks: cfg.FollowSymlinks,
		Diff:           cfg.Diff,
		DiffMaxBytes:   cfg.DiffMaxBytes,
		Log:            log,
	})
	if err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}

	log.WithField("input", cfg.Input).WithField("output", cfg.Output).WithField("directory", dir).Info("starting")
	rep := report.New(cfg.Input, cfg.Output)
	start := time.Now()
	runErr := e.Run(ctx, cfg.Input, cfg.Output, rep)
	rep.Finish(time.Now())

	if cfg.Report != "" {
		if err := report.Save(cfg.Report, rep); err != nil {
			fmt.Fprintln(stderr, "ERROR: save report:", err)
			return 1
		}
	} else if cfg.Diff {
		for _, d := range rep.Diffs {
			fmt.Fprint(stdout, d.Patch)
		}
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "ERROR: %v (%s)\n", runErr, engine.Classify(runErr))
		return 1
	}
	log.WithFields(logrus.Fields{
		"artifacts": rep.Totals.Artifacts,
		"changed":   rep.Totals.Changed,
		"renamed":   rep.Totals.Renamed,
		"failed":    rep.Totals.Failed,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("done")
	return 0
}

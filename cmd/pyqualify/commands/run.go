// Package commands implements the pyqualify command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/driver"
	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
	"github.com/Sumatoshi-tech/pyqualify/pkg/runcache"
	"github.com/Sumatoshi-tech/pyqualify/pkg/version"
)

// runOptions are the flags shared by the root command and `run`.
type runOptions struct {
	configPath string

	module string
	alias  string
	match  string

	check  bool
	diff   bool
	stdout bool

	jobs         int
	exclude      []string
	includeStubs bool
	gitChanged   bool
	noCache      bool
	noColor      bool

	format      string
	watch       bool
	metricsAddr string
	debug       bool
}

func (o *runOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.configPath, "config", "", "Config file (default: .pyqualify.yaml in . or $HOME/.config/pyqualify)")

	flags.StringVar(&o.module, "module", "", "Module whose names are qualified (default: typing)")
	flags.StringVar(&o.alias, "alias", "", "Alias the module is imported as (default: t)")
	flags.StringVar(&o.match, "match", "", "Reference matching: scope or spelling (default: scope)")

	flags.BoolVar(&o.check, "check", false, "Report files that would change without writing; exit 1 if any")
	flags.BoolVar(&o.diff, "diff", false, "Print a unified diff per changed file without writing")
	flags.BoolVar(&o.stdout, "stdout", false, "Print the rewritten source instead of writing")

	flags.IntVarP(&o.jobs, "jobs", "j", 0, "Parallel workers (0 = CPU count)")
	flags.StringArrayVar(&o.exclude, "exclude", nil, "Glob of paths to skip, added to the configured list (repeatable)")
	flags.BoolVar(&o.includeStubs, "include-stubs", false, "Also rewrite .pyi stub files")
	flags.BoolVar(&o.gitChanged, "git-changed", false, "Only process files changed in the git worktree")
	flags.BoolVar(&o.noCache, "no-cache", false, "Ignore and do not update the run cache")
	flags.BoolVar(&o.noColor, "no-color", false, "Disable colored output")

	flags.StringVar(&o.format, "format", string(report.FormatText), "Summary format: text, json, yaml")
	flags.BoolVarP(&o.watch, "watch", "w", false, "Keep running and rewrite files as they change")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve /metrics and health endpoints at this address (watch mode)")
	flags.BoolVar(&o.debug, "debug", false, "Enable debug logging and full trace sampling")
}

func (o *runOptions) mode() (driver.Mode, error) {
	selected := 0
	mode := driver.ModeWrite

	if o.check {
		selected++
		mode = driver.ModeCheck
	}

	if o.diff {
		selected++
		mode = driver.ModeDiff
	}

	if o.stdout {
		selected++
		mode = driver.ModeStdout
	}

	if selected > 1 {
		return 0, usageError("--check, --diff and --stdout are mutually exclusive")
	}

	return mode, nil
}

// loadConfig reads the config file and applies the flags that were set.
func (o *runOptions) loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	loaded, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, configError(err)
	}

	cfg := loaded.Config

	if flags.Changed("module") {
		cfg.Module = o.module
	}

	if flags.Changed("alias") {
		cfg.Alias = o.alias
	}

	if flags.Changed("match") {
		cfg.Match = o.match
	}

	if flags.Changed("jobs") {
		cfg.Jobs = o.jobs
	}

	if flags.Changed("include-stubs") {
		cfg.IncludeStubs = o.includeStubs
	}

	cfg.Exclude = append(cfg.Exclude, o.exclude...)

	if o.noCache {
		cfg.Cache.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, configError(err)
	}

	return &cfg, nil
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Qualify typing imports in files and directories",
		Long: `Rewrite Python files so every name imported from typing is used through
a single "import typing as t" alias.

Paths default to the current directory. A single "-" reads stdin and writes
the result to stdout.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}

	opts.register(cmd.Flags())

	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, args []string) error {
	mode, err := o.mode()
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(o.format)
	if err != nil {
		return usageError("%v", err)
	}

	stdin := len(args) == 1 && args[0] == driver.StdinPath
	if !stdin {
		for _, arg := range args {
			if arg == driver.StdinPath {
				return usageError("%v", driver.ErrStdinOnly)
			}
		}
	}

	if o.watch && (stdin || mode == driver.ModeStdout) {
		return usageError("--watch cannot read stdin or print to stdout")
	}

	cfg, err := o.loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	appMode := observability.ModeCLI
	if o.watch {
		appMode = observability.ModeWatch
	}

	metricsAddr := ""
	if o.watch {
		metricsAddr = o.metricsAddr
	}

	tel, err := initTelemetry(cmd.Context(), appMode, cfg, metricsAddr, o.debug)
	if err != nil {
		return err
	}
	defer tel.close()

	rewrite, err := observability.NewRewriteMetrics(tel.Meter)
	if err != nil {
		return err
	}

	colorize := !o.noColor && !color.NoColor

	dopts := driver.Options{
		Qualify:               cfg.QualifyOptions(),
		BlankLineAfterImports: cfg.BlankLineAfterImports,
		Mode:                  mode,
		Jobs:                  cfg.Workers(),
		Exclude:               cfg.Exclude,
		IncludeStubs:          cfg.IncludeStubs,
		GitChanged:            o.gitChanged,
		Out:                   cmd.OutOrStdout(),
		Color:                 colorize,
		Logger:                tel.Logger,
		Tracer:                tel.Tracer,
		Metrics:               rewrite,
	}

	if !stdin && cfg.Cache.Enabled && mode != driver.ModeStdout {
		dopts.Cache = openCache(cfg, tel)
	}

	d, err := driver.New(dopts)
	if err != nil {
		return configError(err)
	}

	// The summary never mixes with rewritten sources or diffs.
	summaryOut := cmd.OutOrStdout()
	if stdin || mode == driver.ModeStdout || mode == driver.ModeDiff {
		summaryOut = cmd.ErrOrStderr()
	}

	ctx := cmd.Context()

	if stdin {
		summary, runErr := d.RunStdin(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		if runErr != nil {
			return runErr
		}

		// Only failures are reported for stdin; the output is the result.
		if summary.Failed > 0 {
			_ = report.Write(cmd.ErrOrStderr(), summary, format, colorize) //nolint:errcheck // best effort on stderr.
		}

		return outcome(summary)
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	summary, err := d.Run(ctx, paths)
	if err != nil {
		if errors.Is(err, driver.ErrPath) {
			return usageError("%v", err)
		}

		return err
	}

	if err := report.Write(summaryOut, summary, format, colorize); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	if o.watch {
		return watchAndRewrite(ctx, d, cfg, paths, summaryOut, format, colorize, tel)
	}

	return outcome(summary)
}

func openCache(cfg *config.Config, tel *telemetry) *runcache.Cache {
	fingerprint := driver.CacheFingerprint(cfg.QualifyOptions(), cfg.BlankLineAfterImports, version.Version)

	cache, err := runcache.Open(cfg.Cache.Path, fingerprint)
	if err != nil {
		tel.Logger.Warn("run cache reset", "path", cfg.Cache.Path, "error", err)
	}

	return cache
}

// outcome maps a finished batch to the command's error.
func outcome(summary *report.Summary) error {
	if summary.Failed > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%w: %d", ErrFilesFailed, summary.Failed)}
	}

	if summary.Check && summary.Changed > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%w: %d", ErrWouldChange, summary.Changed)}
	}

	return nil
}

func writeSummary(w io.Writer, summary *report.Summary, format report.Format, colorize bool, tel *telemetry) {
	if err := report.Write(w, summary, format, colorize); err != nil {
		tel.Logger.Warn("write summary failed", "error", err)
	}
}

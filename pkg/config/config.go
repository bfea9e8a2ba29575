// Package config loads pyqualify settings from .pyqualify.yaml, PYQUALIFY_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod/qualify"
)

// Sentinel validation errors. The rewrite option errors are shared with the
// qualify package so callers can match either.
var (
	ErrInvalidModule    = qualify.ErrInvalidModule
	ErrInvalidAlias     = qualify.ErrInvalidAlias
	ErrInvalidMatchMode = qualify.ErrInvalidMatchMode
	ErrInvalidJobs      = errors.New("jobs must be zero or positive")
	ErrInvalidLogLevel  = errors.New("invalid log level")
	ErrInvalidLogFormat = errors.New("log format must be text or json")
	ErrInvalidDebounce  = errors.New("watch debounce must not be negative")
	ErrSchema           = errors.New("config does not match schema")
)

// Config is the top-level pyqualify configuration.
type Config struct {
	Module                string        `mapstructure:"module"                   yaml:"module"                   json:"module"`
	Alias                 string        `mapstructure:"alias"                    yaml:"alias"                    json:"alias"`
	Match                 string        `mapstructure:"match"                    yaml:"match"                    json:"match"`
	BlankLineAfterImports bool          `mapstructure:"blank_line_after_imports" yaml:"blank_line_after_imports" json:"blank_line_after_imports"`
	Jobs                  int           `mapstructure:"jobs"                     yaml:"jobs"                     json:"jobs"`
	Exclude               []string      `mapstructure:"exclude"                  yaml:"exclude"                  json:"exclude"`
	IncludeStubs          bool          `mapstructure:"include_stubs"            yaml:"include_stubs"            json:"include_stubs"`
	Cache                 CacheConfig   `mapstructure:"cache"                    yaml:"cache"                    json:"cache"`
	Logging               LoggingConfig `mapstructure:"logging"                  yaml:"logging"                  json:"logging"`
	Watch                 WatchConfig   `mapstructure:"watch"                    yaml:"watch"                    json:"watch"`
}

// CacheConfig controls the run cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"    json:"path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Module:                DefaultModule,
		Alias:                 DefaultAlias,
		Match:                 DefaultMatch,
		BlankLineAfterImports: DefaultBlankLineAfterImports,
		Jobs:                  DefaultJobs,
		Exclude:               append([]string(nil), DefaultExclude...),
		IncludeStubs:          DefaultIncludeStubs,
		Cache:                 CacheConfig{Enabled: DefaultCacheEnabled, Path: DefaultCachePath},
		Logging:               LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Watch:                 WatchConfig{Debounce: DefaultWatchDebounce},
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	err := c.QualifyOptions().Validate()
	if err != nil {
		return err
	}

	if c.Jobs < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidJobs, c.Jobs)
	}

	_, err = parseLevel(c.Logging.Level)
	if err != nil {
		return err
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, c.Watch.Debounce)
	}

	return nil
}

// QualifyOptions returns the rewrite options.
func (c *Config) QualifyOptions() qualify.Options {
	return qualify.Options{
		Module: c.Module,
		Alias:  c.Alias,
		Match:  qualify.MatchMode(c.Match),
	}
}

// Workers returns the worker count, resolving zero to the CPU count.
func (c *Config) Workers() int {
	if c.Jobs > 0 {
		return c.Jobs
	}

	return runtime.NumCPU()
}

// LogLevel returns the configured slog level. Invalid levels fall back to
// info; Validate reports them.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelInfo
	}

	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.ToUpper(s)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}

	return level, nil
}

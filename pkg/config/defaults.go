package config

import (
	"time"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod/qualify"
)

// Rewrite defaults.
const (
	DefaultModule                = qualify.DefaultModule
	DefaultAlias                 = qualify.DefaultAlias
	DefaultMatch                 = string(qualify.MatchScope)
	DefaultBlankLineAfterImports = true
)

// Batch defaults. Zero jobs means one worker per CPU.
const (
	DefaultJobs         = 0
	DefaultIncludeStubs = false
)

// DefaultExclude skips directories that never hold first-party sources.
var DefaultExclude = []string{
	".git",
	".hg",
	".venv",
	"venv",
	"__pycache__",
	"node_modules",
	".tox",
	".mypy_cache",
	"build",
	"dist",
}

// Cache defaults.
const (
	DefaultCacheEnabled = true
	DefaultCachePath    = ".pyqualify_cache"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultWatchDebounce coalesces editor save bursts into one run.
const DefaultWatchDebounce = 200 * time.Millisecond

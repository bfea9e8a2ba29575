package config_test

import (
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(*config.Config) {}},
		{name: "dotted module", mutate: func(c *config.Config) { c.Module = "a.b" }},
		{name: "bad module", mutate: func(c *config.Config) { c.Module = "a..b" }, wantErr: config.ErrInvalidModule},
		{name: "bad alias", mutate: func(c *config.Config) { c.Alias = "1t" }, wantErr: config.ErrInvalidAlias},
		{name: "bad match", mutate: func(c *config.Config) { c.Match = "regex" }, wantErr: config.ErrInvalidMatchMode},
		{name: "negative jobs", mutate: func(c *config.Config) { c.Jobs = -2 }, wantErr: config.ErrInvalidJobs},
		{name: "bad level", mutate: func(c *config.Config) { c.Logging.Level = "loud" }, wantErr: config.ErrInvalidLogLevel},
		{name: "bad format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }, wantErr: config.ErrInvalidLogFormat},
		{name: "negative debounce", mutate: func(c *config.Config) { c.Watch.Debounce = -time.Second }, wantErr: config.ErrInvalidDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Workers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, runtime.NumCPU(), cfg.Workers())

	cfg.Jobs = 2
	assert.Equal(t, 2, cfg.Workers())
}

func TestConfig_LogLevel(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())

	cfg.Logging.Level = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())

	cfg.Logging.Level = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	configName = ".pyqualify"
	configType = "yaml"
	envPrefix  = "PYQUALIFY"

	envKeySeparator = "_"
)

//go:embed schema.json
var schemaJSON []byte

// Loaded is a validated configuration together with the file it came from.
type Loaded struct {
	Config
	// File is the config file used, empty when none was found.
	File string
}

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise .pyqualify.yaml is searched in the working directory and then in
// $HOME/.config/pyqualify. A missing config file is not an error.
func LoadConfig(configPath string) (*Loaded, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(filepath.Join(home, ".config", "pyqualify"))
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	file := viperCfg.ConfigFileUsed()
	if readErr == nil && file != "" {
		err := ValidateFile(file)
		if err != nil {
			return nil, err
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	if readErr != nil {
		file = ""
	}

	return &Loaded{Config: cfg, File: file}, nil
}

// ValidateFile checks a YAML config file against the embedded schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	return ValidateBytes(data)
}

// ValidateBytes checks YAML config content against the embedded schema.
// Empty content is valid.
func ValidateBytes(data []byte) error {
	var doc map[string]any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate config schema: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return data, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("module", DefaultModule)
	viperCfg.SetDefault("alias", DefaultAlias)
	viperCfg.SetDefault("match", DefaultMatch)
	viperCfg.SetDefault("blank_line_after_imports", DefaultBlankLineAfterImports)

	viperCfg.SetDefault("jobs", DefaultJobs)
	viperCfg.SetDefault("exclude", DefaultExclude)
	viperCfg.SetDefault("include_stubs", DefaultIncludeStubs)

	viperCfg.SetDefault("cache.enabled", DefaultCacheEnabled)
	viperCfg.SetDefault("cache.path", DefaultCachePath)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("watch.debounce", DefaultWatchDebounce)
}

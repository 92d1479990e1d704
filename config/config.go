// Package config loads the bridge's settings from an optional YAML file.
// TCKBRIDGE_* environment variables override the file; bound command-line
// flags override both.
package config

import (
	"bytes"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/tck-bridge/errors"
)

// EnvPrefix starts the name of every environment override. Nested keys
// join with "_", so log.level is TCKBRIDGE_LOG_LEVEL.
const EnvPrefix = "TCKBRIDGE"

// Config holds everything needed to run the bridge.
type Config struct {
	LibraryPath    string        `yaml:"library_path" json:"library_path" mapstructure:"library_path" validate:"required"`
	Listen         string        `yaml:"listen" json:"listen" mapstructure:"listen" validate:"required,hostname_port"`
	ScratchDir     string        `yaml:"scratch_dir" json:"scratch_dir" mapstructure:"scratch_dir"`
	ReleaseSymbol  string        `yaml:"release_symbol" json:"release_symbol" mapstructure:"release_symbol"`
	CatalogPath    string        `yaml:"catalog_path" json:"catalog_path" mapstructure:"catalog_path"`
	Trace          string        `yaml:"trace" json:"trace" mapstructure:"trace" validate:"oneof=none stdout"`
	Log            LogConfig     `yaml:"log" json:"log" mapstructure:"log"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gt=0"`
	MaxConcurrent  int           `yaml:"max_concurrent" json:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	AllowRawInvoke bool          `yaml:"allow_raw_invoke" json:"allow_raw_invoke" mapstructure:"allow_raw_invoke"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=auto json console"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		LibraryPath:   "libtchecker.so",
		Listen:        "127.0.0.1:8000",
		ReleaseSymbol: "free_string",
		Timeout:       30 * time.Second,
		Trace:         "none",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

var configValidate = validator.New()

// LoadOption adjusts how Load reads settings.
type LoadOption func(*viper.Viper) error

// WithFlag binds flag f to key. The flag wins over the file and the
// environment only when it was set on the command line. A nil flag is
// ignored, so commands that lack it can share one option list.
func WithFlag(key string, f *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if f == nil {
			return nil
		}
		return v.BindPFlag(key, f)
	}
}

// Load reads path (skipped when empty) over the defaults, applies
// environment overrides and bound flags, and validates the result.
func Load(path string, opts ...LoadOption) (Config, error) {
	v, err := newViper()
	if err != nil {
		return Default(), err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Default(), errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config "+path)
		}
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return Default(), errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "bind flag")
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newViper seeds a viper instance with Default() written out as YAML, so
// every key is known to the environment lookup.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "encode defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load defaults")
	}
	return v, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid config")
	}
	return nil
}

// Package config loads expindex settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	schemasassets "github.com/3leaps/expindex/internal/assets/schemas"
	"github.com/3leaps/expindex/pkg/discovery"
	"github.com/3leaps/expindex/pkg/index"
	"github.com/3leaps/expindex/pkg/metadata"
	"github.com/3leaps/expindex/pkg/publish"
	"github.com/3leaps/expindex/pkg/schema"
)

// EnvPrefix is prepended to environment variable names (EXPINDEX_OUTPUT).
const EnvPrefix = "EXPINDEX"

// ErrInvalidConfig indicates a setting failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration for one run.
type Config struct {
	WorkDir       string        `mapstructure:"workdir"`
	Schema        string        `mapstructure:"schema"`
	Pattern       string        `mapstructure:"pattern"`
	Output        string        `mapstructure:"output"`
	IncludeHidden bool          `mapstructure:"include_hidden"`
	Logging       LoggingConfig `mapstructure:"logging"`
	Publish       PublishConfig `mapstructure:"publish"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// PublishConfig holds the optional publish destination.
type PublishConfig struct {
	// Destination is an s3:// or file:// URI. Empty disables publishing.
	Destination    string        `mapstructure:"destination"`
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"`
	Profile        string        `mapstructure:"profile"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a destination is configured.
func (p PublishConfig) Enabled() bool {
	return strings.TrimSpace(p.Destination) != ""
}

// Options converts p to publish options.
func (p PublishConfig) Options() publish.Options {
	return publish.Options{
		Region:         p.Region,
		Endpoint:       p.Endpoint,
		Profile:        p.Profile,
		ForcePathStyle: p.ForcePathStyle,
		Timeout:        p.Timeout,
	}
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workdir", ".")
	v.SetDefault("schema", schema.DefaultPath)
	v.SetDefault("pattern", discovery.DefaultPattern)
	v.SetDefault("output", index.DefaultOutput)
	v.SetDefault("include_hidden", false)

	v.SetDefault("logging.level", "info")

	v.SetDefault("publish.destination", "")
	v.SetDefault("publish.region", "")
	v.SetDefault("publish.endpoint", "")
	v.SetDefault("publish.profile", "")
	v.SetDefault("publish.force_path_style", false)
	v.SetDefault("publish.timeout", publish.DefaultTimeout.String())
}

// Load reads configFile (if set) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		if err := ValidateFile(configFile); err != nil {
			return nil, err
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		trimStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if c.Schema == "" {
		return fmt.Errorf("%w: schema path is required", ErrInvalidConfig)
	}
	if c.Pattern == "" {
		return fmt.Errorf("%w: pattern is required", ErrInvalidConfig)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidConfig)
	}
	if c.Publish.Timeout < 0 {
		return fmt.Errorf("%w: publish timeout must not be negative", ErrInvalidConfig)
	}
	if c.Publish.Enabled() {
		if _, err := publish.ParseDestination(c.Publish.Destination); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// trimStringHook trims surrounding whitespace from string values.
func trimStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		return strings.TrimSpace(reflect.ValueOf(data).String()), nil
	}
}

// ValidateFile checks a YAML config file against the embedded config schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	doc, err := metadata.Parse(data, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if doc == nil {
		return nil
	}

	sch, err := schema.Parse(schemasassets.ConfigSchema, "config.schema.json")
	if err != nil {
		return err
	}
	validator, err := schema.Compile(sch)
	if err != nil {
		return err
	}
	violations, err := validator.Validate(doc)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}

	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strings.Join(msgs, "; "))
}

// Package config handles agent configuration loading from YAML files and
// environment variables.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "10s", "1m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("unsupported duration format: %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", value.Value)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Collection CollectionConfig `yaml:"collection"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// DefaultDimensions are added to every metric any collector publishes.
	DefaultDimensions map[string]string `yaml:"default_dimensions,omitempty"`

	// Collectors maps a canonical collector name ("zoneinfo",
	// "traceroute google") to its option overrides.
	Collectors map[string]map[string]interface{} `yaml:"collectors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// CollectionConfig holds settings shared by all collectors.
type CollectionConfig struct {
	// Interval applies to collectors that do not set their own.
	Interval Duration `yaml:"interval"`
}

// TelemetryConfig holds the self-instrumentation endpoint settings.
type TelemetryConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Collection: CollectionConfig{
			Interval: Duration{10 * time.Second},
		},
		Collectors: defaultCollectors(),
	}
}

func defaultCollectors() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"zoneinfo": {"path": "/proc/zoneinfo"},
		"cpu":      {},
		"memory":   {},
		"disk":     {},
		"network":  {},
		"uptime":   {},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence and override values from the byte slice.
// A collectors section in data replaces the default collector set.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if len(data) > 0 {
		cfg.Collectors = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config data")
		}
		if cfg.Collectors == nil {
			cfg.Collectors = defaultCollectors()
		}
	}

	// Environment variable overrides (highest precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Load reads configuration from a YAML file and merges with defaults.
// If path is empty or the file does not exist, only defaults and environment
// variables are used.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromBytes(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "reading config file")
		}
		return LoadFromBytes(nil)
	}

	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return cfg, nil
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	return os.WriteFile(path, data, 0640)
}

func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("METRICD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if listen := os.Getenv("METRICD_TELEMETRY_LISTEN"); listen != "" {
		cfg.Telemetry.Listen = listen
	}
}

// CollectorNames returns the configured collector names in sorted order.
func (c *Config) CollectorNames() []string {
	names := make([]string, 0, len(c.Collectors))
	for name := range c.Collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CollectorOptions returns the overrides for the named collector with the
// shared collection interval filled in when the collector sets none.
// The returned map is a copy.
func (c *Config) CollectorOptions(name string) map[string]interface{} {
	opts := make(map[string]interface{}, len(c.Collectors[name])+1)
	for k, v := range c.Collectors[name] {
		opts[k] = v
	}
	if _, ok := opts["interval"]; !ok && c.Collection.Interval.Duration > 0 {
		opts["interval"] = c.Collection.Interval.Duration.String()
	}
	return opts
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Collection.Interval.Duration <= 0 {
		return errors.Errorf("collection interval must be positive (got: %s)", c.Collection.Interval.Duration)
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return errors.Errorf("unknown log level %q", c.Logging.Level)
	}
	for name := range c.Collectors {
		if strings.TrimSpace(name) == "" {
			return errors.New("collector name must not be empty")
		}
	}
	for k := range c.DefaultDimensions {
		if strings.TrimSpace(k) == "" {
			return errors.New("default dimension name must not be empty")
		}
	}
	return nil
}

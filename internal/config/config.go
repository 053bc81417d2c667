package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// DefaultPipeline is the pass pipeline run when neither a config file nor
// the command line names one.
var DefaultPipeline = []string{"transform-ctrl-to-data-flow", "insert-data-mov"}

// Config is the compiler configuration read from a TOML file.
type Config struct {
	Passes        []string
	StrictEdges   bool
	MaxIterations int
	DiagFormat    string
	LogLevel      string
	Verify        bool
	Statistics    bool
}

// fileConfig mirrors Config with optional fields so that keys absent from
// the file keep their defaults.
type fileConfig struct {
	Passes        []string `toml:"passes"`
	StrictEdges   *bool    `toml:"strict_edges"`
	MaxIterations *int     `toml:"max_iterations"`
	DiagFormat    *string  `toml:"diag_format"`
	LogLevel      *string  `toml:"log_level"`
	Verify        *bool    `toml:"verify"`
	Statistics    *bool    `toml:"statistics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Passes:        append([]string(nil), DefaultPipeline...),
		MaxIterations: 10,
		DiagFormat:    "text",
		LogLevel:      "warn",
		Verify:        true,
	}
}

// Load parses the TOML file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	cfg := Default()
	if fc.Passes != nil {
		cfg.Passes = fc.Passes
	}
	if fc.StrictEdges != nil {
		cfg.StrictEdges = *fc.StrictEdges
	}
	if fc.MaxIterations != nil {
		cfg.MaxIterations = *fc.MaxIterations
	}
	if fc.DiagFormat != nil {
		cfg.DiagFormat = *fc.DiagFormat
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.Verify != nil {
		cfg.Verify = *fc.Verify
	}
	if fc.Statistics != nil {
		cfg.Statistics = *fc.Statistics
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed by the TOML types alone.
func (c *Config) Validate() error {
	if c.MaxIterations <= 0 {
		return errors.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	switch c.DiagFormat {
	case "text", "json":
	default:
		return errors.Errorf("diag_format must be text or json, got %q", c.DiagFormat)
	}
	for _, name := range c.Passes {
		if strings.TrimSpace(name) == "" {
			return errors.New("passes must not contain empty names")
		}
	}
	return nil
}

// Pipeline renders Passes in the comma-separated form accepted by
// passes.ParsePipeline.
func (c *Config) Pipeline() string {
	return strings.Join(c.Passes, ",")
}

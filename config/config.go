// Package config loads the oneshot configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/nczempin/httpc-oneshot/transport"
	"gopkg.in/yaml.v3"
)

// Config represents the oneshot configuration
type Config struct {
	Transport   string `yaml:"transport,omitempty"`
	UnixSocket  string `yaml:"unixSocket,omitempty"`
	DefaultPort int    `yaml:"defaultPort,omitempty"`
	Progress    *bool  `yaml:"progress,omitempty"`
	NoColor     *bool  `yaml:"noColor,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty"`
	ConnGraceMs int    `yaml:"connGraceMs,omitempty"` // milliseconds
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".oneshot.yaml",
	"oneshot.yaml",
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Transport:   transport.BackendTCP,
		DefaultPort: 80,
		LogLevel:    "info",
		Placeholder: "This is an error",
		ConnGraceMs: 100,
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetProgress returns the progress setting, defaulting to true
func (c *Config) GetProgress() bool {
	return getBool(c.Progress, true)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConnGrace is ConnGraceMs as a duration.
func (c *Config) ConnGrace() time.Duration {
	return time.Duration(c.ConnGraceMs) * time.Millisecond
}

// LevelOption maps LogLevel onto a go-kit level filter.
func (c *Config) LevelOption() level.Option {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return level.AllowDebug()
	case "warn", "warning":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "none":
		return level.AllowNone()
	default:
		return level.AllowInfo()
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	known := false
	for _, b := range transport.Backends {
		if c.Transport == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown transport %q (want one of %s)", c.Transport, strings.Join(transport.Backends, ", "))
	}
	if c.Transport == transport.BackendUnix && c.UnixSocket == "" {
		return fmt.Errorf("transport %q needs unixSocket", c.Transport)
	}
	if c.DefaultPort <= 0 || c.DefaultPort > 65535 {
		return fmt.Errorf("defaultPort %d out of range", c.DefaultPort)
	}
	if c.ConnGraceMs < 0 {
		return fmt.Errorf("connGraceMs cannot be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "none":
	default:
		return fmt.Errorf("unknown logLevel %q", c.LogLevel)
	}
	return nil
}

// Load loads configuration from path, or searches the working directory when
// path is empty. Missing files yield defaults.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFromFile(path)
	}
	return FindAndLoad(".")
}

// FindAndLoad searches dir for a config file.
func FindAndLoad(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		p := filepath.Join(dir, filename)
		if _, err := os.Stat(p); err == nil {
			return loadFromFile(p)
		}
	}
	return DefaultConfig(), nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

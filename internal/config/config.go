package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/raftbed/raftbed/internal/harness"
)

// BinaryPathEnv names the daemon binary when neither a flag nor the
// config file provides it.
const BinaryPathEnv = "RSQLD_PATH"

// fileConfig is the on-disk shape; durations are strings like "30s".
type fileConfig struct {
	Binary        string `yaml:"binary"`
	StartTimeout  string `yaml:"start_timeout"`
	LeaderTimeout string `yaml:"leader_timeout"`
	PollInterval  string `yaml:"poll_interval"`
	HTTPTimeout   string `yaml:"http_timeout"`
}

// Config is the resolved harness configuration.
type Config struct {
	Binary        string
	StartTimeout  time.Duration
	LeaderTimeout time.Duration
	PollInterval  time.Duration
	HTTPTimeout   time.Duration
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		StartTimeout:  30 * time.Second,
		LeaderTimeout: 30 * time.Second,
		PollInterval:  500 * time.Millisecond,
		HTTPTimeout:   5 * time.Second,
	}
}

// Load reads path when it exists and overlays it on the defaults. A
// missing file is not an error. The binary path falls back to the
// RSQLD_PATH environment variable when the file leaves it empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			if err := cfg.apply(&fc); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Binary == "" {
		cfg.Binary = os.Getenv(BinaryPathEnv)
	}
	return cfg, nil
}

func (c *Config) apply(fc *fileConfig) error {
	c.Binary = fc.Binary

	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"start_timeout", fc.StartTimeout, &c.StartTimeout},
		{"leader_timeout", fc.LeaderTimeout, &c.LeaderTimeout},
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"http_timeout", fc.HTTPTimeout, &c.HTTPTimeout},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that the configuration names a runnable daemon.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("no daemon binary configured: set binary in the config file, pass --binary, or export %s", BinaryPathEnv)
	}
	return nil
}

// Options converts the configuration into harness options.
func (c *Config) Options(log *zap.Logger) harness.Options {
	return harness.Options{
		Binary:        c.Binary,
		StartTimeout:  c.StartTimeout,
		LeaderTimeout: c.LeaderTimeout,
		PollInterval:  c.PollInterval,
		HTTPTimeout:   c.HTTPTimeout,
		Logger:        log,
	}
}

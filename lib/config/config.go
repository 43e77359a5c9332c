// Copyright 2026 The FontDepot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the FontDepot daemon.
type Config struct {
	// Paths configures directory and file locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures the SQLite catalog.
	Store StoreConfig `yaml:"store"`

	// Download configures the download engine.
	Download DownloadConfig `yaml:"download"`

	// Console configures the admin socket.
	Console ConsoleConfig `yaml:"console"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for FontDepot data.
	Root string `yaml:"root"`

	// Fonts is where downloaded fonts are installed.
	Fonts string `yaml:"fonts"`

	// Temp is the root for in-flight download files.
	Temp string `yaml:"temp"`
}

// StoreConfig configures the backing catalog.
type StoreConfig struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// PoolSize is the connection pool size. Default: 4.
	PoolSize int `yaml:"pool_size"`
}

// DownloadConfig configures the download engine. Durations are Go
// duration strings ("2s", "100ms").
type DownloadConfig struct {
	// Concurrency bounds parallel transfers per batch. 0 = unbounded.
	Concurrency int `yaml:"concurrency"`

	// RetirementGrace is how long a settled batch stays observable.
	// Default: 2s.
	RetirementGrace string `yaml:"retirement_grace"`

	// RenameAttempts is the install rename retry budget. Default: 3.
	RenameAttempts int `yaml:"rename_attempts"`

	// RenameBackoff is the base rename retry delay. Default: 100ms.
	RenameBackoff string `yaml:"rename_backoff"`

	// RequestsPerSecond rate-limits outgoing fetches. 0 = unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ConsoleConfig configures the admin socket.
type ConsoleConfig struct {
	// SocketPath is the Unix socket the console listens on.
	SocketPath string `yaml:"socket_path"`

	// PollInterval is how often status pollers are expected to come
	// back; advertised to clients in status responses. Default: 1s.
	PollInterval string `yaml:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "fontdepot")

	return &Config{
		Paths: PathsConfig{
			Root:  defaultRoot,
			Fonts: filepath.Join(defaultRoot, "fonts"),
			Temp:  filepath.Join(defaultRoot, "tmp"),
		},
		Store: StoreConfig{
			Database: filepath.Join(defaultRoot, "fonts.db"),
			PoolSize: 4,
		},
		Download: DownloadConfig{
			Concurrency:     8,
			RetirementGrace: "2s",
			RenameAttempts:  3,
			RenameBackoff:   "100ms",
		},
		Console: ConsoleConfig{
			SocketPath:   filepath.Join(defaultRoot, "fontdepot.sock"),
			PollInterval: "1s",
		},
	}
}

// Load loads configuration from the FONTDEPOT_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("FONTDEPOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("FONTDEPOT_CONFIG environment variable not set; " +
			"set it to the path of your fontdepot.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${HOME} in configured paths.
func (c *Config) expandVariables() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(s string) string {
		return strings.ReplaceAll(s, "${HOME}", homeDir)
	}
	c.Paths.Root = expand(c.Paths.Root)
	c.Paths.Fonts = expand(c.Paths.Fonts)
	c.Paths.Temp = expand(c.Paths.Temp)
	c.Store.Database = expand(c.Store.Database)
	c.Console.SocketPath = expand(c.Console.SocketPath)
}

// Validate checks the configuration for structural problems. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Fonts == "" {
		errs = append(errs, fmt.Errorf("paths.fonts is required"))
	}
	if c.Paths.Temp == "" {
		errs = append(errs, fmt.Errorf("paths.temp is required"))
	}
	if c.Store.Database == "" {
		errs = append(errs, fmt.Errorf("store.database is required"))
	}
	if c.Store.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must be positive"))
	}
	if c.Console.SocketPath == "" {
		errs = append(errs, fmt.Errorf("console.socket_path is required"))
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"download.retirement_grace", c.Download.RetirementGrace},
		{"download.rename_backoff", c.Download.RenameBackoff},
		{"console.poll_interval", c.Console.PollInterval},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Fonts,
		c.Paths.Temp,
		filepath.Dir(c.Store.Database),
		filepath.Dir(c.Console.SocketPath),
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// duration parses a duration string, falling back when empty.
func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Grace returns the parsed batch retirement grace.
func (d DownloadConfig) Grace() time.Duration {
	return duration(d.RetirementGrace, 2*time.Second)
}

// Backoff returns the parsed rename retry base delay.
func (d DownloadConfig) Backoff() time.Duration {
	return duration(d.RenameBackoff, 100*time.Millisecond)
}

// Interval returns the parsed status poll interval.
func (c ConsoleConfig) Interval() time.Duration {
	return duration(c.PollInterval, time.Second)
}

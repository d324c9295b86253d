// Package config loads and validates the sitemirage configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Input is the root of the site to read. Required.
	Input string `yaml:"input"`
	// Output is the root of the mirrored, mutated tree. Required.
	Output string `yaml:"output"`

	Mutation MutationConfig `yaml:"mutation"`
	Images   ImagesConfig   `yaml:"images"`

	// Seed makes runs reproducible. When nil a process-random seed is drawn
	// and logged.
	Seed *uint64 `yaml:"seed,omitempty"`

	// Runlog is the SQLite run-history database path. Empty disables history.
	Runlog string `yaml:"runlog,omitempty"`

	// Workers bounds pipeline parallelism. Zero means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty"`

	Daemon DaemonConfig `yaml:"daemon"`
	Maze   MazeConfig   `yaml:"maze"`
}

// MutationConfig tunes the text mutation policy.
type MutationConfig struct {
	// Rate is the per-token replacement probability, in (0,1].
	Rate float64 `yaml:"rate"`
	// Order is the Markov context width k.
	Order int `yaml:"order"`
	// MinWordLength excludes shorter tokens from mutation.
	MinWordLength int `yaml:"min_word_length"`
	// Exclude lists tokens (literal) or /regexp/ rules never mutated.
	Exclude []string `yaml:"exclude,omitempty"`
}

// ImagesConfig tunes the image scrambler.
type ImagesConfig struct {
	// Fraction of the inventory selected as replaceable, in [0,1].
	Fraction float64 `yaml:"fraction"`
}

// DaemonConfig tunes continuous mode.
type DaemonConfig struct {
	// QuietWindow is how long the input tree must stay unchanged before a
	// rebuild triggers.
	QuietWindow time.Duration `yaml:"quiet_window"`
	// MaxDelay caps how long change bursts can postpone a rebuild.
	MaxDelay time.Duration `yaml:"max_delay"`
	// RebuildEvery schedules periodic full rebuilds. Zero disables them.
	RebuildEvery time.Duration `yaml:"rebuild_every,omitempty"`
	// Listen is the status/metrics HTTP address.
	Listen string `yaml:"listen"`
}

// MazeConfig tunes the link-maze server.
type MazeConfig struct {
	Listen    string `yaml:"listen"`
	LinkPath  string `yaml:"link_path"`
	MinTokens int    `yaml:"min_tokens"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env if present; missing files are fine.
	_ = godotenv.Load()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s: %w", configPath, os.ErrNotExist)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Mutation.Rate == 0 {
		c.Mutation.Rate = 0.2
	}
	if c.Mutation.Order == 0 {
		c.Mutation.Order = 2
	}
	if c.Mutation.MinWordLength == 0 {
		c.Mutation.MinWordLength = 3
	}
	if c.Images.Fraction == 0 {
		c.Images.Fraction = 0.4
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Daemon.QuietWindow == 0 {
		c.Daemon.QuietWindow = 2 * time.Second
	}
	if c.Daemon.MaxDelay == 0 {
		c.Daemon.MaxDelay = 30 * time.Second
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":3006"
	}
	if c.Maze.Listen == "" {
		c.Maze.Listen = ":3005"
	}
	if c.Maze.LinkPath == "" {
		c.Maze.LinkPath = "/mirage"
	}
	if c.Maze.MinTokens == 0 {
		c.Maze.MinTokens = 250
	}
	if c.Maze.MaxTokens == 0 {
		c.Maze.MaxTokens = 12500
	}
}

// Validate checks value ranges before any processing begins. Configuration
// errors are the only errors that abort a run outright.
func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input root is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output root is required")
	}

	absIn, err := filepath.Abs(c.Input)
	if err != nil {
		return fmt.Errorf("invalid input root: %w", err)
	}
	absOut, err := filepath.Abs(c.Output)
	if err != nil {
		return fmt.Errorf("invalid output root: %w", err)
	}
	if absIn == absOut {
		return fmt.Errorf("output root must differ from input root")
	}
	if strings.HasPrefix(absOut, absIn+string(filepath.Separator)) {
		return fmt.Errorf("output root must not be nested inside input root")
	}

	if c.Mutation.Rate <= 0 || c.Mutation.Rate > 1 {
		return fmt.Errorf("mutation.rate must be in (0,1], got %v", c.Mutation.Rate)
	}
	if c.Mutation.Order < 1 || c.Mutation.Order > 8 {
		return fmt.Errorf("mutation.order must be in [1,8], got %d", c.Mutation.Order)
	}
	if c.Mutation.MinWordLength < 1 {
		return fmt.Errorf("mutation.min_word_length must be >= 1, got %d", c.Mutation.MinWordLength)
	}
	if c.Images.Fraction < 0 || c.Images.Fraction > 1 {
		return fmt.Errorf("images.fraction must be in [0,1], got %v", c.Images.Fraction)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Maze.MinTokens > c.Maze.MaxTokens {
		return fmt.Errorf("maze.min_tokens (%d) must not exceed maze.max_tokens (%d)",
			c.Maze.MinTokens, c.Maze.MaxTokens)
	}
	if c.Daemon.QuietWindow <= 0 || c.Daemon.MaxDelay <= 0 {
		return fmt.Errorf("daemon.quiet_window and daemon.max_delay must be positive")
	}
	if c.Daemon.MaxDelay < c.Daemon.QuietWindow {
		return fmt.Errorf("daemon.max_delay must be >= daemon.quiet_window")
	}
	return nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Input:  "./site",
		Output: "./out",
		Mutation: MutationConfig{
			Rate:          0.2,
			Order:         2,
			MinWordLength: 3,
			Exclude:       []string{"sitemirage", `/^v[0-9.]+$/`},
		},
		Images: ImagesConfig{Fraction: 0.4},
		Runlog: "./sitemirage.db",
	}
	example.ApplyDefaults()

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

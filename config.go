package cohook

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds scheduler settings, loadable from a YAML file.
type Config struct {
	// TimerCapacity is the maximum number of armed timers. Values
	// below MinTimerCapacity are raised to it.
	TimerCapacity int `yaml:"timer_capacity"`
	// MaxFDs is the size of the descriptor hook table.
	MaxFDs int `yaml:"max_fds"`
	// DefaultTimeout is the read and write timeout, in milliseconds,
	// of a newly tracked descriptor.
	DefaultTimeout int `yaml:"default_timeout_ms"`
	// PollQuantum caps a single readiness wait, in milliseconds. It
	// bounds how late a cancelled Run notices its context.
	PollQuantum int `yaml:"poll_quantum_ms"`
	// PollEvents is the number of readiness events fetched per wait.
	PollEvents int `yaml:"poll_events"`
	// Intercept turns the hooks on.
	Intercept bool   `yaml:"intercept"`
	LogLevel  string `yaml:"log_level"`
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		TimerCapacity:  MinTimerCapacity,
		MaxFDs:         DefaultMaxFDs,
		DefaultTimeout: DefaultTimeout,
		PollQuantum:    100,
		PollEvents:     256,
		Intercept:      true,
		LogLevel:       "info",
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown keys
// are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every setting is in range.
func (c Config) Validate() error {
	if c.TimerCapacity < 0 {
		return fmt.Errorf("timer_capacity must be >= 0, got %d", c.TimerCapacity)
	}
	if c.MaxFDs < 0 {
		return fmt.Errorf("max_fds must be >= 0, got %d", c.MaxFDs)
	}
	if c.DefaultTimeout < 0 {
		return fmt.Errorf("default_timeout_ms must be >= 0, got %d", c.DefaultTimeout)
	}
	if c.PollQuantum < 1 {
		return fmt.Errorf("poll_quantum_ms must be >= 1, got %d", c.PollQuantum)
	}
	if c.PollEvents < 1 {
		return fmt.Errorf("poll_events must be >= 1, got %d", c.PollEvents)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

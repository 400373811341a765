package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TAPSOSS/walrio/internal/engine"
	"github.com/TAPSOSS/walrio/internal/queue"
)

// Config represents the application configuration
type Config struct {
	// Playback settings applied to the daemon at startup
	Playback PlaybackConfig `yaml:"playback"`

	// Queue session settings
	Queue QueueConfig `yaml:"queue"`

	// Daemon settings
	Daemon DaemonConfig `yaml:"daemon"`
}

// PlaybackConfig represents playback settings
type PlaybackConfig struct {
	Volume   float64 `yaml:"volume"`
	LoopMode string  `yaml:"loop_mode"`
}

// QueueConfig represents queue session settings
type QueueConfig struct {
	RepeatMode  string `yaml:"repeat_mode"`
	Shuffle     bool   `yaml:"shuffle"`
	SkipMissing bool   `yaml:"skip_missing"`
}

// DaemonConfig represents daemon process settings
type DaemonConfig struct {
	LogFile string `yaml:"log_file,omitempty"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Playback: PlaybackConfig{
			Volume:   1.0,
			LoopMode: engine.LoopNone,
		},
		Queue: QueueConfig{
			RepeatMode:  string(queue.RepeatOff),
			Shuffle:     false,
			SkipMissing: true,
		},
	}
}

// DefaultConfigPath returns the first existing config file among the
// candidate locations, or the preferred location if none exists yet.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "walrio.yaml"
	}
	candidates := []string{
		filepath.Join(home, ".config", "walrio", "config.yaml"),
		filepath.Join(home, ".walrio.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return candidates[0]
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every setting is within its legal range.
func (c *Config) Validate() error {
	if c.Playback.Volume < 0.0 || c.Playback.Volume > 1.0 {
		return fmt.Errorf("playback.volume must be between 0.0 and 1.0")
	}
	if err := engine.ValidateLoopMode(c.Playback.LoopMode); err != nil {
		return fmt.Errorf("playback.loop_mode: %w", err)
	}
	if _, err := queue.ParseRepeatMode(c.Queue.RepeatMode); err != nil {
		return fmt.Errorf("queue.repeat_mode: %w", err)
	}
	return nil
}

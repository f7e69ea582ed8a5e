// Package config loads tool configuration from framefin.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is looked up from the input file's directory upward.
const ConfigFileName = "framefin.toml"

// Config is the full tool configuration
type Config struct {
	Frame FrameConfig `toml:"frame"`
	Log   LogConfig   `toml:"log"`
}

// FrameConfig configures the frame finalization pass
type FrameConfig struct {
	// WarnStackSize warns when a finalized frame exceeds this many
	// bytes. Zero disables the check.
	WarnStackSize uint64 `toml:"warn_stack_size"`
	// SegmentedStacks enables the segmented-stack prologue adjustment.
	SegmentedStacks bool `toml:"segmented_stacks"`
}

// LogConfig configures diagnostics
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is found
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "warn"},
	}
}

// Load reads a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Find searches from startPath upward for the configuration file and
// returns its full path, or "" when none exists.
func Find(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	var dir string
	if info.IsDir() {
		dir = startPath
	} else {
		dir = filepath.Dir(startPath)
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

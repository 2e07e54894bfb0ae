// Package config provides the JSON configuration of the pipeline simulator.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/rvpipe/timing/cache"
)

// DefaultMaxCycles is the cycle ceiling used when none is configured.
const DefaultMaxCycles = 100000

// Config holds simulator configuration parameters.
type Config struct {
	// MaxCycles is the absolute cycle ceiling of a run.
	MaxCycles uint64 `json:"max_cycles"`

	// Trace enables collection of per-stage trace lines.
	Trace bool `json:"trace"`

	// DCache configures the optional data-cache statistics model.
	DCache DCacheConfig `json:"dcache"`
}

// DCacheConfig enables and shapes the data-cache statistics model.
type DCacheConfig struct {
	Enabled bool `json:"enabled"`
	cache.Config
}

// DefaultConfig returns the default simulator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxCycles: DefaultMaxCycles,
		Trace:     true,
		DCache: DCacheConfig{
			Enabled: false,
			Config:  cache.DefaultConfig(),
		},
	}
}

// LoadConfig loads a configuration from a JSON file. Fields absent from the
// file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration values are sensible.
func (c *Config) Validate() error {
	if c.MaxCycles == 0 {
		return fmt.Errorf("max_cycles must be > 0")
	}
	if c.DCache.Enabled {
		if err := c.DCache.Validate(); err != nil {
			return fmt.Errorf("dcache: %w", err)
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

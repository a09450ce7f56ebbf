// Package config holds the simulator's run settings and their JSON form.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// SimConfig holds the settings a simulation run starts with.
type SimConfig struct {
	// StepLimit is the number of steps one continue runs before the
	// automatic breakpoint fires. 0 disables the limit. Default: 1000.
	StepLimit uint64 `json:"step_limit"`

	// StepDelayMs pauses between steps when running interactively, so
	// execution can be followed. Default: 0.
	StepDelayMs uint64 `json:"step_delay_ms"`

	// Breakpoints are instruction addresses where continue pauses. Each
	// must be word aligned.
	Breakpoints []uint32 `json:"breakpoints"`

	// LogLevel is a logrus level name. Default: "info".
	LogLevel string `json:"log_level"`

	// EntryPoint is the initial pc. Default: 0.
	EntryPoint uint32 `json:"entry_point"`

	// Trace logs every executed instruction at debug level.
	Trace bool `json:"trace"`
}

// DefaultSimConfig returns a SimConfig with default values.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		StepLimit: 1000,
		LogLevel:  "info",
	}
}

// LoadConfig loads a SimConfig from a JSON file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultSimConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig writes a SimConfig to a JSON file.
func (c *SimConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the entry point, the breakpoints and the log level.
func (c *SimConfig) Validate() error {
	if c.EntryPoint%4 != 0 {
		return fmt.Errorf("entry_point 0x%x must be word aligned", c.EntryPoint)
	}
	for _, bp := range c.Breakpoints {
		if bp%4 != 0 {
			return fmt.Errorf("breakpoint 0x%x must be word aligned", bp)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c *SimConfig) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Clone returns a deep copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	clone := *c
	if c.Breakpoints != nil {
		clone.Breakpoints = append([]uint32(nil), c.Breakpoints...)
	}
	return &clone
}

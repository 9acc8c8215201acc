// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Flood sub-modes.
const (
	FloodModeConnection = "connection"
	FloodModePublish    = "publish"
)

// Config holds all configuration for a simulation run. It is built once at
// startup and read-only afterwards, so it is shared across actors without
// locking.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Simulation SimulationConfig `yaml:"simulation"`
	Bruteforce BruteforceConfig `yaml:"bruteforce"`
	DDoS       DDoSConfig       `yaml:"ddos"`
	Log        LogConfig        `yaml:"log"`
	Status     StatusConfig     `yaml:"status"`
}

// BrokerConfig identifies the target broker endpoint.
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SimulationConfig holds the overall run parameters.
type SimulationConfig struct {
	Duration time.Duration `yaml:"duration"`
	Devices  int           `yaml:"devices"`
}

// BruteforceConfig holds the credential-guessing attack parameters.
type BruteforceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Rate     int           `yaml:"rate"` // attempts per second
	Duration time.Duration `yaml:"duration"`
	Username string        `yaml:"username"`
}

// DDoSConfig holds the volumetric-flood attack parameters.
type DDoSConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Mode     string        `yaml:"mode"` // "connection" or "publish"
	Rate     int           `yaml:"rate"` // operations per second
	Duration time.Duration `yaml:"duration"`
}

// LogConfig holds logging configuration. File, when set, receives the same
// stream as stdout as an append-only event log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// StatusConfig holds the optional HTTP status/metrics endpoint settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host: "localhost",
			Port: 1883,
		},
		Simulation: SimulationConfig{
			Duration: 300 * time.Second,
			Devices:  5,
		},
		Bruteforce: BruteforceConfig{
			Enabled:  false,
			Rate:     10,
			Duration: 60 * time.Second,
			Username: "admin",
		},
		DDoS: DDoSConfig{
			Enabled:  false,
			Mode:     FloodModeConnection,
			Rate:     50,
			Duration: 60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "logs/iotsim.log",
		},
		Status: StatusConfig{
			Enabled: false,
			Addr:    ":8080",
		},
	}
}

// Load reads configuration from a YAML file, overlaying the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker host must not be empty")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker port %d out of range", c.Broker.Port)
	}
	if c.Simulation.Duration <= 0 {
		return fmt.Errorf("simulation duration must be positive, got %v", c.Simulation.Duration)
	}
	if c.Simulation.Devices < 0 {
		return fmt.Errorf("device count must not be negative, got %d", c.Simulation.Devices)
	}
	if c.Bruteforce.Enabled {
		if c.Bruteforce.Rate < 1 {
			return fmt.Errorf("bruteforce rate must be at least 1, got %d", c.Bruteforce.Rate)
		}
		if c.Bruteforce.Duration <= 0 {
			return fmt.Errorf("bruteforce duration must be positive, got %v", c.Bruteforce.Duration)
		}
		if c.Bruteforce.Username == "" {
			return fmt.Errorf("bruteforce username must not be empty")
		}
	}
	if c.DDoS.Enabled {
		if c.DDoS.Mode != FloodModeConnection && c.DDoS.Mode != FloodModePublish {
			return fmt.Errorf("unknown ddos mode %q", c.DDoS.Mode)
		}
		if c.DDoS.Rate < 1 {
			return fmt.Errorf("ddos rate must be at least 1, got %d", c.DDoS.Rate)
		}
		if c.DDoS.Duration <= 0 {
			return fmt.Errorf("ddos duration must be positive, got %v", c.DDoS.Duration)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Status.Enabled && c.Status.Addr == "" {
		return fmt.Errorf("status addr must not be empty when status server is enabled")
	}
	return nil
}

// Package daemon manages the FleetDeck daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/fleetdeck/fleetdeck/internal/infra/logger"
)

// Config holds all daemon configuration.
type Config struct {
	Node    NodeConfig    `toml:"node"`
	API     APIConfig     `toml:"api"`
	History HistoryConfig `toml:"history"`
	Logcat  LogcatConfig  `toml:"logcat"`
	Logging logger.Config `toml:"logging"`
}

// NodeConfig identifies this orchestrator instance.
type NodeConfig struct {
	ID string `toml:"id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// HistoryConfig controls the bounded task history and its persistence.
type HistoryConfig struct {
	MaxItems          int `toml:"max_items"`
	PersistDebounceMS int `toml:"persist_debounce_ms"`
}

// LogcatConfig controls the line coalescing pipeline.
type LogcatConfig struct {
	FlushIntervalMS int `toml:"flush_interval_ms"`
	MaxVisibleLines int `toml:"max_visible_lines"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    7643,
			Metrics: true,
		},
		History: HistoryConfig{
			MaxItems:          50,
			PersistDebounceMS: 1200,
		},
		Logcat: LogcatConfig{
			FlushIntervalMS: 120,
			MaxVisibleLines: 2000,
		},
		Logging: logger.Config{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// LoadConfig reads config from ~/.fleetdeck/config.toml, falling back to
// defaults when the file does not exist.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(fleetdeckHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.fleetdeck/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(fleetdeckHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// fleetdeckHome returns the FleetDeck data directory.
func fleetdeckHome() string {
	if env := os.Getenv("FLEETDECK_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fleetdeck")
}

// Home is exported for use by other packages.
func Home() string {
	return fleetdeckHome()
}

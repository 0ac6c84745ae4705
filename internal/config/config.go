/**
 * CONTEXT:   Miner configuration management for the pattern discovery pipeline
 * INPUT:     Configuration files (YAML) and caller overrides
 * OUTPUT:    Validated MinerConfig with all operational parameters
 * BUSINESS:  Centralized configuration for recorder access, mining thresholds and export
 * CHANGE:    Initial configuration implementation with validation and defaults
 * RISK:      Low - configuration management with comprehensive validation and defaults
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RecorderConfig describes how to reach the read-only recorder database.
type RecorderConfig struct {
	SQLitePath     string        `yaml:"sqlite_path"`
	MySQLDSN       string        `yaml:"mysql_dsn"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	MaxConnections int           `yaml:"max_connections"`
}

// StoreConfig describes the miner's own pattern database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MiningConfig holds the mining settings read from the config file.
// MinSupport is passed to the association miner. MinConfidence is
// range-checked by Validate but not read by rule generation, which applies
// a fixed 0.75 confidence floor; MiningEnabled is not read by any command.
type MiningConfig struct {
	MinSupport     float64  `yaml:"min_support"`
	MinConfidence  float64  `yaml:"min_confidence"`
	Days           int      `yaml:"days"`
	Incremental    bool     `yaml:"incremental"`
	MiningEnabled  bool     `yaml:"mining_enabled"`
	CustomIncludes []string `yaml:"custom_includes"`
	CustomExcludes []string `yaml:"custom_excludes"`
	SafetyEntities []string `yaml:"safety_entities"`
}

// ExportConfig controls where run artifacts land.
type ExportConfig struct {
	Dir string `yaml:"export_dir"`
}

// LoggingConfig mirrors the teacher's logging block, trimmed to what this
// batch pipeline actually uses (no rotation: runs are short-lived processes).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MinerConfig is the top-level configuration object for a mining run.
type MinerConfig struct {
	Recorder RecorderConfig `yaml:"recorder"`
	Store    StoreConfig    `yaml:"store"`
	Mining   MiningConfig   `yaml:"mining"`
	Export   ExportConfig   `yaml:"export"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NewDefaultConfig returns the documented defaults from spec.md §6.
func NewDefaultConfig() *MinerConfig {
	return &MinerConfig{
		Recorder: RecorderConfig{
			SQLitePath:     "/config/home-assistant_v2.db",
			QueryTimeout:   30 * time.Second,
			ChunkSize:      50,
			MaxConnections: 5, // 2 base + 3 overflow, per spec.md §5
		},
		Store: StoreConfig{
			Path: "/config/ha_autopilot/patterns.db",
		},
		Mining: MiningConfig{
			MinSupport:    0.10,
			MinConfidence: 0.75,
			Days:          30,
			Incremental:   false,
			MiningEnabled: true,
		},
		Export: ExportConfig{
			Dir: "/config/ha_autopilot/exports",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file over the defaults. A missing file is
// not an error -- the defaults apply, matching the teacher's LoadDaemonConfig
// fallback behavior.
func Load(path string) (*MinerConfig, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internally consistent, operable
// values before a run starts.
func (c *MinerConfig) Validate() error {
	if c.Recorder.SQLitePath == "" && c.Recorder.MySQLDSN == "" {
		return fmt.Errorf("recorder requires either sqlite_path or mysql_dsn")
	}

	if c.Recorder.ChunkSize <= 0 {
		return fmt.Errorf("recorder chunk_size must be positive, got %d", c.Recorder.ChunkSize)
	}

	if c.Recorder.QueryTimeout <= 0 {
		return fmt.Errorf("recorder query_timeout must be positive, got %v", c.Recorder.QueryTimeout)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}

	if dir := filepath.Dir(c.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store directory %s: %w", dir, err)
		}
	}

	if c.Mining.MinSupport <= 0 || c.Mining.MinSupport > 1 {
		return fmt.Errorf("mining min_support must be in (0,1], got %v", c.Mining.MinSupport)
	}

	if c.Mining.MinConfidence <= 0 || c.Mining.MinConfidence > 1 {
		return fmt.Errorf("mining min_confidence must be in (0,1], got %v", c.Mining.MinConfidence)
	}

	if c.Mining.Days <= 0 {
		return fmt.Errorf("mining days must be positive, got %d", c.Mining.Days)
	}

	if c.Export.Dir == "" {
		return fmt.Errorf("export dir cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %s, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// Save persists the configuration as YAML, mirroring the teacher's
// SaveToFile so operators can snapshot a tuned configuration.
func (c *MinerConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}

	return nil
}

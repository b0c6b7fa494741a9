// Package config holds the yaml-backed configuration for a measurement
// session. Everything has a working default; a config file is optional and
// command-line flags override whatever it says.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete session configuration.
type Config struct {
	Bridge   BridgeConfig   `yaml:"bridge"`
	Sampling SamplingConfig `yaml:"sampling"`
	Output   OutputConfig   `yaml:"output"`
	Recorder RecorderConfig `yaml:"recorder"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Publish  PublishConfig  `yaml:"publish"`
	UI       UIConfig       `yaml:"ui"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BridgeConfig locates the usb2snes bridge server.
type BridgeConfig struct {
	Address            string `yaml:"address"`
	PreferredDevice    string `yaml:"preferred_device"`
	ReadTimeoutMS      int    `yaml:"read_timeout_ms"`
	HandshakeTimeoutMS int    `yaml:"handshake_timeout_ms"`
}

// SamplingConfig tunes the stabilization loop.
type SamplingConfig struct {
	CadenceMS     int `yaml:"cadence_ms"`
	BudgetSeconds int `yaml:"budget_seconds"`
}

// OutputConfig controls the CSV log.
type OutputConfig struct {
	CSVPath         string `yaml:"csv_path"` // empty: timestamp-derived name
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// RecorderConfig controls the optional SQLite mirror.
type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
	Limit   int    `yaml:"limit"` // max rows per session; 0 means unlimited
}

// ArchiveConfig controls the optional raw snapshot archive.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	MaxSnapshots int    `yaml:"max_snapshots"`
}

// PublishConfig controls the optional MQTT publisher.
type PublishConfig struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker"`
	Port    int    `yaml:"port"`
	Topic   string `yaml:"topic"`
}

// UIConfig controls the live terminal dashboard.
type UIConfig struct {
	Dashboard bool `yaml:"dashboard"`
}

// LoggingConfig controls the session application log (not the CSV output).
type LoggingConfig struct {
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Address:            "ws://localhost:8080",
			ReadTimeoutMS:      5000,
			HandshakeTimeoutMS: 10000,
		},
		Sampling: SamplingConfig{
			CadenceMS:     250,
			BudgetSeconds: 60,
		},
		Output: OutputConfig{
			IntervalSeconds: 5,
		},
		Recorder: RecorderConfig{
			DBPath: "smpspeed.db",
		},
		Archive: ArchiveConfig{
			Dir:          "snapshot-archive",
			MaxSnapshots: 100000,
		},
		Publish: PublishConfig{
			Port:  1883,
			Topic: "smpspeed/records",
		},
	}
}

// Load reads a yaml config file over the defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the session cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bridge.Address) == "" {
		return fmt.Errorf("bridge address is empty")
	}
	if c.Output.IntervalSeconds <= 0 {
		return fmt.Errorf("output interval must be positive, got %d", c.Output.IntervalSeconds)
	}
	if c.Sampling.CadenceMS <= 0 {
		return fmt.Errorf("sampling cadence must be positive, got %d", c.Sampling.CadenceMS)
	}
	if c.Budget() <= c.Cadence() {
		return fmt.Errorf("sampling budget (%s) must exceed the cadence (%s)", c.Budget(), c.Cadence())
	}
	if c.Publish.Enabled && strings.TrimSpace(c.Publish.Broker) == "" {
		return fmt.Errorf("publish enabled but no broker configured")
	}
	if c.Recorder.Enabled && strings.TrimSpace(c.Recorder.DBPath) == "" {
		return fmt.Errorf("recorder enabled but no db path configured")
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Dir) == "" {
		return fmt.Errorf("archive enabled but no directory configured")
	}
	return nil
}

// Cadence returns the sampling cadence as a duration.
func (c *Config) Cadence() time.Duration {
	return time.Duration(c.Sampling.CadenceMS) * time.Millisecond
}

// Budget returns the stabilization budget as a duration.
func (c *Config) Budget() time.Duration {
	return time.Duration(c.Sampling.BudgetSeconds) * time.Second
}

// Interval returns the logging interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Output.IntervalSeconds) * time.Second
}

// ReadTimeout returns the per-read transport timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Bridge.ReadTimeoutMS) * time.Millisecond
}

// HandshakeTimeout returns the WebSocket dial timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Bridge.HandshakeTimeoutMS) * time.Millisecond
}

// Print displays the effective configuration.
func (c *Config) Print() {
	fmt.Printf("Bridge: %s", c.Bridge.Address)
	if c.Bridge.PreferredDevice != "" {
		fmt.Printf(" (device: %s)", c.Bridge.PreferredDevice)
	}
	fmt.Println()
	fmt.Printf("Sampling: every %s, budget %s\n", c.Cadence(), c.Budget())
	fmt.Printf("Logging: every %s\n", c.Interval())
	if c.Recorder.Enabled {
		fmt.Printf("Recorder: %s\n", c.Recorder.DBPath)
	}
	if c.Archive.Enabled {
		fmt.Printf("Archive: %s\n", c.Archive.Dir)
	}
	if c.Publish.Enabled {
		fmt.Printf("Publish: %s:%d (topic: %s)\n", c.Publish.Broker, c.Publish.Port, c.Publish.Topic)
	}
}

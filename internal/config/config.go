// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Interval bounds accepted for the sweep interval, in seconds.
const (
	MinIntervalSeconds = 10
	MaxIntervalSeconds = 300
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Include    IncludeConfig    `yaml:"include"`
}

type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // boltdb, json or postgres
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Prober      string        `yaml:"prober"`
	Autostart   bool          `yaml:"autostart"`
	EventBuffer int           `yaml:"event_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DeviceConfig seeds the registry when the store holds no devices yet.
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

// PartialConfig is the shape of an include file. Only devices and
// overriding sections are merged.
type PartialConfig struct {
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
	Logging    *LoggingConfig    `yaml:"logging,omitempty"`
	Devices    []DeviceConfig    `yaml:"devices,omitempty"`
}

func Load(filename string) (*Config, error) {
	// Load the main config file
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	// Process includes if enabled
	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	config := &Config{
		Server:     ServerConfig{Enabled: true},
		Prometheus: PrometheusConfig{Enabled: true},
		Monitoring: MonitoringConfig{Autostart: true},
	}
	setDefaults(config)
	return config
}

func loadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory

	// Make include directory relative to main config file if not absolute
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}

	// Also check for .yml files if pattern is default
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}

	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		if err := loadAndMergeInclude(config, match); err != nil {
			return fmt.Errorf("failed to load include file %s: %w", match, err)
		}
	}

	return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read include file: %w", err)
	}

	var partial PartialConfig
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("failed to parse include file YAML: %w", err)
	}

	mergePartialConfig(config, &partial)
	return nil
}

func mergePartialConfig(config *Config, partial *PartialConfig) {
	// Devices append, keeping file order
	if len(partial.Devices) > 0 {
		config.Devices = append(config.Devices, partial.Devices...)
	}

	if partial.Monitoring != nil {
		mergeMonitoringConfig(&config.Monitoring, partial.Monitoring)
	}

	if partial.Logging != nil {
		mergeLoggingConfig(&config.Logging, partial.Logging)
	}
}

func mergeMonitoringConfig(main *MonitoringConfig, partial *MonitoringConfig) {
	if partial.Interval != 0 {
		main.Interval = partial.Interval
	}
	if partial.Timeout != 0 {
		main.Timeout = partial.Timeout
	}
	if partial.Prober != "" {
		main.Prober = partial.Prober
	}
	if partial.EventBuffer != 0 {
		main.EventBuffer = partial.EventBuffer
	}
}

func mergeLoggingConfig(main *LoggingConfig, partial *LoggingConfig) {
	if partial.Level != "" {
		main.Level = partial.Level
	}
	if partial.Format != "" {
		main.Format = partial.Format
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "boltdb"
	}
	if cfg.Database.Path == "" {
		switch cfg.Database.Type {
		case "json":
			cfg.Database.Path = "devices.json"
		default:
			cfg.Database.Path = "./data/pingmon.db"
		}
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Monitoring.Interval == 0 {
		cfg.Monitoring.Interval = 30 * time.Second
	}
	if cfg.Monitoring.Timeout == 0 {
		cfg.Monitoring.Timeout = 5 * time.Second
	}
	if cfg.Monitoring.Prober == "" {
		cfg.Monitoring.Prober = "exec"
	}
	if cfg.Monitoring.EventBuffer == 0 {
		cfg.Monitoring.EventBuffer = 256
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Type {
	case "boltdb", "json":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path cannot be empty")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.type: %s", cfg.Database.Type)
	}

	interval := cfg.Monitoring.Interval
	if interval%time.Second != 0 {
		return fmt.Errorf("monitoring.interval must be a whole number of seconds")
	}
	if secs := int(interval / time.Second); secs < MinIntervalSeconds || secs > MaxIntervalSeconds {
		return fmt.Errorf("monitoring.interval must be between %ds and %ds", MinIntervalSeconds, MaxIntervalSeconds)
	}
	if cfg.Monitoring.Timeout <= 0 {
		return fmt.Errorf("monitoring.timeout must be positive")
	}
	if cfg.Monitoring.Timeout >= interval {
		return fmt.Errorf("monitoring.timeout must be smaller than monitoring.interval")
	}
	switch cfg.Monitoring.Prober {
	case "exec", "icmp", "icmp-privileged":
	default:
		return fmt.Errorf("unknown monitoring.prober: %s", cfg.Monitoring.Prober)
	}
	if cfg.Monitoring.EventBuffer < 1 {
		return fmt.Errorf("monitoring.event_buffer must be at least 1")
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if cfg.Include.Pattern != "" && !isValidGlobPattern(cfg.Include.Pattern) {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	for i, device := range cfg.Devices {
		if strings.TrimSpace(device.Name) == "" {
			return fmt.Errorf("devices[%d]: name cannot be empty", i)
		}
		if device.Address == "" {
			return fmt.Errorf("devices[%d] (%s): address cannot be empty", i, device.Name)
		}
	}

	return nil
}

// isValidGlobPattern checks if a string is a valid glob pattern
func isValidGlobPattern(pattern string) bool {
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
		return false
	}
	_, err := filepath.Match(pattern, "test.yaml")
	return err == nil
}

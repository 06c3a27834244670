// Package config provides configuration management for the distributed
// octree construction pipeline.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for a construction run.
type Config struct {
	Tree      TreeConfig      `mapstructure:"tree"`
	Hyksort   HyksortConfig   `mapstructure:"hyksort"`
	Database  DatabaseConfig  `mapstructure:"database"`
	COS       COSConfig       `mapstructure:"cos"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TreeConfig holds the construction parameters every rank must agree
// on for a given run.
type TreeConfig struct {
	NCRIT    int  `mapstructure:"ncrit"`
	Balanced bool `mapstructure:"balanced"`
	// Debug enables the pre-construction parameter-consistency
	// all-reduce on every rank.
	Debug bool `mapstructure:"debug"`
}

// HyksortConfig holds the distributed sample-sort fan-out.
type HyksortConfig struct {
	K int `mapstructure:"k"`
}

// DatabaseConfig holds connection configuration for the optional
// persistence adapter (pkg/storage).
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql, or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// COSConfig holds connection configuration for the optional object
// storage snapshot writer (pkg/storage.SnapshotStore), which uploads
// serialized tree snapshots to a Tencent COS bucket.
type COSConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g. "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // "https" or "http"
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// TelemetryConfig mirrors the subset of pkg/telemetry.Config that is
// reasonable to set via a config file rather than environment
// variables (telemetry.LoadFromEnv takes precedence when set).
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
}

// Load reads configuration from the specified file path, falling back
// to defaults (and environment variable overrides) if no file is
// found at that path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/distoctree")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("config file not found, using defaults")
		} else if os.IsNotExist(err) {
			fmt.Printf("config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from in-memory content of the
// given type (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values, matching the
// construction parameters named in the system overview.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tree.ncrit", 150)
	v.SetDefault("tree.balanced", false)
	v.SetDefault("tree.debug", false)

	v.SetDefault("hyksort.k", 2)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("cos.enabled", false)
	v.SetDefault("cos.domain", "myqcloud.com")
	v.SetDefault("cos.scheme", "https")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "distoctree")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Tree.NCRIT <= 0 {
		return fmt.Errorf("tree.ncrit must be positive")
	}
	if c.Hyksort.K < 2 || c.Hyksort.K&(c.Hyksort.K-1) != 0 {
		return fmt.Errorf("hyksort.k must be a power of two >= 2")
	}
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	return nil
}

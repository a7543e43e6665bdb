package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Tracing TracingConfig `yaml:"tracing"`
	Logging LoggingConfig `yaml:"logging"`
	Replay  ReplayConfig  `yaml:"replay"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	Host string `yaml:"host"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type  string      `yaml:"type" validate:"oneof=memory file redis"`
	Path  string      `yaml:"path"` // Path for file storage
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the connection settings for redis storage
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // Key namespace, e.g. "goreplay"
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	MaxTraces int           `yaml:"maxTraces" validate:"min=0"`
	Retention time.Duration `yaml:"retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format" validate:"omitempty,oneof=json text"`
	File       string `yaml:"file"` // Optional rotating log file
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// ReplayConfig controls how request dimensions are read from live traffic
type ReplayConfig struct {
	VersionHeader      string `yaml:"versionHeader"`
	PlatformHeader     string `yaml:"platformHeader"`
	LanguageHeader     string `yaml:"languageHeader"`
	EnvironmentHeader  string `yaml:"environmentHeader"`
	DefaultEnvironment string `yaml:"defaultEnvironment"` // Used when the request carries none
	MaxBodyBytes       int64  `yaml:"maxBodyBytes"`
}

// DefaultDataPath returns ./data resolved against the working directory
func DefaultDataPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "data")
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Type: "file",
			Path: DefaultDataPath(),
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "goreplay",
			},
		},
		Tracing: TracingConfig{
			MaxTraces: 1000,
			Retention: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Replay: ReplayConfig{
			VersionHeader:     "X-App-Version",
			PlatformHeader:    "X-Platform",
			LanguageHeader:    "Accept-Language",
			EnvironmentHeader: "X-Environment",
			MaxBodyBytes:      1 << 20,
		},
	}
}

var validate = validator.New()

// Validate checks the configuration for unusable values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

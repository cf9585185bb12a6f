package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Databases         Databases         `yaml:"databases"`
	BenchmarkSettings BenchmarkSettings `yaml:"benchmark_settings"`
	// CapabilitiesFile overrides the built-in backend declarations.
	CapabilitiesFile string `yaml:"capabilities_file"`
}

type Databases struct {
	Postgres string `yaml:"postgres"`
	MySQL    string `yaml:"mysql"`
	Mongo    string `yaml:"mongo"`
	SQLite   string `yaml:"sqlite"`
}

type BenchmarkSettings struct {
	DefaultDuration      string `yaml:"default_duration"`
	DefaultConcurrency   int    `yaml:"default_concurrency"`
	Timeout              string `yaml:"timeout"`
	MemorySampleInterval string `yaml:"memory_sample_interval"`
	Scale                string `yaml:"scale"`
}

// Default is used when no config file exists.
func Default() *Config {
	return &Config{
		Databases: Databases{
			SQLite: "benchmark.db",
		},
		BenchmarkSettings: BenchmarkSettings{
			DefaultDuration:    "10s",
			DefaultConcurrency: 10,
			Timeout:            "5m",
			Scale:              "small",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := Default()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// DSN returns the connection string configured for db.
func (c *Config) DSN(db string) (string, error) {
	var dsn string
	switch db {
	case "postgres":
		dsn = c.Databases.Postgres
	case "mysql":
		dsn = c.Databases.MySQL
	case "mongo":
		dsn = c.Databases.Mongo
	case "sqlite":
		dsn = c.Databases.SQLite
	default:
		return "", fmt.Errorf("unsupported database type: %s", db)
	}
	if dsn == "" {
		return "", fmt.Errorf("no DSN configured for %s", db)
	}
	return dsn, nil
}

func (c *Config) Validate() error {
	s := c.BenchmarkSettings
	for name, v := range map[string]string{
		"default_duration":       s.DefaultDuration,
		"timeout":                s.Timeout,
		"memory_sample_interval": s.MemorySampleInterval,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("benchmark_settings.%s: %w", name, err)
		}
	}
	if s.DefaultConcurrency < 0 {
		return fmt.Errorf("benchmark_settings.default_concurrency must not be negative")
	}
	return nil
}

func (s BenchmarkSettings) Duration() time.Duration {
	d, _ := parseDuration(s.DefaultDuration)
	return d
}

func (s BenchmarkSettings) TimeoutDuration() time.Duration {
	d, _ := parseDuration(s.Timeout)
	return d
}

func (s BenchmarkSettings) SampleInterval() time.Duration {
	d, _ := parseDuration(s.MemorySampleInterval)
	return d
}

// parseDuration treats an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

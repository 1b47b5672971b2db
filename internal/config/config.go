package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// History sources
const (
	HistorySourceFiles    = "files"
	HistorySourceDatabase = "database"
)

// Config application configuration structure
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	History  HistoryConfig  `yaml:"history"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// RegistryConfig claim registry (SyrupDrip contract) configuration
type RegistryConfig struct {
	RPCURL      string `yaml:"rpcUrl"`      // JSON-RPC endpoint
	SyrupDrip   string `yaml:"syrupDrip"`   // SyrupDrip contract address
	Timeout     int    `yaml:"timeout"`     // per call timeout (seconds)
	Concurrency int    `yaml:"concurrency"` // parallel isClaimed lookups
}

// HistoryConfig cross-run uniqueness checks against previous reports
type HistoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Source         string `yaml:"source"`         // files or database
	Dir            string `yaml:"dir"`            // report directory for the files source, defaults to the input's directory
	CheckIDs       bool   `yaml:"checkIds"`       // reject ids present in a previous report
	CheckAddresses bool   `yaml:"checkAddresses"` // reject addresses present in a previous report
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig report event publishing configuration
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Timeout int    `yaml:"timeout"` // seconds
}

// MetricsConfig metrics export configuration
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node exporter textfile target for batch runs
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file sets a value
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			Timeout:     30,
			Concurrency: 1,
		},
		History: HistoryConfig{
			Source:   HistorySourceFiles,
			CheckIDs: true,
		},
		NATS: NATSConfig{
			Subject: "allocation.report.generated",
			Timeout: 10,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig Load configuration file
//
// With an empty path config.local.yaml, then config.yaml, are tried; if
// neither exists the defaults plus environment are used. An explicit path
// must exist.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath == "" {
		for _, candidate := range []string{"config.local.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideFromEnv(config)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// overrideFromEnv Overrideconfiguration
func overrideFromEnv(config *Config) {
	// Registry configuration
	if rpcURL := os.Getenv("ETH_RPC_URL"); rpcURL != "" {
		config.Registry.RPCURL = rpcURL
	}
	if syrupDrip := os.Getenv("SYRUP_DRIP"); syrupDrip != "" {
		config.Registry.SyrupDrip = syrupDrip
	}
	if timeout := os.Getenv("REGISTRY_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			config.Registry.Timeout = t
		}
	}
	if concurrency := os.Getenv("REGISTRY_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Registry.Concurrency = c
		}
	}

	// History configuration
	if enabled := os.Getenv("HISTORY_ENABLED"); enabled != "" {
		config.History.Enabled = enabled == "true"
	}
	if source := os.Getenv("HISTORY_SOURCE"); source != "" {
		config.History.Source = strings.ToLower(source)
	}
	if dir := os.Getenv("HISTORY_DIR"); dir != "" {
		config.History.Dir = dir
	}

	// DatabaseDSN
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	// NATSConfiguration
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if subject := os.Getenv("NATS_SUBJECT"); subject != "" {
		config.NATS.Subject = subject
	}

	if textfile := os.Getenv("METRICS_TEXTFILE"); textfile != "" {
		config.Metrics.Textfile = textfile
	}

	// server configuration
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

func (c *Config) validate() error {
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry timeout must be positive, got %d", c.Registry.Timeout)
	}
	if c.Registry.Concurrency <= 0 {
		return fmt.Errorf("registry concurrency must be positive, got %d", c.Registry.Concurrency)
	}
	switch c.History.Source {
	case HistorySourceFiles, HistorySourceDatabase:
	default:
		return fmt.Errorf("unknown history source %q", c.History.Source)
	}
	if c.History.Enabled && c.History.Source == HistorySourceDatabase && c.Database.DSN == "" {
		return errors.New("history source 'database' requires a database dsn")
	}
	return nil
}

// ValidateRegistry checks the settings needed to reach the claim registry
func (c *Config) ValidateRegistry() error {
	if c.Registry.RPCURL == "" {
		return errors.New("'ETH_RPC_URL' not set")
	}
	if c.Registry.SyrupDrip == "" {
		return errors.New("'SYRUP_DRIP' address not set")
	}
	if !common.IsHexAddress(c.Registry.SyrupDrip) {
		return fmt.Errorf("'SYRUP_DRIP' is not a valid address: %s", c.Registry.SyrupDrip)
	}
	return nil
}

// RegistryTimeout per call timeout for claim registry reads
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.Timeout) * time.Second
}

// NATSTimeout connect timeout for the NATS publisher
func (c *Config) NATSTimeout() time.Duration {
	if c.NATS.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.NATS.Timeout) * time.Second
}

// ServerAddress host:port the read API listens on
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

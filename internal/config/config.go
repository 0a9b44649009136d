package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the simulated meter client
type Config struct {
	Meter   MeterConfig   `yaml:"meter"`
	Server  ServerConfig  `yaml:"server"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Logging LoggingConfig `yaml:"logging"`
}

// MeterConfig contains settings for the simulated meter
type MeterConfig struct {
	DeviceID       string  `yaml:"device_id"`
	Location       string  `yaml:"location"`
	NominalVoltage float64 `yaml:"nominal_voltage"`
}

// ServerConfig contains connection settings for the dashboard server
type ServerConfig struct {
	URL                  string        `yaml:"url"`
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
}

// BufferConfig contains settings for the reading buffer
type BufferConfig struct {
	Size       int  `yaml:"size"`
	DropOldest bool `yaml:"drop_oldest"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads simulator configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Meter.DeviceID == "" {
		c.Meter.DeviceID = "ESP32_001"
	}
	if c.Meter.NominalVoltage == 0 {
		c.Meter.NominalVoltage = 230
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10 * time.Second
	}
	if c.Server.ReconnectInterval == 0 {
		c.Server.ReconnectInterval = 1 * time.Second
	}
	if c.Server.MaxReconnectInterval == 0 {
		c.Server.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = 10 * time.Second
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = 1000
		c.Buffer.DropOldest = true
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	if v := os.Getenv("METER_DEVICE_ID"); v != "" {
		c.Meter.DeviceID = v
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Meter.DeviceID == "" {
		return fmt.Errorf("meter device id is required")
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server URL must start with ws:// or wss://")
	}
	if c.Server.AuthToken == "" {
		return fmt.Errorf("server auth token is required")
	}
	if c.Buffer.Size < 10 || c.Buffer.Size > 100000 {
		return fmt.Errorf("buffer size must be between 10 and 100000")
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Meter: %+v, Server: [URL=%s, Token=%s], Buffer: %+v, Logging: %+v}",
		c.Meter,
		c.Server.URL,
		maskToken(c.Server.AuthToken),
		c.Buffer,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

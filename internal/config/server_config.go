package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the dashboard server
type AppConfig struct {
	Server   ServerSettings `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig contains SQLite persistence configuration
type DatabaseConfig struct {
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// CacheConfig contains the optional redis stats cache configuration
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StatsTTL time.Duration `yaml:"stats_ttl"`
}

// KafkaConfig contains the optional Kafka ingest bridge configuration
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// LoadAppConfig loads server configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config AppConfig
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
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 5000
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Database.Path == "" {
		ac.Database.Path = "./data/household-watch.db"
	}
	if ac.Database.BatchSize == 0 {
		ac.Database.BatchSize = 100
	}
	if ac.Database.FlushPeriod == 0 {
		ac.Database.FlushPeriod = 5 * time.Second
	}
	if ac.Database.ChannelSize == 0 {
		ac.Database.ChannelSize = 1000
	}
	if ac.Database.RetentionDays == 0 {
		ac.Database.RetentionDays = 90
	}
	if ac.Database.CleanupPeriod == 0 {
		ac.Database.CleanupPeriod = 1 * time.Hour
	}
	if ac.Cache.Addr == "" {
		ac.Cache.Addr = "localhost:6379"
	}
	if ac.Cache.StatsTTL == 0 {
		ac.Cache.StatsTTL = 30 * time.Second
	}
	if len(ac.Kafka.Brokers) == 0 {
		ac.Kafka.Brokers = []string{"localhost:9092"}
	}
	if ac.Kafka.Topic == "" {
		ac.Kafka.Topic = "meter-readings"
	}
	if ac.Kafka.GroupID == "" {
		ac.Kafka.GroupID = "household-watch"
	}
	if ac.Kafka.BatchSize == 0 {
		ac.Kafka.BatchSize = 100
	}
	if ac.Kafka.BatchTimeout == 0 {
		ac.Kafka.BatchTimeout = 1 * time.Second
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		ac.Database.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		ac.Cache.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if ac.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if ac.Database.BatchSize < 1 {
		return fmt.Errorf("database batch size must be at least 1")
	}
	if ac.Database.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}
	if ac.Kafka.Enabled && len(ac.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	return fmt.Sprintf("AppConfig{Server: [Host=%s, Port=%d, Token=%s], Database: %+v, Cache: [Enabled=%t, Addr=%s], Kafka: [Enabled=%t, Topic=%s], Logging: %+v}",
		ac.Server.Host,
		ac.Server.Port,
		maskToken(ac.Server.AuthToken),
		ac.Database,
		ac.Cache.Enabled,
		ac.Cache.Addr,
		ac.Kafka.Enabled,
		ac.Kafka.Topic,
		ac.Logging,
	)
}

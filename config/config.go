package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Logger    LoggerConfig    `yaml:"logger"`
	Memory    MemoryConfig    `yaml:"memory"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
	Assets    AssetsConfig    `yaml:"assets"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// APIConfig holds API-specific configuration
type APIConfig struct {
	AllowedOrigin    string  `yaml:"allowed_origin"`
	RateLimitEnabled bool    `yaml:"rate_limit_enabled"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps"`
	RateLimitBurst   int     `yaml:"rate_limit_burst"`
	RateLimitClients int     `yaml:"rate_limit_clients"`
	TrustProxy       bool    `yaml:"trust_proxy"` // honor X-Forwarded-For when keying rate limits
	StreamBuffer     int     `yaml:"stream_buffer"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `yaml:"format"` // console, json
}

// MemoryConfig holds in-memory storage configuration
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SQLiteConfig holds embedded database configuration
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SSLMode         string        `yaml:"ssl_mode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	MaxRetries   int    `yaml:"max_retries"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	TLSEnabled   bool   `yaml:"tls_enabled"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// AuditConfig holds the trade journal configuration
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// ReplayOnStart rebuilds the in-memory store from the journal when no
	// durable store is enabled
	ReplayOnStart bool `yaml:"replay_on_start"`
}

// AssetsConfig holds the Helius NFT lookup configuration
type AssetsConfig struct {
	HeliusAPIKey      string        `yaml:"helius_api_key"`
	HeliusBaseURL     string        `yaml:"helius_base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// TelemetryConfig holds tracing and metrics configuration
type TelemetryConfig struct {
	TracingEnabled bool    `yaml:"tracing_enabled"`
	ServiceName    string  `yaml:"service_name"`
	Environment    string  `yaml:"environment"`
	SampleRate     float64 `yaml:"sample_rate"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

var instance *Config

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		API: APIConfig{
			AllowedOrigin:    "*",
			RateLimitEnabled: true,
			RateLimitRPS:     20,
			RateLimitBurst:   40,
			RateLimitClients: 10000,
			StreamBuffer:     32,
		},
		Logger: LoggerConfig{
			Level:  "INFO",
			Format: "console",
		},
		Memory: MemoryConfig{
			Enabled: true,
		},
		SQLite: SQLiteConfig{
			Path: "data/trades.db",
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "p2p_swap",
			User:            "postgres",
			MaxConns:        20,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
			SSLMode:         "disable",
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			MaxRetries:   3,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "p2pswap:",
		},
		Audit: AuditConfig{
			Enabled:       true,
			Path:          "trades.log",
			ReplayOnStart: true,
		},
		Assets: AssetsConfig{
			HeliusBaseURL:     "https://api.helius.xyz",
			Timeout:           10 * time.Second,
			CacheSize:         1024,
			CacheTTL:          time.Minute,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "p2p-swap",
			Environment:    "development",
			SampleRate:     1.0,
			MetricsEnabled: true,
		},
	}
}

// Load builds the configuration from defaults, then an optional YAML file,
// then environment variables (a .env file is read first if present).
// path falls back to CONFIG_FILE; an empty path skips the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	instance = cfg
	return cfg, nil
}

// applyEnv overrides every field whose variable is set
func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.API.AllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", c.API.AllowedOrigin)
	c.API.RateLimitEnabled = getEnvBool("RATE_LIMIT_ENABLED", c.API.RateLimitEnabled)
	c.API.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.API.RateLimitRPS)
	c.API.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.API.RateLimitBurst)
	c.API.RateLimitClients = getEnvInt("RATE_LIMIT_CLIENTS", c.API.RateLimitClients)
	c.API.TrustProxy = getEnvBool("TRUST_PROXY", c.API.TrustProxy)
	c.API.StreamBuffer = getEnvInt("STREAM_BUFFER", c.API.StreamBuffer)

	c.Logger.Level = strings.ToUpper(getEnv("LOG_LEVEL", c.Logger.Level))
	c.Logger.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Logger.Format))

	c.Memory.Enabled = getEnvBool("MEMORY_ENABLED", c.Memory.Enabled)

	c.SQLite.Enabled = getEnvBool("SQLITE_ENABLED", c.SQLite.Enabled)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)

	c.Database.Enabled = getEnvBool("DATABASE_ENABLED", c.Database.Enabled)
	c.Database.Host = getEnv("DATABASE_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DATABASE_PORT", c.Database.Port)
	c.Database.Name = getEnv("DATABASE_NAME", c.Database.Name)
	c.Database.User = getEnv("DATABASE_USER", c.Database.User)
	c.Database.Password = getEnv("DATABASE_PASSWORD", c.Database.Password)
	c.Database.MaxConns = getEnvInt("DATABASE_MAX_CONNECTIONS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("DATABASE_MIN_CONNECTIONS", c.Database.MinConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.SSLMode = getEnv("DATABASE_SSL_MODE", c.Database.SSLMode)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvInt("REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", c.Redis.MinIdleConns)
	c.Redis.TLSEnabled = getEnvBool("REDIS_TLS_ENABLED", c.Redis.TLSEnabled)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Audit.Enabled = getEnvBool("TRADE_LOG_ENABLED", c.Audit.Enabled)
	c.Audit.Path = getEnv("TRADE_LOG_PATH", c.Audit.Path)
	c.Audit.ReplayOnStart = getEnvBool("TRADE_LOG_REPLAY", c.Audit.ReplayOnStart)

	c.Assets.HeliusAPIKey = getEnv("HELIUS_API_KEY", c.Assets.HeliusAPIKey)
	c.Assets.HeliusBaseURL = getEnv("HELIUS_BASE_URL", c.Assets.HeliusBaseURL)
	c.Assets.Timeout = getEnvDuration("HELIUS_TIMEOUT", c.Assets.Timeout)
	c.Assets.CacheSize = getEnvInt("HELIUS_CACHE_SIZE", c.Assets.CacheSize)
	c.Assets.CacheTTL = getEnvDuration("HELIUS_CACHE_TTL", c.Assets.CacheTTL)
	c.Assets.RequestsPerSecond = getEnvFloat("HELIUS_RPS", c.Assets.RequestsPerSecond)
	c.Assets.Burst = getEnvInt("HELIUS_BURST", c.Assets.Burst)

	c.Telemetry.TracingEnabled = getEnvBool("TRACING_ENABLED", c.Telemetry.TracingEnabled)
	c.Telemetry.ServiceName = getEnv("SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.Environment = getEnv("ENVIRONMENT", c.Telemetry.Environment)
	c.Telemetry.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", c.Telemetry.SampleRate)
	c.Telemetry.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.Telemetry.MetricsEnabled)
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	validLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	if c.API.RateLimitEnabled {
		if c.API.RateLimitRPS <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be > 0")
		}
		if c.API.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
		}
	}

	if !c.Memory.Enabled && !c.Redis.Enabled && !c.Database.Enabled && !c.SQLite.Enabled {
		return fmt.Errorf("at least one of MEMORY_ENABLED, REDIS_ENABLED, DATABASE_ENABLED or SQLITE_ENABLED must be set")
	}
	if c.Database.Enabled && c.SQLite.Enabled {
		return fmt.Errorf("DATABASE_ENABLED and SQLITE_ENABLED are mutually exclusive")
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		return fmt.Errorf("SQLITE_PATH cannot be empty")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("TRADE_LOG_PATH cannot be empty")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	return nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

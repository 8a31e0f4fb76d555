package config

import "time"

// Storage type constants
const (
	// StorageTypeMemory keeps users in process memory
	StorageTypeMemory = "memory"
	// StorageTypePostgres represents PostgreSQL
	StorageTypePostgres = "postgres"
	// StorageTypeMySQL represents MySQL
	StorageTypeMySQL = "mysql"
	// StorageTypeRedis represents Redis hashes
	StorageTypeRedis = "redis"
	// StorageTypeMongoDB represents MongoDB
	StorageTypeMongoDB = "mongodb"
	// StorageTypeDynamoDB represents AWS DynamoDB
	StorageTypeDynamoDB = "dynamodb"
)

// StorageTypes lists every supported storage.type value.
var StorageTypes = []string{
	StorageTypeMemory,
	StorageTypePostgres,
	StorageTypeMySQL,
	StorageTypeRedis,
	StorageTypeMongoDB,
	StorageTypeDynamoDB,
}

// DefaultEnvPrefix is used when no environment prefix is configured.
const DefaultEnvPrefix = "USERDIR"

// Config is the root configuration of the user directory
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// StorageConfig selects and configures the user store.
// URL is the descriptor handed to Backend.Connect.
type StorageConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	URL  string `mapstructure:"url" yaml:"url"`

	// SQL
	Table           string        `mapstructure:"table" yaml:"table"`
	EnsureSchema    bool          `mapstructure:"ensure_schema" yaml:"ensure_schema"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// Redis
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// MongoDB
	DatabaseName string `mapstructure:"database_name" yaml:"database_name"`
	Collection   string `mapstructure:"collection" yaml:"collection"`

	// DynamoDB
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`

	// ConnectRetries is the number of extra Connect attempts after a failure.
	ConnectRetries      int           `mapstructure:"connect_retries" yaml:"connect_retries"`
	ConnectRetryBackoff time.Duration `mapstructure:"connect_retry_backoff" yaml:"connect_retry_backoff"`
}

// ObservabilityConfig configures logging, metrics and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "userdirectory",
			Environment: "development",
		},
		Storage: StorageConfig{
			Type:            StorageTypeMemory,
			URL:             "memory://default",
			Table:           "users",
			EnsureSchema:    true,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			KeyPrefix:       "userdir:",
			Collection:      "users",
			ConnectTimeout:  5 * time.Second,
			QueryTimeout:    10 * time.Second,

			ConnectRetryBackoff: 500 * time.Millisecond,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "text",
			MetricsEnabled:    true,
			TracingEnabled:    false,
			TracingSampleRate: 1.0,
			TracingEndpoint:   "localhost:4317",
		},
	}
}

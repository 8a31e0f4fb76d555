package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagKeys maps command-line override flags to configuration keys.
var flagKeys = map[string]string{
	"storage-type": "storage.type",
	"storage-url":  "storage.url",
	"log-level":    "observability.log_level",
	"log-format":   "observability.log_format",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to USERDIR)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags makes changed flags registered by RegisterFlags override every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// RegisterFlags adds the configuration override flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("storage-type", "", "storage backend ("+strings.Join(StorageTypes, ", ")+")")
	flags.String("storage-url", "", "storage connection descriptor")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	cfg, _, err := l.load(false)
	return cfg, err
}

func (l *ViperLoader) load(withSecrets bool) (*Config, *Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	var secrets *Config
	if withSecrets {
		var err error
		if secrets, err = l.mergeSecrets(v); err != nil {
			return nil, nil, err
		}
	}

	v.SetEnvPrefix(l.prefix())
	l.bindLegacyEnvVars()
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, secrets, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("storage.type", l.prefixedEnv("STORAGE_TYPE"))
	v.BindEnv("storage.url", l.prefixedEnv("STORAGE_URL"))
	v.BindEnv("storage.table", l.prefixedEnv("STORAGE_TABLE"))
	v.BindEnv("storage.ensure_schema", l.prefixedEnv("STORAGE_ENSURE_SCHEMA"))
	v.BindEnv("storage.max_open_conns", l.prefixedEnv("STORAGE_MAX_OPEN_CONNS"))
	v.BindEnv("storage.max_idle_conns", l.prefixedEnv("STORAGE_MAX_IDLE_CONNS"))
	v.BindEnv("storage.conn_max_lifetime", l.prefixedEnv("STORAGE_CONN_MAX_LIFETIME"))
	v.BindEnv("storage.conn_max_idle_time", l.prefixedEnv("STORAGE_CONN_MAX_IDLE_TIME"))
	v.BindEnv("storage.key_prefix", l.prefixedEnv("STORAGE_KEY_PREFIX"))
	v.BindEnv("storage.database_name", l.prefixedEnv("STORAGE_DATABASE_NAME"))
	v.BindEnv("storage.collection", l.prefixedEnv("STORAGE_COLLECTION"))
	v.BindEnv("storage.region", l.prefixedEnv("STORAGE_REGION"))
	v.BindEnv("storage.access_key_id", l.prefixedEnv("STORAGE_ACCESS_KEY_ID"))
	v.BindEnv("storage.secret_access_key", l.prefixedEnv("STORAGE_SECRET_ACCESS_KEY"))
	v.BindEnv("storage.session_token", l.prefixedEnv("STORAGE_SESSION_TOKEN"))
	v.BindEnv("storage.connect_timeout", l.prefixedEnv("STORAGE_CONNECT_TIMEOUT"))
	v.BindEnv("storage.query_timeout", l.prefixedEnv("STORAGE_QUERY_TIMEOUT"))
	v.BindEnv("storage.connect_retries", l.prefixedEnv("STORAGE_CONNECT_RETRIES"))
	v.BindEnv("storage.connect_retry_backoff", l.prefixedEnv("STORAGE_CONNECT_RETRY_BACKOFF"))

	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.metrics_enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
}

// bindLegacyEnvVars maps the older DB_* names to STORAGE_* when the latter are absent.
func (l *ViperLoader) bindLegacyEnvVars() {
	aliases := []struct {
		currentSuffix string
		legacySuffix  string
	}{
		{"STORAGE_TYPE", "DB_TYPE"},
		{"STORAGE_URL", "DB_URL"},
		{"STORAGE_URL", "DATABASE_URL"},
		{"STORAGE_REGION", "DB_REGION"},
		{"STORAGE_QUERY_TIMEOUT", "DB_QUERY_TIMEOUT"},
	}

	for _, alias := range aliases {
		currentEnv := l.prefixedEnv(alias.currentSuffix)
		if _, hasCurrent := os.LookupEnv(currentEnv); hasCurrent {
			continue
		}
		if legacyValue, hasLegacy := os.LookupEnv(l.prefixedEnv(alias.legacySuffix)); hasLegacy {
			_ = os.Setenv(currentEnv, legacyValue)
		}
	}
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefix() string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ToUpper(prefix)
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	return fmt.Sprintf("%s_%s", l.prefix(), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.url", cfg.Storage.URL)
	v.SetDefault("storage.table", cfg.Storage.Table)
	v.SetDefault("storage.ensure_schema", cfg.Storage.EnsureSchema)
	v.SetDefault("storage.max_open_conns", cfg.Storage.MaxOpenConns)
	v.SetDefault("storage.max_idle_conns", cfg.Storage.MaxIdleConns)
	v.SetDefault("storage.conn_max_lifetime", cfg.Storage.ConnMaxLifetime)
	v.SetDefault("storage.conn_max_idle_time", cfg.Storage.ConnMaxIdleTime)
	v.SetDefault("storage.key_prefix", cfg.Storage.KeyPrefix)
	v.SetDefault("storage.database_name", cfg.Storage.DatabaseName)
	v.SetDefault("storage.collection", cfg.Storage.Collection)
	v.SetDefault("storage.region", cfg.Storage.Region)
	v.SetDefault("storage.access_key_id", cfg.Storage.AccessKeyID)
	v.SetDefault("storage.secret_access_key", cfg.Storage.SecretAccessKey)
	v.SetDefault("storage.session_token", cfg.Storage.SessionToken)
	v.SetDefault("storage.connect_timeout", cfg.Storage.ConnectTimeout)
	v.SetDefault("storage.query_timeout", cfg.Storage.QueryTimeout)
	v.SetDefault("storage.connect_retries", cfg.Storage.ConnectRetries)
	v.SetDefault("storage.connect_retry_backoff", cfg.Storage.ConnectRetryBackoff)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
}

// Validate validates the configuration and returns every problem found
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// Validate checks storage, logging and tracing settings.
func (c *Config) Validate() error {
	var errs []error

	storageType := strings.ToLower(strings.TrimSpace(c.Storage.Type))
	if !contains(StorageTypes, storageType) {
		errs = append(errs, fmt.Errorf("invalid storage.type: %q (must be one of: %v)", c.Storage.Type, StorageTypes))
	}

	switch storageType {
	case StorageTypeMemory, StorageTypePostgres, StorageTypeMySQL, StorageTypeRedis, StorageTypeMongoDB:
		if strings.TrimSpace(c.Storage.URL) == "" {
			errs = append(errs, fmt.Errorf("storage.url is required when storage.type is %s", storageType))
		}
	case StorageTypeDynamoDB:
		if strings.TrimSpace(c.Storage.Region) == "" {
			errs = append(errs, errors.New("storage.region is required for dynamodb"))
		}
	}

	if storageType == StorageTypeMemory && !strings.HasPrefix(c.Storage.URL, "memory://") {
		errs = append(errs, fmt.Errorf("storage.url must use the memory:// scheme for the memory backend (got %q)", c.Storage.URL))
	}
	if c.Storage.MaxOpenConns < 0 {
		errs = append(errs, errors.New("storage.max_open_conns must not be negative"))
	}
	if c.Storage.MaxIdleConns < 0 {
		errs = append(errs, errors.New("storage.max_idle_conns must not be negative"))
	}
	if c.Storage.MaxOpenConns > 0 && c.Storage.MaxIdleConns > c.Storage.MaxOpenConns {
		errs = append(errs, errors.New("storage.max_idle_conns must not exceed storage.max_open_conns"))
	}
	if c.Storage.QueryTimeout < 0 || c.Storage.ConnectTimeout < 0 {
		errs = append(errs, errors.New("storage timeouts must not be negative"))
	}
	if c.Storage.ConnectRetries < 0 || c.Storage.ConnectRetryBackoff < 0 {
		errs = append(errs, errors.New("storage.connect_retries and storage.connect_retry_backoff must not be negative"))
	}

	if _, err := logger.ParseLogLevel(c.Observability.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_level: %w", err))
	}
	if _, err := logger.ParseLogFormat(c.Observability.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_format: %w", err))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1 (got %v)", c.Observability.TracingSampleRate))
	}
	if c.Observability.TracingEnabled && strings.TrimSpace(c.Observability.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

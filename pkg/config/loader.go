package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes environment variables when none is configured.
const DefaultEnvPrefix = "CRUDKIT"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management.
//
// Precedence, highest first: flags, environment, secrets file, config file,
// defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"router":    "router_type",
	"port":      "http.port",
	"db-type":   "database.type",
	"db-url":    "database.url",
	"cache-url": "cache.url",
	"log-level": "observability.log_level",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to CRUDKIT)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags binds the known flags present in flags as overrides.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads and validates the configuration.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secretsFile, err := l.discoverSecretsFile()
	if err != nil {
		return nil, err
	}
	if secretsFile != "" {
		secrets := viper.New()
		secrets.SetConfigFile(secretsFile)
		if err := secrets.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
		}
		if err := v.MergeConfigMap(secrets.AllSettings()); err != nil {
			return nil, fmt.Errorf("failed to merge secrets: %w", err)
		}
	}

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("router_type", l.prefixedEnv("ROUTER_TYPE"))
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.shutdown_timeout", l.prefixedEnv("HTTP_SHUTDOWN_TIMEOUT"))
	v.BindEnv("http.request_timeout", l.prefixedEnv("HTTP_REQUEST_TIMEOUT"))
	v.BindEnv("http.max_body_bytes", l.prefixedEnv("HTTP_MAX_BODY_BYTES"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"), l.prefixedEnv("DATABASE_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"), l.prefixedEnv("DATABASE_URL"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_DATABASE_NAME"))
	v.BindEnv("database.project_id", l.prefixedEnv("DB_PROJECT_ID"), "GOOGLE_CLOUD_PROJECT")
	v.BindEnv("database.credentials_file", l.prefixedEnv("DB_CREDENTIALS_FILE"), "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("database.table", l.prefixedEnv("DB_TABLE"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	v.BindEnv("database.max_open_conns", l.prefixedEnv("DB_MAX_OPEN_CONNS"))
	v.BindEnv("database.max_idle_conns", l.prefixedEnv("DB_MAX_IDLE_CONNS"))

	// Cache
	v.BindEnv("cache.type", l.prefixedEnv("CACHE_TYPE"))
	v.BindEnv("cache.url", l.prefixedEnv("CACHE_URL"))
	v.BindEnv("cache.ttl", l.prefixedEnv("CACHE_TTL"))
	v.BindEnv("cache.prefix", l.prefixedEnv("CACHE_PREFIX"))
	v.BindEnv("cache.max_conns", l.prefixedEnv("CACHE_MAX_CONNS"))
	v.BindEnv("cache.operation_timeout", l.prefixedEnv("CACHE_OPERATION_TIMEOUT"))
	v.BindEnv("cache.breaker_failures", l.prefixedEnv("CACHE_BREAKER_FAILURES"))
	v.BindEnv("cache.breaker_cooldown", l.prefixedEnv("CACHE_BREAKER_COOLDOWN"))

	// Pagination
	v.BindEnv("pagination.default_limit", l.prefixedEnv("PAGINATION_DEFAULT_LIMIT"))
	v.BindEnv("pagination.max_limit", l.prefixedEnv("PAGINATION_MAX_LIMIT"))
	v.BindEnv("pagination.soft_delete", l.prefixedEnv("PAGINATION_SOFT_DELETE"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.metrics_enabled", l.prefixedEnv("METRICS_ENABLED"))
	v.BindEnv("observability.metrics_path", l.prefixedEnv("METRICS_PATH"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("router_type", cfg.RouterType)
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.max_body_bytes", cfg.HTTP.MaxBodyBytes)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.project_id", cfg.Database.ProjectID)
	v.SetDefault("database.credentials_file", cfg.Database.CredentialsFile)
	v.SetDefault("database.table", cfg.Database.Table)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)

	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.url", cfg.Cache.URL)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.prefix", cfg.Cache.Prefix)
	v.SetDefault("cache.max_conns", cfg.Cache.MaxConns)
	v.SetDefault("cache.operation_timeout", cfg.Cache.OperationTimeout)
	v.SetDefault("cache.breaker_failures", cfg.Cache.BreakerFailures)
	v.SetDefault("cache.breaker_cooldown", cfg.Cache.BreakerCooldown)

	v.SetDefault("pagination.default_limit", cfg.Pagination.DefaultLimit)
	v.SetDefault("pagination.max_limit", cfg.Pagination.MaxLimit)
	v.SetDefault("pagination.soft_delete", cfg.Pagination.SoftDelete)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.metrics_path", cfg.Observability.MetricsPath)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

// discoverSecretsFile finds the secrets file using these rules:
// 1. <ENV_PREFIX>_SECRETS_FILE, which must name a readable file
// 2. secrets.{ext} next to the config file
func (l *ViperLoader) discoverSecretsFile() (string, error) {
	secretsEnv := l.prefixedEnv("SECRETS_FILE")
	if raw, ok := os.LookupEnv(secretsEnv); ok {
		secretsFile := strings.TrimSpace(raw)
		if secretsFile == "" {
			return "", fmt.Errorf("%s is set but empty", secretsEnv)
		}
		info, err := os.Stat(secretsFile)
		if err != nil {
			return "", fmt.Errorf("%s points to an inaccessible file %s: %w", secretsEnv, secretsFile, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s must point to a file, got directory %s", secretsEnv, secretsFile)
		}
		return secretsFile, nil
	}

	if l.configFile != "" {
		secretsFile := filepath.Join(filepath.Dir(l.configFile), "secrets"+filepath.Ext(l.configFile))
		if info, err := os.Stat(secretsFile); err == nil && !info.IsDir() {
			return secretsFile, nil
		}
	}
	return "", nil
}

// Validate normalizes enumerations and returns every problem found, joined.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.RouterType = strings.ToLower(strings.TrimSpace(cfg.RouterType))
	validRouterTypes := []string{"gin", "gorilla"}
	if !contains(validRouterTypes, cfg.RouterType) {
		errs = append(errs, fmt.Errorf("invalid router_type: %s (must be one of: %v)", cfg.RouterType, validRouterTypes))
	}
	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", cfg.HTTP.Port))
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if cfg.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout must not be negative"))
	}
	if cfg.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("http.max_body_bytes must not be negative"))
	}

	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	switch cfg.Database.Type {
	case DatabaseTypeMemory:
	case DatabaseTypeFirestore:
		if cfg.Database.ProjectID == "" {
			errs = append(errs, errors.New("database.project_id is required for Firestore"))
		}
	case DatabaseTypeMongoDB:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for MongoDB"))
		}
		if cfg.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for MongoDB"))
		}
	case DatabaseTypePostgres:
		if cfg.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for PostgreSQL"))
		}
		if !validIdentifier(cfg.Database.Table) {
			errs = append(errs, fmt.Errorf("database.table %q is not a valid identifier", cfg.Database.Table))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: %v)", cfg.Database.Type,
			[]string{DatabaseTypeMemory, DatabaseTypeFirestore, DatabaseTypeMongoDB, DatabaseTypePostgres}))
	}
	if cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns && cfg.Database.MaxOpenConns > 0 {
		errs = append(errs, errors.New("database.max_idle_conns cannot exceed database.max_open_conns"))
	}

	cfg.Cache.Type = strings.ToLower(strings.TrimSpace(cfg.Cache.Type))
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = CacheTypeNone
	}
	switch cfg.Cache.Type {
	case CacheTypeNone:
	case CacheTypeRedis:
		if cfg.Cache.URL == "" {
			errs = append(errs, errors.New("cache.url is required when cache.type is redis"))
		}
		if cfg.Cache.TTL <= 0 {
			errs = append(errs, errors.New("cache.ttl must be positive when cache.type is redis"))
		}
		if cfg.Cache.BreakerFailures < 0 {
			errs = append(errs, errors.New("cache.breaker_failures cannot be negative"))
		}
		if cfg.Cache.BreakerFailures > 0 && cfg.Cache.BreakerCooldown <= 0 {
			errs = append(errs, errors.New("cache.breaker_cooldown must be positive when the breaker is enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid cache.type: %s (must be one of: %v)", cfg.Cache.Type,
			[]string{CacheTypeNone, CacheTypeRedis}))
	}

	if cfg.Pagination.DefaultLimit < 1 {
		errs = append(errs, errors.New("pagination.default_limit must be at least 1"))
	}
	if cfg.Pagination.MaxLimit < cfg.Pagination.DefaultLimit {
		errs = append(errs, errors.New("pagination.max_limit cannot be lower than pagination.default_limit"))
	}

	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	if !contains([]string{"debug", "info", "warn", "error"}, cfg.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s", cfg.Observability.LogLevel))
	}
	cfg.Observability.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Observability.LogFormat))
	if !contains([]string{"json", "text"}, cfg.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s", cfg.Observability.LogFormat))
	}
	if cfg.Observability.MetricsEnabled && !strings.HasPrefix(cfg.Observability.MetricsPath, "/") {
		errs = append(errs, errors.New("observability.metrics_path must start with /"))
	}
	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
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

func validIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

package config

import (
	"net/url"
	"time"
)

// Database type constants
const (
	// DatabaseTypeMemory keeps documents in process memory.
	DatabaseTypeMemory = "memory"
	// DatabaseTypeFirestore represents Google Cloud Firestore
	DatabaseTypeFirestore = "firestore"
	// DatabaseTypeMongoDB represents MongoDB database
	DatabaseTypeMongoDB = "mongodb"
	// DatabaseTypePostgres represents PostgreSQL with JSONB documents
	DatabaseTypePostgres = "postgres"
)

// Cache type constants
const (
	CacheTypeNone  = "none"
	CacheTypeRedis = "redis"
)

// Config is the root configuration of a crudkit service.
type Config struct {
	RouterType    string              `mapstructure:"router_type" json:"router_type" yaml:"router_type"`
	Service       ServiceConfig       `mapstructure:"service" json:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" json:"http" yaml:"http"`
	Database      DatabaseConfig      `mapstructure:"database" json:"database" yaml:"database"`
	Cache         CacheConfig         `mapstructure:"cache" json:"cache" yaml:"cache"`
	Pagination    PaginationConfig    `mapstructure:"pagination" json:"pagination" yaml:"pagination"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" json:"name" yaml:"name"`
	Environment string `mapstructure:"environment" json:"environment" yaml:"environment"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Port            int           `mapstructure:"port" json:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RequestTimeout bounds each API request. Zero disables the deadline.
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DatabaseConfig selects and configures the document store backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type" json:"type" yaml:"type"`
	// URL is the MongoDB or PostgreSQL connection string.
	URL          string `mapstructure:"url" json:"url" yaml:"url"`
	DatabaseName string `mapstructure:"database_name" json:"database_name" yaml:"database_name"`
	// ProjectID and CredentialsFile configure Firestore. An empty
	// CredentialsFile uses application default credentials.
	ProjectID       string `mapstructure:"project_id" json:"project_id" yaml:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file" json:"credentials_file" yaml:"credentials_file"`
	// Table is the PostgreSQL table holding every collection.
	Table          string        `mapstructure:"table" json:"table" yaml:"table"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" yaml:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout" json:"query_timeout" yaml:"query_timeout"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns" json:"max_idle_conns" yaml:"max_idle_conns"`
}

// CacheConfig configures the optional page cache.
type CacheConfig struct {
	Type             string        `mapstructure:"type" json:"type" yaml:"type"`
	URL              string        `mapstructure:"url" json:"url" yaml:"url"`
	TTL              time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
	Prefix           string        `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
	MaxConns         int           `mapstructure:"max_conns" json:"max_conns" yaml:"max_conns"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" json:"operation_timeout" yaml:"operation_timeout"`
	// BreakerFailures consecutive cache errors stop cache traffic for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures" json:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// PaginationConfig configures page sizes and the delete policy shared by all resources.
type PaginationConfig struct {
	DefaultLimit int  `mapstructure:"default_limit" json:"default_limit" yaml:"default_limit"`
	MaxLimit     int  `mapstructure:"max_limit" json:"max_limit" yaml:"max_limit"`
	SoftDelete   bool `mapstructure:"soft_delete" json:"soft_delete" yaml:"soft_delete"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	MetricsEnabled    bool    `mapstructure:"metrics_enabled" json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath       string  `mapstructure:"metrics_path" json:"metrics_path" yaml:"metrics_path"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" json:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" json:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" json:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		RouterType: "gin",
		Service: ServiceConfig{
			Name:        "crudkit",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  15 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Type:           DatabaseTypeMemory,
			Table:          "documents",
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   10 * time.Second,
			MaxOpenConns:   25,
			MaxIdleConns:   5,
		},
		Cache: CacheConfig{
			Type:             CacheTypeNone,
			TTL:              time.Minute,
			Prefix:           "crudkit",
			MaxConns:         10,
			OperationTimeout: 3 * time.Second,
			BreakerFailures:  5,
			BreakerCooldown:  30 * time.Second,
		},
		Pagination: PaginationConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
			SoftDelete:   true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			MetricsEnabled:    true,
			MetricsPath:       "/metrics",
			TracingSampleRate: 0.1,
		},
	}
}

// Redacted returns a copy with connection string passwords masked.
func (c Config) Redacted() Config {
	c.Database.URL = redactURL(c.Database.URL)
	c.Cache.URL = redactURL(c.Cache.URL)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

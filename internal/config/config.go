package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the clinical history service.
type Config struct {
	// Datastore backend type: "postgres" or "sqlite".
	DatastoreType string

	// DBURL is a postgres connection URL or a sqlite file path/DSN.
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "redis" or "none".
	CacheType string
	RedisURL  string

	// HistoryCacheTTL bounds how long an aggregated history stays cached.
	HistoryCacheTTL time.Duration

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)
	// OIDCTenantClaim names the token claim carrying the tenant id.
	OIDCTenantClaim string

	// DefaultTenantID is used when neither the X-Tenant-ID header nor a token
	// claim names a tenant.
	DefaultTenantID string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=clinical-history".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		HistoryCacheTTL:         time.Minute,
		OIDCTenantClaim:         "tenant_id",
		DefaultTenantID:         "default",
		MetricsLabels:           "service=clinical-history",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:  2 * 1024 * 1024,
		DrainTimeout: 30,
		LogLevel:     "info",
	}
}

// Validate reports configuration combinations that cannot start a server.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBURL) == "" {
		return fmt.Errorf("db-url is required for datastore %q", c.DatastoreType)
	}
	if c.CacheType == "redis" && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("redis-hosts is required when cache-kind is redis")
	}
	if c.HistoryCacheTTL < 0 {
		return fmt.Errorf("history-cache-ttl must not be negative")
	}
	return nil
}

// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/remote-connectors/pkg/connector"
)

const logPrefix = "config:LoadConfig"

// Config holds remote-connectors configuration.
type Config struct {
	// Outbound calls
	RemoteCalls      bool `envconfig:"DO_REMOTE_CALLS" default:"false"`
	RequestTimeoutMs int  `envconfig:"OSD_REQUEST_TIMEOUT_MS" default:"10000"`
	RequestTryCount  int  `envconfig:"OSD_REQUEST_TRY_COUNT" default:"7"`

	// Shared secret of the built-in connectors
	ConnectorPassword string `envconfig:"CONNECTOR_PASSWORD"`

	// Services file and protocol version constraint applied to candidates (e.g. "3" or ">=3.1")
	ServiceFile        string `envconfig:"CONNECTORS_SERVICE_FILE"`
	ProtocolConstraint string `envconfig:"PROTOCOL_CONSTRAINT"`

	// Inbound HTTP
	ServicePath        string        `envconfig:"SERVICE_PATH" default:"/connectors"`
	HTTPAddr           string        `envconfig:"CONNECTORS_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8003"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Database (empty = in-memory stores and static resolution only)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH"`

	// COMMS: NATS for call events (empty = events disabled)
	COMMSURL  string `envconfig:"COMMS_URL"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"remote-connectors"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// RequestTimeout is OSD_REQUEST_TIMEOUT_MS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// Settings returns the outbound call settings of the connector runtime.
func (c *Config) Settings() connector.Settings {
	return connector.Settings{
		RemoteCalls:    c.RemoteCalls,
		RequestTimeout: c.RequestTimeout(),
		TryCount:       c.RequestTryCount,
	}
}

// Addr is the HTTP listen address: CONNECTORS_HTTP_ADDR when set, else all interfaces on HTTP_PORT.
func (c *Config) Addr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the connector server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeoutMs <= 0 {
		return fmt.Errorf("%s - OSD_REQUEST_TIMEOUT_MS must be positive", logPrefix)
	}
	if c.RequestTryCount <= 0 {
		return fmt.Errorf("%s - OSD_REQUEST_TRY_COUNT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if !strings.HasPrefix(c.ServicePath, "/") || strings.Trim(c.ServicePath, "/") == "" {
		return fmt.Errorf("%s - SERVICE_PATH must be an absolute, non-root path, got %q", logPrefix, c.ServicePath)
	}
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT out of range: %d", logPrefix, c.HTTPPort)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

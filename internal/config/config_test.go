package config

import (
	"os"
	"testing"
	"time"
)

var allEnv = []string{
	"DO_REMOTE_CALLS", "OSD_REQUEST_TIMEOUT_MS", "OSD_REQUEST_TRY_COUNT",
	"CONNECTOR_PASSWORD", "CONNECTORS_SERVICE_FILE", "PROTOCOL_CONSTRAINT",
	"SERVICE_PATH", "CONNECTORS_HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"COMMS_URL", "SERVICE_NAME", "LOG_LEVEL",
}

func clearEnv() {
	for _, env := range allEnv {
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.RemoteCalls {
		t.Error("config:config_test - expected RemoteCalls=false by default")
	}
	if cfg.RequestTimeout() != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout())
	}
	if cfg.RequestTryCount != 7 {
		t.Errorf("config:config_test - RequestTryCount = %d, want 7", cfg.RequestTryCount)
	}
	if cfg.ServicePath != "/connectors" {
		t.Errorf("config:config_test - ServicePath = %q, want %q", cfg.ServicePath, "/connectors")
	}
	if cfg.Addr() != ":8003" {
		t.Errorf("config:config_test - Addr = %q, want %q", cfg.Addr(), ":8003")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.COMMSURL != "" {
		t.Errorf("config:config_test - COMMSURL = %q, want empty", cfg.COMMSURL)
	}
	if cfg.COMMSName != "remote-connectors" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "remote-connectors")
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should be valid for serve: %v", err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected ValidateForDB to require DATABASE_URL")
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv()
	overrides := map[string]string{
		"DO_REMOTE_CALLS":         "true",
		"OSD_REQUEST_TIMEOUT_MS":  "2500",
		"OSD_REQUEST_TRY_COUNT":   "3",
		"CONNECTOR_PASSWORD":      "s3cret",
		"CONNECTORS_SERVICE_FILE": "/tmp/services.json",
		"PROTOCOL_CONSTRAINT":     "3",
		"SERVICE_PATH":            "/rpc",
		"CONNECTORS_HTTP_ADDR":    "127.0.0.1:9000",
		"DATABASE_URL":            "postgres://test@localhost/test",
		"RUN_MIGRATIONS":          "true",
		"COMMS_URL":               "nats://custom:4222",
		"LOG_LEVEL":               "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	s := cfg.Settings()
	if !s.RemoteCalls || s.RequestTimeout != 2500*time.Millisecond || s.TryCount != 3 {
		t.Errorf("config:config_test - Settings = %+v", s)
	}
	if cfg.ConnectorPassword != "s3cret" {
		t.Errorf("config:config_test - ConnectorPassword = %q", cfg.ConnectorPassword)
	}
	if cfg.ServiceFile != "/tmp/services.json" || cfg.ProtocolConstraint != "3" {
		t.Errorf("config:config_test - ServiceFile/ProtocolConstraint = %q/%q", cfg.ServiceFile, cfg.ProtocolConstraint)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("config:config_test - Addr = %q, want %q", cfg.Addr(), "127.0.0.1:9000")
	}
	if !cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=true")
	}
	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q", cfg.COMMSURL)
	}
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - ValidateForDB: %v", err)
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero timeout", func(c *Config) { c.RequestTimeoutMs = 0 }, true},
		{"zero tries", func(c *Config) { c.RequestTryCount = 0 }, true},
		{"root path", func(c *Config) { c.ServicePath = "/" }, true},
		{"relative path", func(c *Config) { c.ServicePath = "connectors" }, true},
		{"bad port", func(c *Config) { c.HTTPPort = 70000 }, true},
		{"addr overrides port", func(c *Config) { c.HTTPPort = 0; c.HTTPAddr = ":1234" }, false},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				RequestTimeoutMs: 10000, RequestTryCount: 7, ServicePath: "/connectors",
				HTTPPort: 8003, HealthCheckTimeout: 5 * time.Second,
			}
			tt.mutate(c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	clearEnv()
	t.Setenv("OSD_REQUEST_TRY_COUNT", "many")
	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for non-numeric OSD_REQUEST_TRY_COUNT")
	}
}

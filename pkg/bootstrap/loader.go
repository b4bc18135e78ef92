package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const logPrefix = "bootstrap:loader"

// EnvServiceFile names the environment variable holding the services file path.
const EnvServiceFile = "CONNECTORS_SERVICE_FILE"

// DefaultServerURI is the endpoint of the default service key when no file is found.
const DefaultServerURI = "http://127.0.0.1:8003/connectors"

// LoadServicesConfig loads the services file. It tries the given paths first, then
// CONNECTORS_SERVICE_FILE, then config/services.json and services.json, and falls back to
// the built-in default. Unreadable or malformed files are skipped with a warning.
func LoadServicesConfig(paths ...string) (*ServicesConfig, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvServiceFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/services.json", "services.json")

	for _, p := range all {
		cfg, err := ReadServicesFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn(fmt.Sprintf("%s - Skipping services file %s: %v", logPrefix, p, err))
			}
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded services config from %s", logPrefix, p))
		return cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default services config", logPrefix))
	return GetDefaultServicesConfig(), nil
}

// ReadServicesFile parses one services file.
func ReadServicesFile(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ServicesConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s - parse %s: %w", logPrefix, path, err)
	}
	if cfg.Services == nil {
		cfg.Services = map[string][]Endpoint{}
	}
	return &cfg, nil
}

// GetDefaultServicesConfig returns the built-in configuration: the default service key
// points at a local server.
func GetDefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Name:        "connectors-default",
		Version:     "1.0.0",
		Description: "Default local connector service",
		Services: map[string][]Endpoint{
			"ServerURI": {{URI: DefaultServerURI, Priority: 0}},
		},
	}
}

// MergeServicesConfigs overlays override onto base. Service keys, subjects, aliases and
// sessions present in override replace the base entries.
func MergeServicesConfigs(base, override *ServicesConfig) *ServicesConfig {
	merged := *base
	merged.Services = make(map[string][]Endpoint, len(base.Services)+len(override.Services))
	for k, v := range base.Services {
		merged.Services[k] = v
	}
	for k, v := range override.Services {
		merged.Services[k] = v
	}

	merged.Subjects = make(map[string]map[string][]Endpoint)
	for _, src := range []map[string]map[string][]Endpoint{base.Subjects, override.Subjects} {
		for subject, keys := range src {
			if merged.Subjects[subject] == nil {
				merged.Subjects[subject] = make(map[string][]Endpoint)
			}
			for k, v := range keys {
				merged.Subjects[subject][k] = v
			}
		}
	}

	merged.Aliases = make(map[string]string)
	for _, src := range []map[string]string{base.Aliases, override.Aliases} {
		for k, v := range src {
			merged.Aliases[k] = v
		}
	}

	merged.Sessions = make(map[string]SessionGrant)
	for _, src := range []map[string]SessionGrant{base.Sessions, override.Sessions} {
		for k, v := range src {
			merged.Sessions[k] = v
		}
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	return &merged
}

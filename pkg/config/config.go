// Package config loads the CLI harness configuration. The SDK itself is
// configured programmatically through gui.Options; this file-based layer
// exists so the harness and the stub backend can be pointed at an
// environment without flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/greentic-ai-org/greentic-gui/pkg/errors"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "GREENTIC_GUI_CONFIG"

// DefaultPath is consulted when EnvConfigPath is unset.
const DefaultPath = "greentic-gui.yaml"

// Config represents the harness configuration
type Config struct {
	Origin       string         `yaml:"origin"`
	TenantDomain string         `yaml:"tenant_domain"`
	DocumentPath string         `yaml:"document_path"`
	Endpoints    EndpointConfig `yaml:"endpoints"`
	NetworkLog   string         `yaml:"network_log"`
	LogFile      string         `yaml:"log_file"`
	LogLevel     string         `yaml:"log_level"`
	Trace        bool           `yaml:"trace"`
	Serve        ServeConfig    `yaml:"serve"`
}

// EndpointConfig overrides individual endpoint URLs.
type EndpointConfig struct {
	Config        string `yaml:"config"`
	Events        string `yaml:"events"`
	WorkerMessage string `yaml:"worker_message"`
	Session       string `yaml:"session"`
}

// ServeConfig configures the stub backend.
type ServeConfig struct {
	Bind          string        `yaml:"bind"`
	TenantDomain  string        `yaml:"tenant_domain"`
	SessionSecret string        `yaml:"session_secret"`
	EventInterval time.Duration `yaml:"event_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Serve: ServeConfig{
			Bind: "127.0.0.1:8844",
		},
	}
}

// Load reads the configuration file at path, falling back to defaults
// when the file does not exist. An unreadable or malformed file is an
// error; a missing one is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "failed to read config file").
			WithContext("path", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "failed to parse config file").
			WithContext("path", path)
	}

	return cfg, nil
}

// Resolve locates and loads the configuration: the explicit path wins,
// then EnvConfigPath, then DefaultPath.
func Resolve(explicit string) (*Config, error) {
	if explicit != "" {
		// An explicitly requested file must exist.
		if _, err := os.Stat(explicit); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, fmt.Sprintf("config file %s not found", explicit))
		}
		return Load(explicit)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return Load(env)
	}
	return Load(DefaultPath)
}

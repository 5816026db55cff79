package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvBaseURL overrides the configured base URL.
	EnvBaseURL = "SAFETYCTL_BASE_URL"
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "SAFETYCTL_CONFIG"
)

// Config represents the CLI configuration
type Config struct {
	DefaultEnv   string               `yaml:"default_env"`
	Environments map[string]EnvConfig `yaml:"environments"`
}

// EnvConfig represents configuration for a specific environment
type EnvConfig struct {
	BaseURL string `yaml:"base_url"`
	// Catalog is a local catalog file used by offline commands when no
	// --catalog flag is given. Empty means the embedded catalog.
	Catalog string `yaml:"catalog,omitempty"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".safetyctl", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{
				DefaultEnv:   "dev",
				Environments: make(map[string]EnvConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Environments == nil {
		cfg.Environments = make(map[string]EnvConfig)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Set updates one "env.key" setting.
func (c *Config) Set(path, value string) error {
	envName, key, ok := splitKey(path)
	if !ok {
		return fmt.Errorf("invalid key format, expected 'env.key' (e.g., 'dev.base_url')")
	}
	if c.Environments == nil {
		c.Environments = make(map[string]EnvConfig)
	}
	envCfg := c.Environments[envName]
	switch key {
	case "base_url":
		envCfg.BaseURL = value
	case "catalog":
		envCfg.Catalog = value
	default:
		return fmt.Errorf("unknown key '%s', valid keys: base_url, catalog", key)
	}
	c.Environments[envName] = envCfg
	return nil
}

// Get reads one "env.key" setting.
func (c *Config) Get(path string) (string, error) {
	envName, key, ok := splitKey(path)
	if !ok {
		return "", fmt.Errorf("invalid key format, expected 'env.key' (e.g., 'dev.base_url')")
	}
	envCfg, found := c.Environments[envName]
	if !found {
		return "", fmt.Errorf("environment '%s' not found", envName)
	}
	switch key {
	case "base_url":
		return envCfg.BaseURL, nil
	case "catalog":
		return envCfg.Catalog, nil
	default:
		return "", fmt.Errorf("unknown key '%s', valid keys: base_url, catalog", key)
	}
}

func splitKey(path string) (envName, key string, ok bool) {
	envName, key, found := strings.Cut(path, ".")
	return envName, key, found && envName != "" && key != "" && !strings.Contains(key, ".")
}

// GetEnvConfig returns configuration for a specific environment.
// Priority: command flags > environment variables > config file.
// Returns the environment config and the effective environment name.
// A missing environment is not an error: offline commands need no base URL.
func GetEnvConfig(envName, baseURLFlag string) (*EnvConfig, string, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}

	// Use default env if not specified
	if envName == "" {
		envName = cfg.DefaultEnv
	}

	envCfg := cfg.Environments[envName]

	// Override with flags/env vars if provided
	if baseURLFlag != "" {
		envCfg.BaseURL = baseURLFlag
	} else if v := os.Getenv(EnvBaseURL); v != "" {
		envCfg.BaseURL = v
	}

	return &envCfg, envName, nil
}

// InitConfig creates a default config file
func InitConfig() error {
	cfg := &Config{
		DefaultEnv: "dev",
		Environments: map[string]EnvConfig{
			"dev": {
				BaseURL: "http://localhost:8080",
			},
			"staging": {
				BaseURL: "https://safety.staging.example.com",
			},
			"prod": {
				BaseURL: "https://safety.example.com",
			},
		},
	}

	return SaveConfig(cfg)
}

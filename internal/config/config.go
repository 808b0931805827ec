package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath               string `yaml:"db_path"`
	RemoteURL            string `yaml:"remote_url"`
	RemoteToken          string `yaml:"remote_token"`
	ProbeURL             string `yaml:"probe_url"`
	ProbeIntervalSeconds int    `yaml:"probe_interval_seconds"`
	LogLevel             string `yaml:"log_level"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/streakd/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		ProbeIntervalSeconds: 30,
		LogLevel:             "info",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional, so we don't fail if it doesn't exist
	_ = loadYAMLConfig(cfg)

	// Override with environment variables
	if dbPath := getEnvOrFile("STREAKD_DB_PATH", "STREAKD_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if remoteURL := os.Getenv("STREAKD_REMOTE_URL"); remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if token := getEnvOrFile("STREAKD_TOKEN", "STREAKD_TOKEN_FILE"); token != "" {
		cfg.RemoteToken = token
	}
	if probeURL := os.Getenv("STREAKD_PROBE_URL"); probeURL != "" {
		cfg.ProbeURL = probeURL
	}
	if logLevel := os.Getenv("STREAKD_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".streakd/streakd.db"); err == nil {
			cfg.DBPath = ".streakd/streakd.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "streakd", "streakd.db")
		}
	}
	if cfg.ProbeURL == "" && cfg.RemoteURL != "" {
		cfg.ProbeURL = cfg.RemoteURL + "/v1/ping"
	}

	return cfg, nil
}

// ProbeInterval returns the configured probe period.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// loadYAMLConfig loads configuration from ~/.config/streakd/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "streakd", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return string(data)
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

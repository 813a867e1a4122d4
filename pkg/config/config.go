package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configDirName  = ".llmkube"
	configFileName = "config.yaml"
)

// Config holds server and discovery configuration. Values come from the
// optional YAML config file, overridden by environment variables.
type Config struct {
	Port            int           `yaml:"port"`
	Kubeconfig      string        `yaml:"kubeconfig"`
	DatabasePath    string        `yaml:"database_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	// Clusters restricts discovery to the named kubeconfig contexts;
	// empty means all contexts.
	Clusters []string `yaml:"clusters"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:            8080,
		DatabasePath:    "./data/stacks.db",
		RefreshInterval: 2 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// DefaultPath returns ~/.llmkube/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, configDirName, configFileName)
}

// Load reads the config file at path (missing file is fine) and applies
// environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if p := os.Getenv("PORT"); p != "" {
		fmt.Sscanf(p, "%d", &c.Port)
	}
	if k := os.Getenv("KUBECONFIG"); k != "" {
		c.Kubeconfig = k
	}
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		c.DatabasePath = p
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RefreshInterval = d
		}
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.QueryTimeout = d
		}
	}
	if v := os.Getenv("CLUSTERS"); v != "" {
		c.Clusters = splitAndTrim(v)
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the Parley configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Queue   QueueConfig   `yaml:"queue"`
	History HistoryConfig `yaml:"history"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains the broker server settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	AuthCode string `yaml:"auth_code,omitempty"` // generated at startup when empty
}

// QueueConfig contains the prompt queue defaults applied at startup
type QueueConfig struct {
	Enabled     bool `yaml:"enabled"`
	StartPaused bool `yaml:"start_paused"`
}

// HistoryConfig contains session history storage settings
type HistoryConfig struct {
	Backend    string `yaml:"backend"` // "memory" or "redis"
	RedisAddr  string `yaml:"redis_addr,omitempty"`
	RedisKey   string `yaml:"redis_key,omitempty"`
	MaxEntries int    `yaml:"max_entries"`
}

// AgentConfig contains settings for the asking side
type AgentConfig struct {
	// How long an ask waits for a human before the CLI gives up.
	// Zero means wait forever.
	ProcessTimeoutSeconds int `yaml:"process_timeout_seconds"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8317,
		},
		Queue: QueueConfig{
			Enabled:     true,
			StartPaused: false,
		},
		History: HistoryConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			MaxEntries: 500,
		},
		Agent: AgentConfig{
			ProcessTimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads and parses the parley.yaml file
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault tries to load parley.yaml, falls back to default
func LoadOrDefault() *Config {
	configPath := filepath.Join(".", "parley.yaml")
	cfg, err := Load(configPath)
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes the config to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1024 and 65535")
	}

	switch c.History.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("history.backend must be memory or redis, got %q", c.History.Backend)
	}

	if c.History.Backend == "redis" && c.History.RedisAddr == "" {
		return fmt.Errorf("history.redis_addr is required with the redis backend")
	}

	if c.History.MaxEntries < 1 {
		return fmt.Errorf("history.max_entries must be positive")
	}

	if c.Agent.ProcessTimeoutSeconds < 0 {
		return fmt.Errorf("agent.process_timeout_seconds must not be negative")
	}

	return nil
}

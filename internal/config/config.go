// Package config provides configuration management for foundry.
package config

import (
	"fmt"
	"time"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// FoundryDir is the foundry configuration directory
	FoundryDir = ".foundry"
)

// ServerConfig configures the API gateway.
type ServerConfig struct {
	// Host to bind (default: 127.0.0.1)
	Host string `yaml:"host"`
	// Port to listen on (default: 7466)
	Port int `yaml:"port"`
	// MetricsPort exposes the Prometheus endpoint (default: 7467)
	MetricsPort int `yaml:"metrics_port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsAddr returns the metrics listen address.
func (s ServerConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.MetricsPort)
}

// DatabaseConfig selects the truth store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres"
	Driver string `yaml:"driver"`
	// Path is the sqlite database file (default: .foundry/truth.db)
	Path string `yaml:"path,omitempty"`
	// Postgres connection settings, used when driver is "postgres"
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// RuntimeConfig configures the agent runtime providers.
type RuntimeConfig struct {
	// AnthropicAPIKey authorizes claude-* models. Usually set via
	// FOUNDRY_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY.
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`
	// OpenAIAPIKey authorizes gpt-* models
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
	// DefaultModel runs revision and assessment prompts (default:
	// claude-sonnet-4-5)
	DefaultModel string `yaml:"default_model"`
	// MaxTokens per execution (default: 8192)
	MaxTokens int64 `yaml:"max_tokens"`
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	// MaxAttempts before a task stays failed (default: 3)
	MaxAttempts int `yaml:"max_attempts"`
}

// AssessmentConfig configures parallel assessment sessions.
type AssessmentConfig struct {
	// Expiry for a session before stragglers time out (default: 30m)
	Expiry time.Duration `yaml:"expiry"`
}

// OrchestratorConfig configures the workflow orchestrator.
type OrchestratorConfig struct {
	// MaxConcurrent task executions (default: 4)
	MaxConcurrent int `yaml:"max_concurrent"`
	// PollInterval between dequeue attempts when idle (default: 2s)
	PollInterval time.Duration `yaml:"poll_interval"`
	// StuckScanInterval between stuck-gate scans (default: 1m)
	StuckScanInterval time.Duration `yaml:"stuck_scan_interval"`
}

// Config is the full foundry configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Queue        QueueConfig        `yaml:"queue"`
	Assessment   AssessmentConfig   `yaml:"assessment"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	// WorkspaceRoot is where project docs, specs, and proofs live
	// (default: .foundry/workspace)
	WorkspaceRoot string `yaml:"workspace_root"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        7466,
			MetricsPort: 7467,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   FoundryDir + "/truth.db",
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Runtime: RuntimeConfig{
			DefaultModel: "claude-sonnet-4-5",
			MaxTokens:    8192,
		},
		Queue:      QueueConfig{MaxAttempts: 3},
		Assessment: AssessmentConfig{Expiry: 30 * time.Minute},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:     4,
			PollInterval:      2 * time.Second,
			StuckScanInterval: time.Minute,
		},
		WorkspaceRoot: FoundryDir + "/workspace",
	}
}

// Validate checks the configuration for values that would fail at
// startup rather than at first use.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Orchestrator.MaxConcurrent < 1 {
		return fmt.Errorf("orchestrator.max_concurrent must be at least 1, got %d", c.Orchestrator.MaxConcurrent)
	}
	if c.Assessment.Expiry <= 0 {
		return fmt.Errorf("assessment.expiry must be positive, got %s", c.Assessment.Expiry)
	}
	return nil
}

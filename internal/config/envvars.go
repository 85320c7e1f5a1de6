package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnvVars overrides config values from FOUNDRY_* environment
// variables. Env vars are the highest-priority source.
func ApplyEnvVars(cfg *Config) {
	setString(&cfg.Server.Host, "FOUNDRY_HOST")
	setInt(&cfg.Server.Port, "FOUNDRY_PORT")
	setInt(&cfg.Server.MetricsPort, "FOUNDRY_METRICS_PORT")

	setString(&cfg.Database.Driver, "FOUNDRY_DB_DRIVER")
	setString(&cfg.Database.Path, "FOUNDRY_DB_PATH")
	setString(&cfg.Database.Postgres.Host, "FOUNDRY_DB_HOST")
	setInt(&cfg.Database.Postgres.Port, "FOUNDRY_DB_PORT")
	setString(&cfg.Database.Postgres.Database, "FOUNDRY_DB_NAME")
	setString(&cfg.Database.Postgres.User, "FOUNDRY_DB_USER")
	setString(&cfg.Database.Postgres.Password, "FOUNDRY_DB_PASSWORD")
	setString(&cfg.Database.Postgres.SSLMode, "FOUNDRY_DB_SSL_MODE")

	// Provider keys accept the standard names, with FOUNDRY_* winning.
	setString(&cfg.Runtime.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.Runtime.AnthropicAPIKey, "FOUNDRY_ANTHROPIC_API_KEY")
	setString(&cfg.Runtime.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.Runtime.OpenAIAPIKey, "FOUNDRY_OPENAI_API_KEY")
	setString(&cfg.Runtime.DefaultModel, "FOUNDRY_MODEL")

	setInt(&cfg.Queue.MaxAttempts, "FOUNDRY_QUEUE_MAX_ATTEMPTS")
	setDuration(&cfg.Assessment.Expiry, "FOUNDRY_ASSESSMENT_EXPIRY")
	setInt(&cfg.Orchestrator.MaxConcurrent, "FOUNDRY_MAX_CONCURRENT")
	setDuration(&cfg.Orchestrator.PollInterval, "FOUNDRY_POLL_INTERVAL")
	setString(&cfg.WorkspaceRoot, "FOUNDRY_WORKSPACE_ROOT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

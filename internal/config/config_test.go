package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:7466", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Assessment.Expiry)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
queue:
  max_attempts: 5
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	// Untouched fields keep defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Orchestrator.MaxConcurrent)
}

func TestEnvVarsOverrideFile(t *testing.T) {
	t.Setenv("FOUNDRY_PORT", "8100")
	t.Setenv("FOUNDRY_DB_DRIVER", "postgres")
	t.Setenv("FOUNDRY_ASSESSMENT_EXPIRY", "10m")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Assessment.Expiry)
}

func TestFoundryKeyWinsOverStandardKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "standard")
	t.Setenv("FOUNDRY_ANTHROPIC_API_KEY", "specific")

	cfg := Default()
	ApplyEnvVars(cfg)
	assert.Equal(t, "specific", cfg.Runtime.AnthropicAPIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Queue.MaxAttempts = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 70000
	require.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db.internal", Port: 5432, Database: "foundry",
		User: "svc", Password: "secret", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 dbname=foundry user=svc password=secret sslmode=require",
		p.DSN())
}

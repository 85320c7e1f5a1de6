package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/orchestrator"
)

// run executes the root command with args, resetting the config flag
// so tests stay independent.
func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		cfgFile = ""
		rootCmd.SetArgs(nil)
	})
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "truth.db") + "\n" +
		"workspace_root: " + filepath.Join(dir, "workspace") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestProjectCreateAndGateFlow(t *testing.T) {
	cfg := writeTestConfig(t)

	require.NoError(t, run(t, "--config", cfg, "project", "create", "cli-demo", "--owner", "alice"))

	// Idempotent by id.
	require.NoError(t, run(t, "--config", cfg, "project", "create", "cli-demo", "--owner", "alice"))

	// Typed confirmation: "ok" is not an approval.
	err := run(t, "--config", cfg, "gate", "approve", "cli-demo", "G1",
		"--actor", "alice", "--response", "ok")
	require.Error(t, err)

	require.NoError(t, run(t, "--config", cfg, "gate", "approve", "cli-demo", "G1",
		"--actor", "alice", "--response", "approved", "--force-without-proofs"))

	core, closer, err := openCoreAt(cfg)
	require.NoError(t, err)
	defer closer()
	p, err := db.GetProject(context.Background(), core.Truth.DB(), "cli-demo")
	require.NoError(t, err)
	assert.Equal(t, "G2", p.CurrentGate)
}

func TestTaskEnqueueThroughCLI(t *testing.T) {
	cfg := writeTestConfig(t)

	require.NoError(t, run(t, "--config", cfg, "project", "create", "cli-tasks", "--owner", "bob"))
	require.NoError(t, run(t, "--config", cfg, "task", "add", "cli-tasks",
		"Implement", "the", "login", "endpoint", "--priority", "high"))

	core, closer, err := openCoreAt(cfg)
	require.NoError(t, err)
	defer closer()
	tasks, err := db.ListTasks(context.Background(), core.Truth.DB(), "cli-tasks", "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Implement the login endpoint", tasks[0].Description)
	assert.Equal(t, "high", tasks[0].Priority)
}

func TestUnknownGateIsRejected(t *testing.T) {
	cfg := writeTestConfig(t)
	require.NoError(t, run(t, "--config", cfg, "project", "create", "cli-bad", "--owner", "eve"))
	err := run(t, "--config", cfg, "gate", "approve", "cli-bad", "G42",
		"--actor", "eve", "--response", "approved")
	require.Error(t, err)
}

// openCoreAt opens a core against the given config file, bypassing the
// global flag plumbing.
func openCoreAt(path string) (*orchestrator.Core, func(), error) {
	prev := cfgFile
	cfgFile = path
	defer func() { cfgFile = prev }()
	core, _, closer, err := openCore()
	return core, closer, err
}

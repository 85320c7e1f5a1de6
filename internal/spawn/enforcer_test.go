package spawn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/truth"
)

func newTestEnforcer(t *testing.T, aiML bool) *Enforcer {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)
	store := truth.New(d)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.AppendEvent(context.Background(), "p1",
		events.New(events.TypeProjectCreated, "p1", "alice", nil).WithRecord(&db.ProjectRow{
			ID: "p1", Name: "demo", Owner: "alice", CurrentGate: "G1",
			AIML: aiML, CreatedAt: time.Now().UTC(),
		}))
	require.NoError(t, err)

	return NewEnforcer(store, nil)
}

func TestRequiredAgentsMatrix(t *testing.T) {
	assert.Empty(t, RequiredAgents(gate.G1, false))
	assert.Equal(t, []string{AgentProductManager}, RequiredAgents(gate.G2, false))
	assert.Equal(t, []string{AgentFrontendDev, AgentBackendDev}, RequiredAgents(gate.G5, false))
	assert.Equal(t,
		[]string{AgentFrontendDev, AgentBackendDev, AgentMLEngineer, AgentPromptEngineer},
		RequiredAgents(gate.G5, true))
	assert.Equal(t, []string{AgentDevOps, AgentAIOps}, RequiredAgents(gate.G8, true))
	assert.Equal(t, []string{AgentDevOps}, RequiredAgents(gate.G9, true))
}

func TestSpawnLifecycle(t *testing.T) {
	e := newTestEnforcer(t, false)
	ctx := context.Background()

	id, err := e.RecordSpawn(ctx, "p1", AgentProductManager, gate.G2, "write the PRD")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	err = e.CompleteSpawn(ctx, id, StatusCompleted, "PRD written", []string{"proof-1"}, &TokenUsage{
		Model: "claude-sonnet-4-5", InputTokens: 1000, OutputTokens: 300,
	})
	require.NoError(t, err)

	row, err := db.GetSpawn(ctx, e.truth.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, row.Status)
	assert.Equal(t, []string{"proof-1"}, row.ProofArtifactIDs)

	// Terminal spawns are immutable.
	err = e.CompleteSpawn(ctx, id, StatusCompleted, "", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	// Token usage reached the cost ledger.
	summary, err := db.SummarizeCost(ctx, e.truth.DB(), "p1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1000), summary[0].InputTokens)
}

func TestSpawnRecordsAsSpawnedThenRuns(t *testing.T) {
	e := newTestEnforcer(t, false)
	ctx := context.Background()

	id, err := e.RecordSpawn(ctx, "p1", AgentArchitect, gate.G3, "design the system")
	require.NoError(t, err)

	row, err := db.GetSpawn(ctx, e.truth.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusSpawned, row.Status)

	require.NoError(t, e.MarkStarted(ctx, id))
	row, err = db.GetSpawn(ctx, e.truth.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, row.Status)

	// Starting twice is a conflict.
	err = e.MarkStarted(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	require.NoError(t, e.CompleteSpawn(ctx, id, StatusCompleted, "done", nil, nil))

	// A spawn that never marked running may still complete.
	id2, err := e.RecordSpawn(ctx, "p1", AgentProductManager, gate.G2, "write the PRD")
	require.NoError(t, err)
	require.NoError(t, e.CompleteSpawn(ctx, id2, StatusFailed, "", nil, nil))
}

func TestValidateForGateRequiresAllAgents(t *testing.T) {
	e := newTestEnforcer(t, false)
	ctx := context.Background()

	v, err := e.ValidateForGate(ctx, "p1", gate.G5)
	require.NoError(t, err)
	assert.False(t, v.CanPresentGate)
	assert.Contains(t, v.BlockingReason, AgentFrontendDev)
	assert.Contains(t, v.BlockingReason, AgentBackendDev)

	feID, err := e.RecordSpawn(ctx, "p1", AgentFrontendDev, gate.G5, "build UI")
	require.NoError(t, err)
	require.NoError(t, e.CompleteSpawn(ctx, feID, StatusCompleted, "", nil, nil))

	// A running backend spawn does not count.
	_, err = e.RecordSpawn(ctx, "p1", AgentBackendDev, gate.G5, "build API")
	require.NoError(t, err)

	v, err = e.ValidateForGate(ctx, "p1", gate.G5)
	require.NoError(t, err)
	assert.False(t, v.CanPresentGate)
	assert.ElementsMatch(t, []string{AgentFrontendDev, AgentBackendDev}, v.Spawned)
	assert.Equal(t, []string{AgentFrontendDev}, v.Completed)
	assert.Contains(t, v.BlockingReason, AgentBackendDev)
	assert.NotContains(t, v.BlockingReason, AgentFrontendDev)
}

func TestValidateForGateAIMLAddsAgents(t *testing.T) {
	e := newTestEnforcer(t, true)
	ctx := context.Background()

	for _, agent := range []string{AgentFrontendDev, AgentBackendDev} {
		id, err := e.RecordSpawn(ctx, "p1", agent, gate.G5, "build")
		require.NoError(t, err)
		require.NoError(t, e.CompleteSpawn(ctx, id, StatusCompleted, "", nil, nil))
	}

	v, err := e.ValidateForGate(ctx, "p1", gate.G5)
	require.NoError(t, err)
	assert.False(t, v.CanPresentGate, "AI/ML project still needs ML and Prompt engineers")
	assert.Contains(t, v.BlockingReason, AgentMLEngineer)
}

func TestGatesWithoutRequiredAgentsPass(t *testing.T) {
	e := newTestEnforcer(t, false)

	v, err := e.ValidateForGate(context.Background(), "p1", gate.G1)
	require.NoError(t, err)
	assert.True(t, v.CanPresentGate)
	assert.Empty(t, v.RequiredAgents)
}

func TestValidateBeforeGateWorkIsAHardStop(t *testing.T) {
	e := newTestEnforcer(t, false)
	ctx := context.Background()

	v, err := e.ValidateBeforeGateWork(ctx, "p1", gate.G2, "write PRD")
	require.NoError(t, err)
	assert.False(t, v.CanProceed)
	assert.Contains(t, v.RequiredAction, AgentProductManager)
	assert.Contains(t, v.ViolationIfProceed, "delegation protocol")

	id, err := e.RecordSpawn(ctx, "p1", AgentProductManager, gate.G2, "write PRD")
	require.NoError(t, err)
	require.NoError(t, e.CompleteSpawn(ctx, id, StatusCompleted, "", nil, nil))

	v, err = e.ValidateBeforeGateWork(ctx, "p1", gate.G2, "write PRD")
	require.NoError(t, err)
	assert.True(t, v.CanProceed)
}

func TestFailedSpawnDoesNotSatisfyGate(t *testing.T) {
	e := newTestEnforcer(t, false)
	ctx := context.Background()

	id, err := e.RecordSpawn(ctx, "p1", AgentProductManager, gate.G2, "write PRD")
	require.NoError(t, err)
	require.NoError(t, e.CompleteSpawn(ctx, id, StatusFailed, "context exhausted", nil, nil))

	ok, reason, err := e.CanPresentGate(ctx, "p1", gate.G2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, AgentProductManager)
}

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/config"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/proof"
	"github.com/foundrydev/foundry/internal/queue"
	"github.com/foundrydev/foundry/internal/runtime"
	"github.com/foundrydev/foundry/internal/truth"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)

	pub := events.NewMemoryPublisher()
	store := truth.New(d, truth.WithPublisher(pub))
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.WorkspaceRoot = t.TempDir()
	cfg.Orchestrator.MaxConcurrent = 3
	cfg.Orchestrator.PollInterval = 10 * time.Millisecond
	cfg.Orchestrator.StuckScanInterval = 20 * time.Millisecond

	rt := &runtime.Scripted{Chunks: []string{"task output"}}
	return New(store, pub, cfg, rt)
}

func TestCreateProjectIsIdempotent(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	p1, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)
	p2, err := c.CreateProject(ctx, "p1", "other name", "bob", false, false)
	require.NoError(t, err)
	assert.Equal(t, p1.Owner, p2.Owner)

	log, err := c.Truth.GetEventLog(ctx, "p1", db.QueryEventsOptions{
		Types: []string{string(events.TypeProjectCreated)},
	})
	require.NoError(t, err)
	assert.Len(t, log, 1)

	g, err := c.Machine.CurrentGate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, gate.G1, g.Type)
}

func TestGateApprovalWithRealCheckers(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)
	require.NoError(t, c.Machine.ApproveGate(ctx, "p1", gate.G1, "alice", "approved", "", gate.ApproveOptions{}))

	// G2 needs the Product Manager spawned and a passing prd_review proof.
	_, err = c.Machine.CanTransition(ctx, "p1", gate.G2, "alice")
	require.NoError(t, err)
	err = c.Machine.ApproveGate(ctx, "p1", gate.G2, "alice", "approved", "", gate.ApproveOptions{})
	require.Error(t, err, "G2 must not approve without proofs and spawns")

	proofPath := filepath.Join(t.TempDir(), "prd_review.md")
	require.NoError(t, os.WriteFile(proofPath, []byte("review passed"), 0o644))
	_, err = c.Proofs.Submit(ctx, proof.SubmitRequest{
		ProjectID: "p1", Gate: gate.G2, ProofType: "prd_review",
		FilePath: proofPath, PassFail: proof.Pass, CreatedBy: "Product Manager",
	})
	require.NoError(t, err)

	spawnID, err := c.Spawns.RecordSpawn(ctx, "p1", "Product Manager", gate.G2, "write the PRD")
	require.NoError(t, err)
	require.NoError(t, c.Spawns.CompleteSpawn(ctx, spawnID, "completed", "PRD written", nil, nil))

	require.NoError(t, c.Machine.ApproveGate(ctx, "p1", gate.G2, "alice", "approved", "", gate.ApproveOptions{}))

	g, err := c.Machine.CurrentGate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, gate.G3, g.Type)
}

func TestApprovalReleasesGateBlockedTasks(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)

	task, err := c.Queue.Enqueue(ctx, "p1", queue.EnqueueRequest{
		TaskType:       "scaffold",
		WorkerCategory: "generation",
		Description:    "scaffold the repo",
		GateDependency: "G1",
	})
	require.NoError(t, err)
	assert.Equal(t, queue.StatusBlocked, task.Status)

	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)

	require.NoError(t, c.Machine.ApproveGate(ctx, "p1", gate.G1, "alice", "approved", "", gate.ApproveOptions{}))

	require.Eventually(t, func() bool {
		got, err := db.GetTask(ctx, c.Truth.DB(), task.ID)
		if err != nil || got == nil {
			return false
		}
		return got.Status != queue.StatusBlocked
	}, 3*time.Second, 20*time.Millisecond, "gate approval should release the blocker")
}

func TestPoolExecutesQueuedTasks(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)

	task, err := c.Queue.Enqueue(ctx, "p1", queue.EnqueueRequest{
		TaskType:       "build",
		WorkerCategory: "generation",
		Description:    "build the service",
	})
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))
	t.Cleanup(c.Stop)

	require.Eventually(t, func() bool {
		got, err := db.GetTask(ctx, c.Truth.DB(), task.ID)
		return err == nil && got != nil && got.Status == queue.StatusComplete
	}, 3*time.Second, 20*time.Millisecond)

	workers, err := c.Workers.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, workers)
}

func TestStuckGateRetryPromotesFailedTasks(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)

	task, err := c.Queue.Enqueue(ctx, "p1", queue.EnqueueRequest{
		TaskType:       "build",
		Priority:       "low",
		WorkerCategory: "generation",
		Description:    "flaky build",
	})
	require.NoError(t, err)

	// Fail the task once by hand.
	_, err = c.Queue.Dequeue(ctx, "p1", "w1", "generation")
	require.NoError(t, err)
	require.NoError(t, c.Queue.Complete(ctx, "p1", task.ID, "w1", queue.StatusFailed, "", "compile error"))

	retried, err := c.CheckAndRetryStuckGate(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	got, err := db.GetTask(ctx, c.Truth.DB(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "medium", got.Priority, "retry promotes priority")
	assert.NotEqual(t, queue.StatusFailed, got.Status)

	log, err := c.Truth.GetEventLog(ctx, "p1", db.QueryEventsOptions{
		Types: []string{string(events.TypeSelfHealing)},
	})
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestStuckGateRetryLeavesExhaustedTasks(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)

	task, err := c.Queue.Enqueue(ctx, "p1", queue.EnqueueRequest{
		TaskType:       "build",
		WorkerCategory: "generation",
		Description:    "always fails",
		MaxAttempts:    1,
	})
	require.NoError(t, err)

	_, err = c.Queue.Dequeue(ctx, "p1", "w1", "generation")
	require.NoError(t, err)
	require.NoError(t, c.Queue.Complete(ctx, "p1", task.ID, "w1", queue.StatusFailed, "", "boom"))

	retried, err := c.CheckAndRetryStuckGate(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, retried)

	got, err := db.GetTask(ctx, c.Truth.DB(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, got.Status)
}

func TestRevisionLoopIsWired(t *testing.T) {
	c := newTestCore(t)
	ctx := context.Background()

	_, err := c.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)
	require.NotNil(t, c.Revise)

	_, err = c.Documents.Save(ctx, "p1", "prd", "# PRD", "Product Manager")
	require.NoError(t, err)

	// Gate must be in review before feedback drives a revision.
	require.NoError(t, c.Machine.ApproveGate(ctx, "p1", gate.G1, "alice", "approved", "", gate.ApproveOptions{}))
	require.NoError(t, c.Machine.TransitionToReview(ctx, "p1", gate.G2, "orchestrator", ""))

	outcome, err := c.Revise.HandleReviewMessage(ctx, "p1", gate.G2, "alice",
		"please change the summary section")
	require.NoError(t, err)
	require.NotNil(t, outcome.Document)
	assert.Equal(t, 2, outcome.Document.Version)
}

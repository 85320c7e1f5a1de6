package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/truth"
)

func newTestQueue(t *testing.T) (*Queue, *truth.Store) {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)
	store := truth.New(d)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.AppendEvent(context.Background(), "p1",
		events.New(events.TypeProjectCreated, "p1", "alice", nil).WithRecord(&db.ProjectRow{
			ID: "p1", Name: "demo", Owner: "alice", CurrentGate: "G1", CreatedAt: time.Now().UTC(),
		}))
	require.NoError(t, err)

	return New(store), store
}

func TestEnqueueAssignsIDAndQueues(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		TaskType:       "generation",
		WorkerCategory: "backend",
		Description:    "implement handlers",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, StatusQueued, task.Status)
	assert.Equal(t, string(PriorityMedium), task.Priority)
	assert.Equal(t, DefaultMaxAttempts, task.MaxAttempts)

	// Identical content yields a fresh task, never a dedup.
	again, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		TaskType:       "generation",
		WorkerCategory: "backend",
		Description:    "implement handlers",
	})
	require.NoError(t, err)
	assert.NotEqual(t, task.ID, again.ID)
}

func TestEnqueueRejectsBadPriority(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "p1", EnqueueRequest{
		Priority:       "urgent",
		WorkerCategory: "backend",
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestDequeueOrdersByPriorityThenAge(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	low, err := q.Enqueue(ctx, "p1", EnqueueRequest{Priority: "low", WorkerCategory: "backend"})
	require.NoError(t, err)
	crit, err := q.Enqueue(ctx, "p1", EnqueueRequest{Priority: "critical", WorkerCategory: "backend"})
	require.NoError(t, err)

	first, err := q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, crit.ID, first.ID)
	assert.Equal(t, StatusInProgress, first.Status)
	assert.Equal(t, "w1", first.AssignedWorker)
	assert.Equal(t, 1, first.Attempts)

	second, err := q.Dequeue(ctx, "p1", "w2", "backend")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.ID, second.ID)
}

func TestDequeueFiltersByCategory(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "frontend"})
	require.NoError(t, err)

	task, err := q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestSpecConflictSerializesDequeue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	t1, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		WorkerCategory: "backend", SpecRefs: []string{"openapi"},
	})
	require.NoError(t, err)
	t2, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		WorkerCategory: "backend", SpecRefs: []string{"openapi"},
	})
	require.NoError(t, err)

	got, err := q.Dequeue(ctx, "p1", "wA", "backend")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, t1.ID, got.ID)

	// Task 2 shares a spec ref with the in-progress task 1.
	conflicting, err := q.Dequeue(ctx, "p1", "wB", "backend")
	require.NoError(t, err)
	assert.Nil(t, conflicting)

	require.NoError(t, q.Complete(ctx, "p1", t1.ID, "wA", StatusComplete, "done", ""))

	next, err := q.Dequeue(ctx, "p1", "wB", "backend")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, t2.ID, next.ID)
}

func TestTaskDependencyBlocksUntilCompletion(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	dep, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)

	dependent, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		WorkerCategory: "backend",
		DependsOn:      []string{dep.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, dependent.Status)
	assert.Equal(t, []string{TasksBlocker([]string{dep.ID})}, dependent.Blockers)

	got, err := q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dep.ID, got.ID)

	require.NoError(t, q.Complete(ctx, "p1", dep.ID, "w1", StatusComplete, "", ""))

	refreshed, err := db.GetTask(ctx, q.truth.DB(), dependent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, refreshed.Status)
	assert.Empty(t, refreshed.Blockers)
}

func TestGateDependencyBlocksUntilApproval(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, "p1", events.New(events.TypeGateCreated, "p1", "system",
		events.Payload{"gate": "G5"}).WithRecord(&db.GateRow{
		ID: "g5", ProjectID: "p1", GateType: "G5", Status: "pending",
	}))
	require.NoError(t, err)

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		WorkerCategory: "backend",
		GateDependency: "G5",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, task.Status)
	assert.Equal(t, []string{GateBlocker("G5")}, task.Blockers)

	_, err = store.AppendEvent(ctx, "p1", events.New(events.TypeGateApproved, "p1", "alice",
		events.Payload{"gate": "G5"}).WithRecord(&db.GateRow{
		ID: "g5", ProjectID: "p1", GateType: "G5", Status: "approved", ApprovedBy: "alice",
	}))
	require.NoError(t, err)
	require.NoError(t, q.OnGateApproved(ctx, "p1", "G5"))

	refreshed, err := db.GetTask(ctx, q.truth.DB(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, refreshed.Status)

	// Re-running the pass with nothing new is a no-op.
	require.NoError(t, q.OnGateApproved(ctx, "p1", "G5"))
}

func TestGateAndTaskBlockersAreIndependent(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	_, err := store.AppendEvent(ctx, "p1", events.New(events.TypeGateCreated, "p1", "system",
		events.Payload{"gate": "G5"}).WithRecord(&db.GateRow{
		ID: "g5", ProjectID: "p1", GateType: "G5", Status: "pending",
	}))
	require.NoError(t, err)

	dep, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		WorkerCategory: "backend",
		DependsOn:      []string{dep.ID},
		GateDependency: "G5",
	})
	require.NoError(t, err)
	require.Len(t, task.Blockers, 2)

	got, err := q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, "p1", got.ID, "w1", StatusComplete, "", ""))

	// Task dependency resolved; the gate blocker remains.
	refreshed, err := db.GetTask(ctx, q.truth.DB(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, refreshed.Status)
	assert.Equal(t, []string{GateBlocker("G5")}, refreshed.Blockers)
}

func TestCheckAcyclicRejectsCycles(t *testing.T) {
	existing := []*db.TaskRow{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	err := checkAcyclic(existing, "c", []string{"a"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	require.NoError(t, checkAcyclic([]*db.TaskRow{{ID: "a"}}, "b", []string{"a"}))
}

func TestRetryPromotesPriority(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{Priority: "low", WorkerCategory: "backend"})
	require.NoError(t, err)

	got, err := q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, "p1", got.ID, "w1", StatusFailed, "", "flaky build"))

	retried, err := q.Retry(ctx, "p1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(PriorityMedium), retried.Priority)
	assert.Equal(t, StatusQueued, retried.Status)
	assert.Empty(t, retried.AssignedWorker)
}

func TestRetryCapsAtCriticalAndMaxAttempts(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{
		Priority: "critical", WorkerCategory: "backend", MaxAttempts: 2,
	})
	require.NoError(t, err)

	for range 2 {
		got, err := q.Dequeue(ctx, "p1", "w1", "backend")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NoError(t, q.Complete(ctx, "p1", got.ID, "w1", StatusFailed, "", "boom"))

		retried, retryErr := q.Retry(ctx, "p1", task.ID)
		if retryErr != nil {
			// Second failure exhausts maxAttempts.
			assert.True(t, errors.IsKind(retryErr, errors.KindPreconditionFailed))
			return
		}
		assert.Equal(t, string(PriorityCritical), retried.Priority)
	}
	t.Fatal("retry never exhausted maxAttempts")
}

func TestCompleteRequiresAssignedWorker(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)

	err = q.Complete(ctx, "p1", task.ID, "imposter", StatusComplete, "", "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPreconditionFailed))
}

func TestHistoryTracksTaskEvents(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	task, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, "p1", "w1", "backend")
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, "p1", task.ID, "w1", StatusComplete, "ok", ""))

	history, err := q.History(ctx, "p1", task.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, events.TypeTaskCreated, history[0].Type)
	assert.Equal(t, events.TypeTaskStarted, history[1].Type)
	assert.Equal(t, events.TypeTaskCompleted, history[2].Type)
}

func TestPurgeDestroysTasks(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "p1", EnqueueRequest{WorkerCategory: "backend"})
	require.NoError(t, err)

	n, err := q.Purge(ctx, "p1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	tasks, err := db.ListTasks(ctx, q.truth.DB(), "p1", "")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertProjectIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &ProjectRow{ID: "p1", Name: "demo", Owner: "alice", CurrentGate: "G1", CreatedAt: time.Now()}

	created, err := InsertProject(ctx, s, row)
	require.NoError(t, err)
	assert.True(t, created)

	// Second create with the same id is a no-op.
	row2 := &ProjectRow{ID: "p1", Name: "other", Owner: "bob", CurrentGate: "G1", CreatedAt: time.Now()}
	created, err = InsertProject(ctx, s, row2)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := GetProject(ctx, s, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, "alice", got.Owner)
}

func TestEventSeqMonotonicPerProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.RunInTx(ctx, func(tx *TxOps) error {
			seq, err := NextSeq(ctx, tx, "p1")
			if err != nil {
				return err
			}
			return InsertEvent(ctx, tx, &EventRow{
				ProjectID: "p1",
				Seq:       seq,
				Type:      "task_created",
				Actor:     "system",
				Timestamp: time.Now(),
			})
		})
		require.NoError(t, err)
	}

	// A second project starts its own sequence.
	err := s.RunInTx(ctx, func(tx *TxOps) error {
		seq, serr := NextSeq(ctx, tx, "p2")
		if serr != nil {
			return serr
		}
		assert.Equal(t, int64(1), seq)
		return InsertEvent(ctx, tx, &EventRow{ProjectID: "p2", Seq: seq, Type: "project_created", Actor: "alice", Timestamp: time.Now()})
	})
	require.NoError(t, err)

	events, err := QueryEvents(ctx, s, "p1", QueryEventsOptions{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestQueryEventsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insert := func(seq int64, typ, gateType string) {
		err := InsertEvent(ctx, s, &EventRow{
			ProjectID: "p1", Seq: seq, Type: typ, Actor: "system",
			Timestamp: time.Now(),
			Payload:   map[string]any{"gate": gateType},
		})
		require.NoError(t, err)
	}
	insert(1, "gate_approved", "G1")
	insert(2, "agent_spawned", "G2")
	insert(3, "gate_approved", "G2")

	byType, err := QueryEvents(ctx, s, "p1", QueryEventsOptions{Types: []string{"gate_approved"}})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	byGate, err := QueryEvents(ctx, s, "p1", QueryEventsOptions{Gate: "G2"})
	require.NoError(t, err)
	assert.Len(t, byGate, 2)

	seq, err := FirstSeqOfType(ctx, s, "p1", "agent_spawned", "G2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	stats, err := QueryEventStats(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByType["gate_approved"])
	assert.Equal(t, int64(3), stats.ByActor["system"])
}

func TestGateUpsertUniquePerType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &GateRow{ID: "g-1", ProjectID: "p1", GateType: "G1", Status: "pending"}
	require.NoError(t, UpsertGate(ctx, s, g))

	g.Status = "approved"
	g.ApprovedBy = "alice"
	require.NoError(t, UpsertGate(ctx, s, g))

	gates, err := ListGates(ctx, s, "p1")
	require.NoError(t, err)
	require.Len(t, gates, 1)
	assert.Equal(t, "approved", gates[0].Status)
	assert.Equal(t, "alice", gates[0].ApprovedBy)
}

func TestTaskRoundTripAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &TaskRow{
		ID: "T-1", ProjectID: "p1", TaskType: "implement", Priority: "high",
		WorkerCategory: "generation", Status: "blocked",
		Blockers: []string{"gate:G3", "tasks:T-0"},
		DependsOn: []string{"T-0"}, SpecRefs: []string{"openapi"},
		MaxAttempts: 3, CreatedAt: time.Now(),
	}
	require.NoError(t, UpsertTask(ctx, s, task))

	got, err := GetTask(ctx, s, "T-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"gate:G3", "tasks:T-0"}, got.Blockers)
	assert.Equal(t, []string{"openapi"}, got.SpecRefs)

	n, err := PurgeTasks(ctx, s, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = GetTask(ctx, s, "T-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockSpecs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, UpsertSpec(ctx, s, &SpecRow{ProjectID: "p1", SpecType: "openapi", Path: "specs/openapi.yaml", Checksum: "abc", Version: 1}))
	require.NoError(t, UpsertSpec(ctx, s, &SpecRow{ProjectID: "p1", SpecType: "prisma", Path: "specs/schema.prisma", Checksum: "def", Version: 1}))

	require.NoError(t, LockSpecs(ctx, s, "p1", "alice", time.Now()))

	specs, err := ListSpecs(ctx, s, "p1")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	for _, sp := range specs {
		assert.True(t, sp.Locked)
		assert.Equal(t, "alice", sp.LockedBy)
	}
}

func TestCostSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []*CostRow{
		{ID: "c1", ProjectID: "p1", AgentName: "Product Manager", Model: "claude-sonnet", InputTokens: 100, OutputTokens: 50, CreatedAt: time.Now()},
		{ID: "c2", ProjectID: "p1", AgentName: "Product Manager", Model: "claude-sonnet", InputTokens: 40, OutputTokens: 10, CreatedAt: time.Now()},
		{ID: "c3", ProjectID: "p1", AgentName: "Architect", Model: "gpt-4o", InputTokens: 30, OutputTokens: 5, CreatedAt: time.Now()},
	}
	for _, c := range entries {
		require.NoError(t, InsertCost(ctx, s, c))
	}

	summary, err := SummarizeCost(ctx, s, "p1")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "Architect", summary[0].AgentName)
	assert.Equal(t, int64(140), summary[1].InputTokens)
	assert.Equal(t, int64(2), summary[1].Entries)
}

package spec

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

func newTestRegistry(t *testing.T) (*Registry, *truth.Store) {
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

	return NewRegistry(store, nil), store
}

func TestRegisterComputesChecksum(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	row, err := r.Register(ctx, "p1", "openapi", "specs/api.yaml", []byte("openapi: 3.1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, row.Version)
	assert.Len(t, row.Checksum, 64)

	ok, err := r.Verify(ctx, "p1", "openapi", []byte("openapi: 3.1.0\n"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Verify(ctx, "p1", "openapi", []byte("openapi: 3.0.0\n"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReRegisterBumpsVersionWhileUnlocked(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "p1", "prisma", "specs/schema.prisma", []byte("model User {}"))
	require.NoError(t, err)

	row, err := r.Register(ctx, "p1", "prisma", "specs/schema.prisma", []byte("model User { id Int }"))
	require.NoError(t, err)
	assert.Equal(t, 2, row.Version)

	got, err := r.Get(ctx, "p1", "prisma")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestRegisterAfterLockIsRejectedWithoutEvents(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "p1", "openapi", "specs/api.yaml", []byte("openapi: 3.1.0\n"))
	require.NoError(t, err)

	_, err = store.AppendEvent(ctx, "p1",
		events.New(events.TypeSpecLocked, "p1", "alice", nil))
	require.NoError(t, err)

	before, err := store.GetEventLog(ctx, "p1", db.QueryEventsOptions{})
	require.NoError(t, err)

	_, err = r.Register(ctx, "p1", "openapi", "specs/api.yaml", []byte("openapi: 3.2.0\n"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	after, err := store.GetEventLog(ctx, "p1", db.QueryEventsOptions{})
	require.NoError(t, err)
	assert.Len(t, after, len(before), "rejected registration must not append events")

	got, err := r.Get(ctx, "p1", "openapi")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Locked)
}

func TestNewSpecTypeIsRejectedAfterLock(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, "p1", "openapi", "specs/api.yaml", []byte("openapi: 3.1.0\n"))
	require.NoError(t, err)

	_, err = store.AppendEvent(ctx, "p1",
		events.New(events.TypeSpecLocked, "p1", "alice", nil))
	require.NoError(t, err)

	before, err := store.GetEventLog(ctx, "p1", db.QueryEventsOptions{})
	require.NoError(t, err)

	// The lock is project-wide: a type with no pre-lock row is refused
	// just like a locked row.
	_, err = r.Register(ctx, "p1", "prisma", "specs/schema.prisma", []byte("model User {}"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	after, err := store.GetEventLog(ctx, "p1", db.QueryEventsOptions{})
	require.NoError(t, err)
	assert.Len(t, after, len(before), "rejected registration must not append events")

	rows, err := r.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "openapi", rows[0].SpecType)
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register(context.Background(), "p1", "graphql", "specs/schema.graphql", nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestLockedReportsAllSpecs(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	locked, err := r.Locked(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, locked, "no specs means nothing is locked")

	_, err = r.Register(ctx, "p1", "openapi", "specs/api.yaml", []byte("a"))
	require.NoError(t, err)
	_, err = r.Register(ctx, "p1", "zod", "specs/schemas.ts", []byte("b"))
	require.NoError(t, err)

	locked, err = r.Locked(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, locked)

	_, err = store.AppendEvent(ctx, "p1",
		events.New(events.TypeSpecLocked, "p1", "alice", nil))
	require.NoError(t, err)

	locked, err = r.Locked(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, locked)
}

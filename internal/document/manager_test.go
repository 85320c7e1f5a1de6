package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
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

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
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

	return NewManager(store, opts...)
}

func TestSaveVersionsAreAppendOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	v1, err := m.Save(ctx, "p1", TypePRD, "# PRD\n\nfirst draft", "pm-agent")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)

	v2, err := m.Save(ctx, "p1", TypePRD, "# PRD\n\nsecond draft", "pm-agent")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	latest, err := m.Latest(ctx, "p1", TypePRD)
	require.NoError(t, err)
	assert.Equal(t, "# PRD\n\nsecond draft", latest.Content)

	all, err := m.List(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, all, 2, "revisions never replace earlier versions")
}

func TestSaveEmitsCreatedThenRevised(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Save(ctx, "p1", TypeArchitecture, "v1", "architect-agent")
	require.NoError(t, err)
	_, err = m.Save(ctx, "p1", TypeArchitecture, "v2", "architect-agent")
	require.NoError(t, err)

	log, err := m.truth.GetEventLog(ctx, "p1", db.QueryEventsOptions{
		Types: []string{string(events.TypeDocumentCreated), string(events.TypeDocumentRevised)},
	})
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, events.TypeDocumentCreated, log[0].Type)
	assert.Equal(t, events.TypeDocumentRevised, log[1].Type)
}

func TestLatestUnknownTypeIsNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Latest(context.Background(), "p1", TypeDesign)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestWorkspaceMirror(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, WithRoot(root))
	ctx := context.Background()

	_, err := m.Save(ctx, "p1", TypePRD, "draft one", "pm-agent")
	require.NoError(t, err)
	_, err = m.Save(ctx, "p1", TypePRD, "draft two", "pm-agent")
	require.NoError(t, err)

	current, err := os.ReadFile(filepath.Join(root, "p1", "docs", "prd.md"))
	require.NoError(t, err)
	assert.Equal(t, "draft two", string(current))

	v1, err := os.ReadFile(filepath.Join(root, "p1", "docs", "prd.v1.md"))
	require.NoError(t, err)
	assert.Equal(t, "draft one", string(v1))
}

func TestSyncWorkspaceRebuildsMirror(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, WithRoot(root))
	ctx := context.Background()

	_, err := m.Save(ctx, "p1", TypePRD, "content", "pm-agent")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "p1")))
	require.NoError(t, m.SyncWorkspace(ctx, "p1"))

	current, err := os.ReadFile(filepath.Join(root, "p1", "docs", "prd.md"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(current))
}

func TestChangeRequestLogAppends(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, WithRoot(root))
	ctx := context.Background()

	require.NoError(t, m.AppendChangeRequest(ctx, "p1", "G2", "alice", "move pricing above the fold"))
	require.NoError(t, m.AppendChangeRequest(ctx, "p1", "G2", "alice", "drop the carousel"))

	data, err := os.ReadFile(filepath.Join(root, "p1", "docs", changeRequestsFile))
	require.NoError(t, err)
	text := string(data)
	first := strings.Index(text, "move pricing above the fold")
	second := strings.Index(text, "drop the carousel")
	assert.True(t, first >= 0 && second > first, "entries append in order")

	log, err := m.truth.GetEventLog(ctx, "p1", db.QueryEventsOptions{
		Types: []string{string(events.TypeHumanInput)},
	})
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestTypeForGate(t *testing.T) {
	assert.Equal(t, TypePRD, TypeForGate(gate.G2))
	assert.Equal(t, TypeArchitecture, TypeForGate(gate.G3))
	assert.Equal(t, TypeDesign, TypeForGate(gate.G4))
	assert.Empty(t, TypeForGate(gate.G5))
}

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/config"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/orchestrator"
	"github.com/foundrydev/foundry/internal/queue"
	"github.com/foundrydev/foundry/internal/tool"
	"github.com/foundrydev/foundry/internal/truth"
)

func newTestGateway(t *testing.T) (*Gateway, *orchestrator.Core, *httptest.Server) {
	t.Helper()
	d, err := db.OpenInMemory()
	require.NoError(t, err)
	pub := events.NewMemoryPublisher()
	store := truth.New(d, truth.WithPublisher(pub))
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.WorkspaceRoot = t.TempDir()
	core := orchestrator.New(store, pub, cfg, nil)
	g := New(core, tool.NewCatalog(core), pub, nil)

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, core, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestToolInvocationOverHTTP(t *testing.T) {
	_, _, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/tools/project_create",
		`{"project_id":"p1","name":"demo","owner":"alice"}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stateResp, err := http.Get(srv.URL + "/api/projects/p1/state")
	require.NoError(t, err)
	defer func() { _ = stateResp.Body.Close() }()
	require.Equal(t, http.StatusOK, stateResp.StatusCode)

	var snap truth.Snapshot
	require.NoError(t, json.NewDecoder(stateResp.Body).Decode(&snap))
	require.NotNil(t, snap.Project)
	assert.Equal(t, "alice", snap.Project.Owner)
}

func TestErrorsCarryTheirHTTPStatus(t *testing.T) {
	_, _, srv := newTestGateway(t)

	// Missing required field -> 400 with field issues.
	resp := postJSON(t, srv.URL+"/api/tools/project_create", `{"name":"demo"}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "project_id")

	// Unknown tool -> 404.
	resp = postJSON(t, srv.URL+"/api/tools/nope", `{}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAmbiguousApprovalMapsTo400(t *testing.T) {
	_, _, srv := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/api/tools/project_create",
		`{"project_id":"p1","owner":"alice"}`)
	_ = resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/tools/gate_approve",
		`{"project_id":"p1","gate":"G1","actor":"alice","response":"ok"}`)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "approved")
}

func TestWebsocketStreamsProjectEvents(t *testing.T) {
	_, core, srv := newTestGateway(t)
	ctx := context.Background()

	_, err := core.CreateProject(ctx, "p1", "demo", "alice", false, false)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/projects/p1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = core.Queue.Enqueue(ctx, "p1", queue.EnqueueRequest{
		TaskType: "build", WorkerCategory: "generation", Description: "x",
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "p1", e.ProjectID)
	assert.Equal(t, events.TypeTaskCreated, e.Type)
}

func TestToolCatalogListing(t *testing.T) {
	_, _, srv := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/api/tools")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tools []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tools))
	assert.NotEmpty(t, tools)
}

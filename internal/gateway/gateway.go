// Package gateway exposes the workflow core over HTTP: a JSON API for
// the tool catalog and project state, and a websocket stream of
// per-project events.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	stderrors "errors"

	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/orchestrator"
	"github.com/foundrydev/foundry/internal/tool"
)

// maxToolBody caps tool argument payloads.
const maxToolBody = 1 << 20

// Gateway serves the HTTP and websocket surfaces.
type Gateway struct {
	core    *orchestrator.Core
	catalog *tool.Catalog
	pub     events.Publisher
	logger  *slog.Logger
}

// New creates a gateway over a core and its tool catalog.
func New(core *orchestrator.Core, catalog *tool.Catalog, pub events.Publisher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{core: core, catalog: catalog, pub: pub, logger: logger}
}

// Handler builds the route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", g.handleHealth)
	mux.HandleFunc("GET /api/tools", g.handleToolList)
	mux.HandleFunc("POST /api/tools/{name}", g.handleToolInvoke)
	mux.HandleFunc("GET /api/projects/{id}/state", g.handleState)
	mux.HandleFunc("GET /api/projects/{id}/events", g.handleEvents)
	mux.HandleFunc("GET /ws/projects/{id}", g.handleWS)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.catalog.Registry().List())
}

func (g *Gateway) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxToolBody))
	if err != nil {
		g.writeError(w, errors.Upstream("read request body", err))
		return
	}
	result, err := g.catalog.Invoke(r.Context(), name, body)
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := g.core.Truth.GetState(r.Context(), r.PathValue("id"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	log, err := g.core.Truth.GetEventLog(r.Context(), r.PathValue("id"), eventQuery(r))
	if err != nil {
		g.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// writeError maps the error taxonomy onto HTTP statuses. Structured
// errors serialize with their kind and field issues.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	var fe *errors.Error
	if stderrors.As(err, &fe) {
		writeJSON(w, fe.HTTPStatus(), map[string]any{"error": fe})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": map[string]string{"what": err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foundrydev/foundry/internal/db"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway binds to localhost; cross-origin browsers connect
	// through the same host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams a project's events over a websocket. Each frame is
// one event encoded as JSON, in seq order from the subscription point.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ch := g.pub.Subscribe(projectID)
	defer g.pub.Unsubscribe(projectID, ch)

	// Drain client frames so close/ping control messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

// eventQuery builds event log filters from query parameters.
func eventQuery(r *http.Request) db.QueryEventsOptions {
	q := r.URL.Query()
	opts := db.QueryEventsOptions{
		Gate:   q.Get("gate"),
		TaskID: q.Get("task_id"),
	}
	if types, ok := q["type"]; ok {
		opts.Types = types
	}
	if after := q.Get("after_seq"); after != "" {
		if n, err := strconv.ParseInt(after, 10, 64); err == nil {
			opts.AfterSeq = n
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	return opts
}

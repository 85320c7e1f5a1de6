package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/events"
)

func TestObserveCountsByEventType(t *testing.T) {
	c := NewCollector()

	c.Observe(events.New(events.TypeGateApproved, "p1", "alice", events.Payload{"gate": "G2"}))
	c.Observe(events.New(events.TypeGateApproved, "p1", "alice", events.Payload{"gate": "G3"}))
	c.Observe(events.New(events.TypeGateRejected, "p1", "alice", nil))
	c.Observe(events.New(events.TypeTaskCompleted, "p1", "w1", nil))
	c.Observe(events.New(events.TypeTaskFailed, "p1", "w1", nil))
	c.Observe(events.New(events.TypeIntegrityViolation, "p1", "watcher", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatesApproved.WithLabelValues("G2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gatesRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tasksFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.proofsFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues(string(events.TypeGateApproved))))
}

func TestTokenUsageFromAgentCompletion(t *testing.T) {
	c := NewCollector()

	c.Observe(events.New(events.TypeAgentCompleted, "p1", "Architect", events.Payload{
		"token_usage": map[string]any{
			"model":         "claude-sonnet-4-5",
			"input_tokens":  float64(1200),
			"output_tokens": float64(800),
		},
	}))

	assert.Equal(t, 1200.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("claude-sonnet-4-5", "input")))
	assert.Equal(t, 800.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("claude-sonnet-4-5", "output")))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector()
	c.Observe(events.New(events.TypeTaskCompleted, "p1", "w1", nil))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package proof

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gate"
)

// syncWriter guards a buffer written from the watcher goroutine.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestWatcherDetectsTamperedEvidence(t *testing.T) {
	l, store := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeEvidence(t, "all tests passed")
	id, err := l.Submit(ctx, SubmitRequest{
		ProjectID: "p1", Gate: gate.G5, ProofType: "test_output",
		FilePath: path, PassFail: Pass, CreatedBy: "QA Engineer",
	})
	require.NoError(t, err)

	logs := &syncWriter{}
	w, err := NewWatcher(l, slog.New(slog.NewTextHandler(logs, nil)))
	require.NoError(t, err)
	require.NoError(t, w.TrackProject(ctx, "p1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(path, []byte("all tests passed, trust me"), 0o644))

	assert.Eventually(t, func() bool {
		log, err := store.GetEventLog(ctx, "p1", db.QueryEventsOptions{
			Types: []string{string(events.TypeIntegrityViolation)},
		})
		if err != nil {
			return false
		}
		for _, e := range log {
			if e.Str("artifact_id") == id {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	// The warning carries the structured integrity error.
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "failed integrity verification")
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	var mu sync.Mutex
	fired := map[string]int{}
	deb := newDebouncer(50*time.Millisecond, func(path string) {
		mu.Lock()
		fired[path]++
		mu.Unlock()
	})
	defer deb.stop()

	for range 10 {
		deb.trigger("a.log")
	}
	deb.trigger("b.log")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired["a.log"] == 1 && fired["b.log"] == 1
	}, time.Second, 10*time.Millisecond)

	// No further fires after the quiet period.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired["a.log"])
}

func TestDebouncerStopDropsPending(t *testing.T) {
	var mu sync.Mutex
	count := 0
	deb := newDebouncer(30*time.Millisecond, func(string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	deb.trigger("a.log")
	deb.stop()
	deb.trigger("b.log")

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

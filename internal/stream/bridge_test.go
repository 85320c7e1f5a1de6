package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/runtime"
)

func TestExecutionIDReturnsBeforeOutput(t *testing.T) {
	rt := &runtime.Scripted{Chunks: []string{"a", "b", "c"}}
	b := NewBridge(rt, nil)

	id, err := b.Execute(context.Background(), runtime.Request{Model: "claude-sonnet-4-5", UserPrompt: "go"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	result, err := b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Content)
}

func TestSubscriberReceivesChunksInOrder(t *testing.T) {
	rt := &runtime.Scripted{Chunks: []string{"one ", "two ", "three"}}
	b := NewBridge(rt, nil)

	var mu sync.Mutex
	var chunks []string
	var completed int
	done := make(chan struct{})

	id, err := b.Execute(context.Background(), runtime.Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	_, err = b.Subscribe(id, Callbacks{
		OnChunk: func(c string) {
			mu.Lock()
			chunks = append(chunks, c)
			mu.Unlock()
		},
		OnComplete: func(runtime.Result) {
			mu.Lock()
			completed++
			mu.Unlock()
			close(done)
		},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("execution never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	// Subscription may attach after the first chunks; order must hold
	// for whatever was received.
	assert.Subset(t, []string{"one ", "two ", "three"}, chunks)
	assert.Equal(t, 1, completed)
}

func TestErrorFiresOnceAndStopsChunks(t *testing.T) {
	rt := &runtime.Scripted{Chunks: []string{"partial"}, FailWith: errors.Transient("overloaded", nil)}
	b := NewBridge(rt, nil)

	id, err := b.Execute(context.Background(), runtime.Request{Model: "gpt-4o"})
	require.NoError(t, err)

	_, err = b.Await(context.Background(), id)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTransient))

	// Late subscriber gets the terminal error immediately, no chunks.
	var chunks, errored int
	_, err = b.Subscribe(id, Callbacks{
		OnChunk: func(string) { chunks++ },
		OnError: func(error) { errored++ },
	})
	require.NoError(t, err)
	assert.Zero(t, chunks)
	assert.Equal(t, 1, errored)
}

func TestCancelSuppressesSubsequentCallbacks(t *testing.T) {
	rt := &runtime.Scripted{Chunks: []string{"x"}}
	b := NewBridge(rt, nil)

	id, err := b.Execute(context.Background(), runtime.Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	var called int
	cancel, err := b.Subscribe(id, Callbacks{
		OnChunk:    func(string) { called++ },
		OnComplete: func(runtime.Result) { called++ },
	})
	require.NoError(t, err)
	cancel()

	_, err = b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, called, "cancelled subscriber must not be called")
}

func TestConcurrentExecutionsAreIndependent(t *testing.T) {
	rt := &runtime.Scripted{Chunks: []string{"out"}}
	b := NewBridge(rt, nil)
	ctx := context.Background()

	id1, err := b.Execute(ctx, runtime.Request{Model: "claude-sonnet-4-5", UserPrompt: "a"})
	require.NoError(t, err)
	id2, err := b.Execute(ctx, runtime.Request{Model: "claude-sonnet-4-5", UserPrompt: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	r1, err := b.Await(ctx, id1)
	require.NoError(t, err)
	r2, err := b.Await(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "out", r1.Content)
	assert.Equal(t, "out", r2.Content)

	reqs := rt.Requests()
	require.Len(t, reqs, 2)
}

func TestSubscribeUnknownExecution(t *testing.T) {
	b := NewBridge(&runtime.Scripted{}, nil)

	_, err := b.Subscribe("nope", Callbacks{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

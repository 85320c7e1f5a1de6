// Package stream provides the execution bridge over the agent
// runtime: executions get a persistent id before any output arrives,
// and incremental output is multicast to subscriber callbacks.
//
// Callback contract per execution: chunks are delivered in arrival
// order, exactly one of OnComplete or OnError fires, and all callbacks
// are serialized with respect to one another. Different executions run
// concurrently. Cancelling a subscription never interrupts an
// in-flight callback but suppresses all subsequent ones.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/foundrydev/foundry/internal/errors"
	"github.com/foundrydev/foundry/internal/runtime"
)

// Callbacks receive an execution's output. Nil members are skipped.
type Callbacks struct {
	OnChunk    func(chunk string)
	OnComplete func(result runtime.Result)
	OnError    func(err error)
}

// Bridge multiplexes agent executions to subscribers.
type Bridge struct {
	runtime runtime.AgentRuntime
	logger  *slog.Logger

	mu         sync.Mutex
	executions map[string]*execution
}

// NewBridge creates a bridge over the given runtime.
func NewBridge(rt runtime.AgentRuntime, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		runtime:    rt,
		logger:     logger,
		executions: make(map[string]*execution),
	}
}

type execution struct {
	id string

	// Serializes callback dispatch and subscription changes.
	mu      sync.Mutex
	subs    map[int]Callbacks
	nextSub int

	done   bool
	result *runtime.Result
	err    error
	finish chan struct{}
}

// Execute starts an agent execution and returns its id immediately,
// before any output streams. Subscribers attached under the same id
// receive the output.
func (b *Bridge) Execute(ctx context.Context, req runtime.Request) (string, error) {
	events, err := b.runtime.Execute(ctx, req)
	if err != nil {
		return "", err
	}

	exec := &execution{
		id:     uuid.NewString(),
		subs:   make(map[int]Callbacks),
		finish: make(chan struct{}),
	}
	b.mu.Lock()
	b.executions[exec.id] = exec
	b.mu.Unlock()

	go b.pump(exec, events)
	return exec.id, nil
}

// pump dispatches runtime events to subscribers until the terminal
// event.
func (b *Bridge) pump(exec *execution, events <-chan runtime.Event) {
	for e := range events {
		switch e.Type {
		case runtime.EventChunk:
			exec.mu.Lock()
			for _, cb := range exec.subs {
				if cb.OnChunk != nil {
					cb.OnChunk(e.Text)
				}
			}
			exec.mu.Unlock()

		case runtime.EventComplete:
			exec.mu.Lock()
			exec.done = true
			exec.result = e.Result
			for _, cb := range exec.subs {
				if cb.OnComplete != nil {
					cb.OnComplete(*e.Result)
				}
			}
			exec.subs = map[int]Callbacks{}
			close(exec.finish)
			exec.mu.Unlock()
			return

		case runtime.EventError:
			exec.mu.Lock()
			exec.done = true
			exec.err = e.Err
			for _, cb := range exec.subs {
				if cb.OnError != nil {
					cb.OnError(e.Err)
				}
			}
			exec.subs = map[int]Callbacks{}
			close(exec.finish)
			exec.mu.Unlock()
			b.logger.Warn("execution failed", "execution", exec.id, "error", e.Err)
			return
		}
	}
	// Channel closed without a terminal event: treat as failure.
	exec.mu.Lock()
	if !exec.done {
		exec.done = true
		exec.err = errors.Upstream("execution stream ended without result", nil)
		for _, cb := range exec.subs {
			if cb.OnError != nil {
				cb.OnError(exec.err)
			}
		}
		exec.subs = map[int]Callbacks{}
		close(exec.finish)
	}
	exec.mu.Unlock()
}

// Subscribe attaches callbacks to an execution and returns a cancel
// function. Subscribing after the terminal event fires the terminal
// callback immediately.
func (b *Bridge) Subscribe(executionID string, cb Callbacks) (cancel func(), err error) {
	b.mu.Lock()
	exec, ok := b.executions[executionID]
	b.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("execution", executionID)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()

	if exec.done {
		switch {
		case exec.err != nil && cb.OnError != nil:
			cb.OnError(exec.err)
		case exec.result != nil && cb.OnComplete != nil:
			cb.OnComplete(*exec.result)
		}
		return func() {}, nil
	}

	id := exec.nextSub
	exec.nextSub++
	exec.subs[id] = cb
	return func() {
		exec.mu.Lock()
		delete(exec.subs, id)
		exec.mu.Unlock()
	}, nil
}

// Await blocks until the execution finishes and returns its result.
func (b *Bridge) Await(ctx context.Context, executionID string) (*runtime.Result, error) {
	b.mu.Lock()
	exec, ok := b.executions[executionID]
	b.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("execution", executionID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-exec.finish:
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.err != nil {
		return nil, exec.err
	}
	return exec.result, nil
}

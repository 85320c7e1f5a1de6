package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundrydev/foundry/internal/errors"
)

// prefixOnly wraps Scripted with a real prefix check for router tests.
type prefixOnly struct {
	Scripted
	prefix string
}

func (p *prefixOnly) Supports(model string) bool { return hasPrefix(model, p.prefix) }

func TestRouterDispatchesByModelPrefix(t *testing.T) {
	claude := &prefixOnly{prefix: "claude-"}
	gpt := &prefixOnly{prefix: "gpt-"}
	r := NewRouter(claude, gpt)
	ctx := context.Background()

	ch, err := r.Execute(ctx, Request{Model: "claude-sonnet-4-5", UserPrompt: "hi"})
	require.NoError(t, err)
	drain(ch)
	ch, err = r.Execute(ctx, Request{Model: "gpt-4o", UserPrompt: "hi"})
	require.NoError(t, err)
	drain(ch)

	assert.Len(t, claude.Requests(), 1)
	assert.Len(t, gpt.Requests(), 1)
}

func TestRouterRejectsUnknownModel(t *testing.T) {
	r := NewRouter(&prefixOnly{prefix: "claude-"})

	_, err := r.Execute(context.Background(), Request{Model: "mistral-large"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))

	_, err = r.Execute(context.Background(), Request{})
	require.Error(t, err)
}

func TestScriptedStreamsChunksThenCompletes(t *testing.T) {
	s := &Scripted{Chunks: []string{"hello ", "world"}, InputTokens: 10, OutputTokens: 2}

	ch, err := s.Execute(context.Background(), Request{Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	var text string
	var result *Result
	for e := range ch {
		switch e.Type {
		case EventChunk:
			text += e.Text
		case EventComplete:
			result = e.Result
		case EventError:
			t.Fatalf("unexpected error: %v", e.Err)
		}
	}
	assert.Equal(t, "hello world", text)
	require.NotNil(t, result)
	assert.Equal(t, "hello world", result.Content)
	assert.Equal(t, int64(10), result.Usage.InputTokens)
	assert.Equal(t, "stop", result.FinishReason)
}

func TestScriptedFailure(t *testing.T) {
	s := &Scripted{Chunks: []string{"partial"}, FailWith: errors.Transient("model overloaded", nil)}

	ch, err := s.Execute(context.Background(), Request{Model: "gpt-4o"})
	require.NoError(t, err)

	var failed error
	for e := range ch {
		if e.Type == EventError {
			failed = e.Err
		}
	}
	require.Error(t, failed)
	assert.True(t, errors.IsKind(failed, errors.KindTransient))
}

func drain(ch <-chan Event) {
	for range ch {
	}
}

package runtime

import (
	"context"
	"sync"

	"github.com/foundrydev/foundry/internal/errors"
)

// Scripted is a runtime fake for tests and dry runs: it replays canned
// chunks for each execution and records the requests it received.
type Scripted struct {
	// Chunks replayed per execution. When Responses is set, entries
	// are consumed in order instead.
	Chunks []string
	// FailWith, when set, ends each execution with an error after the
	// chunks.
	FailWith error
	// Token counts reported in the final usage.
	InputTokens, OutputTokens int64

	mu       sync.Mutex
	requests []Request
}

// Supports always reports true; the scripted runtime serves any model.
func (s *Scripted) Supports(string) bool { return true }

// Requests returns the executions observed so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Execute replays the script.
func (s *Scripted) Execute(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		return nil, errors.InvalidInput("execution", errors.FieldIssue{
			Field: "model", Message: "required",
		})
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	out := make(chan Event)
	go func() {
		defer close(out)
		var content string
		for _, chunk := range s.Chunks {
			select {
			case <-ctx.Done():
				out <- Event{Type: EventError, Err: ctx.Err()}
				return
			case out <- Event{Type: EventChunk, Text: chunk}:
				content += chunk
			}
		}
		if s.FailWith != nil {
			out <- Event{Type: EventError, Err: s.FailWith}
			return
		}
		out <- Event{Type: EventComplete, Result: &Result{
			Content: content,
			Usage: Usage{
				Model:        req.Model,
				InputTokens:  s.InputTokens,
				OutputTokens: s.OutputTokens,
			},
			FinishReason: "stop",
		}}
	}()
	return out, nil
}

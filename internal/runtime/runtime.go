// Package runtime abstracts the external agent model providers behind
// a single Execute contract. The router picks a provider by model name
// prefix; each provider turns its SDK's stream into the common event
// channel consumed by the streaming bridge.
package runtime

import (
	"context"
	"strings"

	"github.com/foundrydev/foundry/internal/errors"
)

// Request describes one agent execution.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int64
}

// Usage reports token consumption for a completed execution.
type Usage struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Result is the terminal payload of a successful execution.
type Result struct {
	Content      string `json:"content"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"`
}

// EventType discriminates stream events.
type EventType int

const (
	// EventChunk carries incremental text output.
	EventChunk EventType = iota
	// EventComplete carries the final result. Terminal.
	EventComplete
	// EventError carries a failure. Terminal.
	EventError
)

// Event is one item on an execution stream. Exactly one terminal
// event is sent, after which the channel is closed.
type Event struct {
	Type   EventType
	Text   string
	Result *Result
	Err    error
}

// AgentRuntime executes one agent request, streaming output.
type AgentRuntime interface {
	Execute(ctx context.Context, req Request) (<-chan Event, error)
}

// Provider is a runtime bound to one model family.
type Provider interface {
	AgentRuntime
	// Supports reports whether this provider serves the model.
	Supports(model string) bool
}

// Router dispatches requests to the first provider supporting the
// requested model.
type Router struct {
	providers []Provider
}

// NewRouter creates a router over the given providers, consulted in
// order.
func NewRouter(providers ...Provider) *Router {
	return &Router{providers: providers}
}

// Execute routes the request. Unknown model prefixes fail before any
// provider is contacted.
func (r *Router) Execute(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Model == "" {
		return nil, errors.InvalidInput("execution", errors.FieldIssue{
			Field: "model", Message: "required",
		})
	}
	for _, p := range r.providers {
		if p.Supports(req.Model) {
			return p.Execute(ctx, req)
		}
	}
	return nil, errors.InvalidInput("execution", errors.FieldIssue{
		Field: "model", Message: "no provider for model " + req.Model,
	})
}

// hasPrefix is a tiny helper shared by providers.
func hasPrefix(model, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(model), prefix)
}

package runtime

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/foundrydev/foundry/internal/errors"
)

// AnthropicProvider serves claude- models via the Anthropic Messages
// API.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider with the given API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client}
}

// Supports reports true for claude- models.
func (p *AnthropicProvider) Supports(model string) bool {
	return hasPrefix(model, "claude-")
}

// Execute streams a Messages API call, forwarding text deltas as
// chunks and accumulating the final message for the terminal event.
func (p *AnthropicProvider) Execute(ctx context.Context, req Request) (<-chan Event, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	out := make(chan Event)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)
		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				out <- Event{Type: EventError, Err: errors.Upstream("accumulate stream event", err)}
				return
			}
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					out <- Event{Type: EventChunk, Text: delta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Event{Type: EventError, Err: errors.Upstream("anthropic stream", err)}
			return
		}

		var content string
		for _, block := range message.Content {
			if block.Type == "text" {
				content += block.Text
			}
		}
		out <- Event{Type: EventComplete, Result: &Result{
			Content: content,
			Usage: Usage{
				Model:        req.Model,
				InputTokens:  message.Usage.InputTokens,
				OutputTokens: message.Usage.OutputTokens,
			},
			FinishReason: string(message.StopReason),
		}}
	}()
	return out, nil
}

package runtime

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	fnderrors "github.com/foundrydev/foundry/internal/errors"
)

// OpenAIProvider serves gpt- models via the Chat Completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// Supports reports true for gpt- models.
func (p *OpenAIProvider) Supports(model string) bool {
	return hasPrefix(model, "gpt-")
}

// Execute streams a chat completion, forwarding content deltas as
// chunks. Usage arrives on the final stream chunk.
func (p *OpenAIProvider) Execute(ctx context.Context, req Request) (<-chan Event, error) {
	maxTokens := int(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.UserPrompt,
	})

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         req.Model,
		MaxTokens:     maxTokens,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fnderrors.Upstream("openai stream", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		var content strings.Builder
		var usage Usage
		finishReason := "stop"
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				out <- Event{Type: EventError, Err: fnderrors.Upstream("openai stream", err)}
				return
			}
			if resp.Usage != nil {
				usage.InputTokens = int64(resp.Usage.PromptTokens)
				usage.OutputTokens = int64(resp.Usage.CompletionTokens)
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					content.WriteString(choice.Delta.Content)
					out <- Event{Type: EventChunk, Text: choice.Delta.Content}
				}
				if choice.FinishReason != "" {
					finishReason = string(choice.FinishReason)
				}
			}
		}
		usage.Model = req.Model
		out <- Event{Type: EventComplete, Result: &Result{
			Content:      content.String(),
			Usage:        usage,
			FinishReason: finishReason,
		}}
	}()
	return out, nil
}

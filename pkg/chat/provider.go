package chat

import (
	"context"
	"fmt"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// AssistantTurn is one model reply: final text, or tool calls with optional
// informational text.
type AssistantTurn struct {
	Text      string              `json:"text,omitempty"`
	ToolCalls []llmtypes.ToolCall `json:"tool_calls,omitempty"`
	Usage     *llmtypes.Usage     `json:"usage,omitempty"`
}

// Final reports whether the turn ends the model's work on the user message.
func (t *AssistantTurn) Final() bool {
	return len(t.ToolCalls) == 0
}

// Provider produces the next assistant turn for a conversation.
type Provider interface {
	Send(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*AssistantTurn, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*AssistantTurn, error)

func (f ProviderFunc) Send(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*AssistantTurn, error) {
	return f(ctx, messages, catalogue)
}

// ModelProvider implements Provider over any llmtypes.Model.
type ModelProvider struct {
	Model llmtypes.Model
	// Options are passed on every call, e.g. temperature or max tokens
	Options []llmtypes.CallOption
	// OnChunk, when set, receives streamed text as it arrives
	OnChunk func(text string)
}

// NewModelProvider wraps model.
func NewModelProvider(model llmtypes.Model, options ...llmtypes.CallOption) *ModelProvider {
	return &ModelProvider{Model: model, Options: options}
}

// Send implements Provider.
func (p *ModelProvider) Send(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*AssistantTurn, error) {
	opts := append([]llmtypes.CallOption{}, p.Options...)
	if len(catalogue) > 0 {
		opts = append(opts, llmtypes.WithTools(tools.LLMTools(catalogue)))
	}

	var drained chan struct{}
	if p.OnChunk != nil {
		stream := make(chan llmtypes.StreamChunk, 16)
		drained = make(chan struct{})
		go func() {
			defer close(drained)
			for chunk := range stream {
				if chunk.Type == llmtypes.StreamChunkTypeContent && chunk.Content != "" {
					p.OnChunk(chunk.Content)
				}
			}
		}()
		opts = append(opts, llmtypes.WithStreamingChan(stream))
	}

	resp, err := p.Model.GenerateContent(ctx, messages, opts...)
	if drained != nil {
		<-drained
	}
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, llmtypes.MalformedResponse(p.Model.GetModelID(), "response has no choices")
	}

	choice := resp.Choices[0]
	turn := &AssistantTurn{Text: choice.Content, Usage: resp.Usage}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
			return nil, llmtypes.MalformedResponse(p.Model.GetModelID(), "tool call %q has no function name", tc.ID)
		}
		turn.ToolCalls = append(turn.ToolCalls, tc)
	}
	return turn, nil
}

// String describes the provider for logs.
func (p *ModelProvider) String() string {
	return fmt.Sprintf("model %s", p.Model.GetModelID())
}

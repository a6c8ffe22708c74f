package llmproviders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const (
	defaultMaxRetries = 2
	retryBaseDelay    = 500 * time.Millisecond
	retryMaxDelay     = 8 * time.Second
)

// ProviderAwareLLM is a wrapper around llmtypes.Model that knows its provider.
// It retries transient provider errors and emits generation events.
type ProviderAwareLLM struct {
	llmtypes.Model
	provider     Provider
	modelID      string
	temperature  float64
	maxRetries   int
	eventEmitter interfaces.EventEmitter
	traceID      interfaces.TraceID
	logger       interfaces.Logger
}

// NewProviderAwareLLM creates a new provider-aware LLM wrapper
func NewProviderAwareLLM(llm llmtypes.Model, provider Provider, modelID string, config Config) *ProviderAwareLLM {
	logger := config.Logger
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	maxRetries := config.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	return &ProviderAwareLLM{
		Model:        llm,
		provider:     provider,
		modelID:      modelID,
		temperature:  config.Temperature,
		maxRetries:   maxRetries,
		eventEmitter: config.EventEmitter,
		traceID:      config.TraceID,
		logger:       logger,
	}
}

// GetProvider returns the provider of this LLM
func (p *ProviderAwareLLM) GetProvider() Provider {
	return p.provider
}

// GetModelID returns the model ID of this LLM
func (p *ProviderAwareLLM) GetModelID() string {
	return p.modelID
}

// GenerateContent calls the wrapped model, retrying rate limit, server and
// transport failures with exponential backoff. Once a chunk has been
// streamed to the caller the attempt is no longer retried.
func (p *ProviderAwareLLM) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)
	if opts.Temperature == 0 && p.temperature > 0 {
		options = append([]llmtypes.CallOption{llmtypes.WithTemperature(p.temperature)}, options...)
		opts.Temperature = p.temperature
	}
	outer := opts.StreamChan
	if outer != nil {
		defer close(outer)
	}

	var streamed atomic.Bool
	attempt := func() (*llmtypes.ContentResponse, error) {
		if outer == nil {
			return p.Model.GenerateContent(ctx, messages, options...)
		}
		// Adapters close the channel they are given, so every attempt gets
		// its own and chunks are forwarded.
		inner := make(chan llmtypes.StreamChunk)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for chunk := range inner {
				streamed.Store(true)
				select {
				case outer <- chunk:
				case <-ctx.Done():
				}
			}
		}()
		resp, err := p.Model.GenerateContent(ctx, messages, append(options, llmtypes.WithStreamingChan(inner))...)
		<-done
		return resp, err
	}

	start := time.Now()
	policy := retrypolicy.NewBuilder[*llmtypes.ContentResponse]().
		HandleIf(func(_ *llmtypes.ContentResponse, err error) bool {
			if err == nil || streamed.Load() {
				return false
			}
			pe, ok := llmtypes.AsProviderError(err)
			return ok && pe.IsRetryable()
		}).
		WithMaxRetries(p.maxRetries).
		WithBackoff(retryBaseDelay, retryMaxDelay).
		OnRetry(func(e failsafe.ExecutionEvent[*llmtypes.ContentResponse]) {
			p.logger.Infof("Retrying %s request (attempt %d) after error: %v", p.provider, e.Attempts(), e.LastError())
		}).
		ReturnLastFailure().
		Build()

	resp, err := failsafe.With[*llmtypes.ContentResponse](policy).WithContext(ctx).Get(attempt)
	p.logger.Debugf("LLM call completed - provider: %s, duration: %v", p.provider, time.Since(start))

	if err == nil && (resp == nil || len(resp.Choices) == 0) {
		err = llmtypes.MalformedResponse(string(p.provider), "response has no choices")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = ctxErr
		}
		p.logger.Errorf("LLM generation failed - provider: %s, model: %s, error: %v", p.provider, p.modelID, err)
		emitLLMGenerationError(p.eventEmitter, string(p.provider), p.modelID, OperationLLMGeneration, len(messages), opts.Temperature, lastUserText(messages), err, p.traceID, LLMMetadata{
			ModelVersion: p.modelID,
			CustomFields: map[string]string{
				"provider":   string(p.provider),
				"error_type": fmt.Sprintf("%T", err),
			},
		})
		return nil, err
	}

	choice := resp.Choices[0]
	metadata := LLMMetadata{
		ModelVersion: p.modelID,
		CustomFields: map[string]string{
			"provider":    string(p.provider),
			"stop_reason": choice.StopReason,
			"tool_calls":  fmt.Sprintf("%d", len(choice.ToolCalls)),
		},
	}
	if resp.Usage != nil {
		metadata.CustomFields["input_tokens"] = fmt.Sprintf("%d", resp.Usage.InputTokens)
		metadata.CustomFields["output_tokens"] = fmt.Sprintf("%d", resp.Usage.OutputTokens)
	}
	emitLLMGenerationSuccess(p.eventEmitter, string(p.provider), p.modelID, OperationLLMGeneration, len(messages), opts.Temperature, lastUserText(messages), len(choice.Content), len(resp.Choices), p.traceID, metadata)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		emitToolCallDetected(p.eventEmitter, string(p.provider), p.modelID, tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments, p.traceID, LLMMetadata{
			ModelVersion: p.modelID,
			CustomFields: map[string]string{"operation": OperationLLMToolCalling},
		})
	}
	return resp, nil
}

// lastUserText returns the most recent human text, for event payloads.
func lastUserText(messages []llmtypes.MessageContent) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llmtypes.ChatMessageTypeHuman {
			continue
		}
		var parts []string
		for _, part := range messages[i].Parts {
			if t, ok := part.(llmtypes.TextContent); ok {
				parts = append(parts, t.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return ""
}

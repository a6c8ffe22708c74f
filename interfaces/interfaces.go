package interfaces

// TraceID represents a unique identifier for a trace
type TraceID string

// Logger defines the interface for logging
// Minimal interface with only essential formatted logging methods
type Logger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, args ...interface{})
}

// NoopLogger discards everything. Used wherever a nil Logger is passed.
type NoopLogger struct{}

func (NoopLogger) Infof(format string, v ...any)             {}
func (NoopLogger) Errorf(format string, v ...any)            {}
func (NoopLogger) Debugf(format string, args ...interface{}) {}

// LLMMetadata represents common metadata for LLM events
type LLMMetadata struct {
	ModelVersion string            `json:"model_version,omitempty"`
	MaxTokens    int               `json:"max_tokens,omitempty"`
	User         string            `json:"user,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// EventEmitter defines the interface for emitting LLM events
type EventEmitter interface {
	EmitLLMInitializationStart(provider string, modelID string, temperature float64, traceID TraceID, metadata LLMMetadata)
	EmitLLMInitializationSuccess(provider string, modelID string, capabilities string, traceID TraceID, metadata LLMMetadata)
	EmitLLMInitializationError(provider string, modelID string, operation string, err error, traceID TraceID, metadata LLMMetadata)
	EmitLLMGenerationSuccess(provider string, modelID string, operation string, messages int, temperature float64, messageContent string, responseLength int, choicesCount int, traceID TraceID, metadata LLMMetadata)
	EmitLLMGenerationError(provider string, modelID string, operation string, messages int, temperature float64, messageContent string, err error, traceID TraceID, metadata LLMMetadata)
	// Tool call events
	EmitToolCallDetected(provider string, modelID string, toolCallID string, toolName string, arguments string, traceID TraceID, metadata LLMMetadata)
}

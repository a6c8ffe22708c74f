package main

import (
	"github.com/manishiitg/mcpx-chat-go/interfaces"
)

// logEmitter reports LLM events through the CLI logger.
type logEmitter struct {
	logger interfaces.Logger
}

func (e *logEmitter) EmitLLMInitializationStart(provider string, modelID string, temperature float64, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Debugf("[EVENT: INIT_START] provider=%s model=%s temperature=%.2f", provider, modelID, temperature)
}

func (e *logEmitter) EmitLLMInitializationSuccess(provider string, modelID string, capabilities string, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Debugf("[EVENT: INIT_SUCCESS] provider=%s model=%s capabilities=%s", provider, modelID, capabilities)
}

func (e *logEmitter) EmitLLMInitializationError(provider string, modelID string, operation string, err error, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Errorf("[EVENT: INIT_ERROR] provider=%s model=%s operation=%s error=%v", provider, modelID, operation, err)
}

func (e *logEmitter) EmitLLMGenerationSuccess(provider string, modelID string, operation string, messages int, temperature float64, messageContent string, responseLength int, choicesCount int, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Debugf("[EVENT: GENERATION_SUCCESS] provider=%s model=%s messages=%d response_length=%d", provider, modelID, messages, responseLength)
}

func (e *logEmitter) EmitLLMGenerationError(provider string, modelID string, operation string, messages int, temperature float64, messageContent string, err error, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Errorf("[EVENT: GENERATION_ERROR] provider=%s model=%s messages=%d error=%v", provider, modelID, messages, err)
}

func (e *logEmitter) EmitToolCallDetected(provider string, modelID string, toolCallID string, toolName string, arguments string, traceID interfaces.TraceID, metadata interfaces.LLMMetadata) {
	e.logger.Debugf("[EVENT: TOOL_CALL_DETECTED] provider=%s model=%s id=%s tool=%s arguments=%s", provider, modelID, toolCallID, toolName, arguments)
}

// Package promptemu emulates tool calling for models without a native tool
// API. The tool catalogue and a calling convention are written into the
// system prompt and <tool_call> blocks are parsed back out of the reply.
//
// Fidelity is lower than native tool calling: the model may ignore the
// convention, and malformed arguments are only caught by schema validation.
package promptemu

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const (
	openTag  = "<tool_call>"
	closeTag = "</tool_call>"
)

var toolCallPattern = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

// Adapter wraps a llmtypes.Model and speaks the prompt convention to it.
type Adapter struct {
	model  llmtypes.Model
	logger interfaces.Logger
}

// New wraps model.
func New(model llmtypes.Model, logger interfaces.Logger) *Adapter {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &Adapter{model: model, logger: logger}
}

// GetModelID returns the wrapped model's id
func (a *Adapter) GetModelID() string {
	return a.model.GetModelID()
}

// GenerateContent implements llmtypes.Model. Tools are removed from the
// options and described in the system prompt instead.
func (a *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)
	streamChan := opts.StreamChan
	if streamChan != nil {
		defer close(streamChan)
	}

	// Raw text would leak the call blocks, so the inner model never streams
	inner := append(append([]llmtypes.CallOption{}, options...), func(o *llmtypes.CallOptions) {
		o.Tools = nil
		o.ToolChoice = nil
		o.StreamChan = nil
	})

	resp, err := a.model.GenerateContent(ctx, RewriteMessages(messages, opts.Tools), inner...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, llmtypes.MalformedResponse("promptemu", "response has no choices")
	}

	choice := resp.Choices[0]
	text, calls := ParseToolCalls(choice.Content)
	if len(opts.Tools) == 0 {
		text, calls = choice.Content, nil
	}
	a.logger.Debugf("Prompt tool mode parsed %d tool calls", len(calls))

	out := &llmtypes.ContentChoice{
		Content:        text,
		StopReason:     choice.StopReason,
		ToolCalls:      calls,
		GenerationInfo: choice.GenerationInfo,
	}

	if streamChan != nil {
		chunks := make([]llmtypes.StreamChunk, 0, len(calls)+1)
		if text != "" {
			chunks = append(chunks, llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeContent, Content: text})
		}
		for i := range calls {
			chunks = append(chunks, llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeToolCall, ToolCall: &calls[i]})
		}
		for _, chunk := range chunks {
			select {
			case streamChan <- chunk:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{out}, Usage: resp.Usage}, nil
}

// RewriteMessages turns a native tool conversation into plain text: the
// catalogue goes into the system prompt, earlier calls are re-rendered as
// <tool_call> blocks and tool results become user messages.
func RewriteMessages(messages []llmtypes.MessageContent, tools []llmtypes.Tool) []llmtypes.MessageContent {
	out := make([]llmtypes.MessageContent, 0, len(messages)+1)
	instructions := ""
	if len(tools) > 0 {
		instructions = Instructions(tools)
	}

	systemDone := instructions == ""
	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			if !systemDone {
				msg = llmtypes.MessageContent{
					Role:  msg.Role,
					Parts: append(append([]llmtypes.ContentPart{}, msg.Parts...), llmtypes.TextContent{Text: instructions}),
				}
				systemDone = true
			}
			out = append(out, msg)
		case llmtypes.ChatMessageTypeAI:
			var b strings.Builder
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case llmtypes.TextContent:
					if p.Text != "" {
						b.WriteString(p.Text)
						b.WriteString("\n")
					}
				case llmtypes.ToolCall:
					b.WriteString(renderCall(p))
					b.WriteString("\n")
				}
			}
			out = append(out, llmtypes.TextPart(llmtypes.ChatMessageTypeAI, strings.TrimSpace(b.String())))
		case llmtypes.ChatMessageTypeTool:
			var b strings.Builder
			for _, part := range msg.Parts {
				if p, ok := part.(llmtypes.ToolCallResponse); ok {
					status := "result"
					if p.IsError {
						status = "error"
					}
					fmt.Fprintf(&b, "Tool %s for %s (id %s):\n%s\n\n", status, p.Name, p.ToolCallID, p.Content)
				}
			}
			out = append(out, llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, strings.TrimSpace(b.String())))
		default:
			out = append(out, msg)
		}
	}

	if !systemDone {
		out = append([]llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, instructions)}, out...)
	}
	return out
}

// Instructions describes the tools and the calling convention.
func Instructions(tools []llmtypes.Tool) string {
	var b strings.Builder
	b.WriteString("You can call the following tools. Each tool takes a JSON object matching its input schema.\n\n")
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		schema, err := json.Marshal(tool.Function.Parameters.Map())
		if err != nil {
			schema = []byte(`{"type":"object"}`)
		}
		fmt.Fprintf(&b, "- %s: %s\n  input schema: %s\n", tool.Function.Name, tool.Function.Description, schema)
	}
	b.WriteString("\nTo call a tool, reply with one block per call, exactly in this form:\n")
	b.WriteString(openTag + `{"name": "<tool name>", "arguments": {<arguments>}}` + closeTag + "\n")
	b.WriteString("You may emit several blocks in one reply. Tool results arrive in the next user message. ")
	b.WriteString("When you have the final answer, reply without any " + openTag + " block.")
	return b.String()
}

func renderCall(tc llmtypes.ToolCall) string {
	if tc.FunctionCall == nil {
		return ""
	}
	args := strings.TrimSpace(tc.FunctionCall.Arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		quoted, _ := json.Marshal(args)
		args = string(quoted)
	}
	name, _ := json.Marshal(tc.FunctionCall.Name)
	return fmt.Sprintf(`%s{"name": %s, "arguments": %s}%s`, openTag, name, args, closeTag)
}

// ParseToolCalls extracts <tool_call> blocks from text. It returns the text
// outside the blocks and one ToolCall per block, with generated ids.
// A block whose arguments are not a JSON object still yields a call, with
// the raw arguments, so validation can report it to the model. A block
// without a readable name is left in the text.
func ParseToolCalls(text string) (string, []llmtypes.ToolCall) {
	matches := toolCallPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil
	}

	var rest strings.Builder
	var calls []llmtypes.ToolCall
	last := 0
	for _, m := range matches {
		body := text[m[2]:m[3]]
		call, ok := parseBlock(body)
		if !ok {
			continue
		}
		rest.WriteString(text[last:m[0]])
		last = m[1]
		calls = append(calls, call)
	}
	rest.WriteString(text[last:])
	return strings.TrimSpace(rest.String()), calls
}

func parseBlock(body string) (llmtypes.ToolCall, bool) {
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)

	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil || raw.Name == "" {
		return llmtypes.ToolCall{}, false
	}

	args := strings.TrimSpace(string(raw.Arguments))
	switch {
	case args == "" || args == "null":
		args = "{}"
	case strings.HasPrefix(args, `"`):
		// Some models send the arguments as a JSON string
		var inner string
		if err := json.Unmarshal(raw.Arguments, &inner); err == nil {
			args = inner
		}
	}

	return llmtypes.ToolCall{
		ID:   "call_" + uuid.NewString(),
		Type: "function",
		FunctionCall: &llmtypes.FunctionCall{
			Name:      raw.Name,
			Arguments: args,
		},
	}, true
}

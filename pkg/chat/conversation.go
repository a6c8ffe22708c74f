package chat

import (
	"fmt"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// DefaultSystemPrompt steers the model towards using the tool catalogue.
const DefaultSystemPrompt = `- When evaluating javascript code do not print the result to stdout,
  instead return the value from the code since it will be executed using eval
- Do not come up with directions or indications.
- Always use the provided tools when applicable, and share the results of
  tool calls with the user
- Invoke the tools upon requests you cannot fulfill on your own
  and parse the responses
- Do not invoke the same tool multiple times in a row with the same arguments
- Always try to provide a well formatted, itemized summary
- If the user provides the result of a tool and no other action is needed just
  repeat it back to them`

// Conversation is the ordered message history of one chat session.
// Messages are only ever appended; Clear starts over from the system prompt.
type Conversation struct {
	system   string
	messages []llmtypes.MessageContent
}

// NewConversation starts a conversation. An empty system prompt adds no
// system message.
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{system: systemPrompt}
	c.Clear()
	return c
}

// Clear drops every message except the system prompt.
func (c *Conversation) Clear() {
	c.messages = nil
	if c.system != "" {
		c.messages = append(c.messages, llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, c.system))
	}
}

// AddUser appends a user message.
func (c *Conversation) AddUser(text string) {
	c.messages = append(c.messages, llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, text))
}

// AddAssistant appends an assistant message holding text and, in emission
// order, the tool calls the model made.
func (c *Conversation) AddAssistant(text string, calls []llmtypes.ToolCall) {
	parts := make([]llmtypes.ContentPart, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, llmtypes.TextContent{Text: text})
	}
	for _, call := range calls {
		parts = append(parts, call)
	}
	c.messages = append(c.messages, llmtypes.MessageContent{Role: llmtypes.ChatMessageTypeAI, Parts: parts})
}

// ToolResponse is the result of one call, ready to be appended.
type ToolResponse struct {
	CallID string
	Name   string
	Result *tools.Result
}

// AddToolResults appends one tool message holding a result per call, in the
// order given.
func (c *Conversation) AddToolResults(responses []ToolResponse) {
	if len(responses) == 0 {
		return
	}
	parts := make([]llmtypes.ContentPart, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, llmtypes.ToolCallResponse{
			ToolCallID: r.CallID,
			Name:       r.Name,
			Content:    r.Result.String(),
			IsError:    r.Result != nil && r.Result.IsError,
		})
	}
	c.messages = append(c.messages, llmtypes.MessageContent{Role: llmtypes.ChatMessageTypeTool, Parts: parts})
}

// AddToolResult appends the result of a single call.
func (c *Conversation) AddToolResult(callID, name string, result *tools.Result) {
	c.AddToolResults([]ToolResponse{{CallID: callID, Name: name, Result: result}})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []llmtypes.MessageContent {
	out := make([]llmtypes.MessageContent, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// CheckPairing reports the first tool call that is not answered by exactly
// one tool result before the next assistant or user message, and any result
// that answers no call.
func (c *Conversation) CheckPairing() error {
	pending := map[string]bool{}
	var order []string
	flush := func(i int) error {
		for _, id := range order {
			if pending[id] {
				return fmt.Errorf("message %d: tool call %s has no result", i, id)
			}
		}
		pending = map[string]bool{}
		order = nil
		return nil
	}

	for i, msg := range c.messages {
		switch msg.Role {
		case llmtypes.ChatMessageTypeTool:
			for _, part := range msg.Parts {
				resp, ok := part.(llmtypes.ToolCallResponse)
				if !ok {
					continue
				}
				open, known := pending[resp.ToolCallID]
				if !known {
					return fmt.Errorf("message %d: result for unknown tool call %s", i, resp.ToolCallID)
				}
				if !open {
					return fmt.Errorf("message %d: duplicate result for tool call %s", i, resp.ToolCallID)
				}
				pending[resp.ToolCallID] = false
			}
		default:
			if err := flush(i); err != nil {
				return err
			}
			if msg.Role != llmtypes.ChatMessageTypeAI {
				continue
			}
			for _, part := range msg.Parts {
				if call, ok := part.(llmtypes.ToolCall); ok {
					if _, dup := pending[call.ID]; dup {
						return fmt.Errorf("message %d: duplicate tool call id %s", i, call.ID)
					}
					pending[call.ID] = true
					order = append(order, call.ID)
				}
			}
		}
	}
	return flush(len(c.messages))
}

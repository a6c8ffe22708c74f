// Package chat runs the tool-augmented conversation: it asks the provider for
// a turn, executes the tool calls it makes and feeds the results back until
// the model answers without calling tools.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// DefaultMaxIterations bounds the model turns spent on one user message.
const DefaultMaxIterations = 10

// ErrLoopLimitExceeded matches every *LoopLimitError via errors.Is.
var ErrLoopLimitExceeded = errors.New("tool loop limit exceeded")

// LoopLimitError reports a user turn that kept calling tools past Max model turns.
type LoopLimitError struct {
	Max int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("model still calling tools after %d iterations", e.Max)
}

func (e *LoopLimitError) Is(target error) bool { return target == ErrLoopLimitExceeded }

// Catalogue supplies the tools offered to the model.
type Catalogue interface {
	Tools(ctx context.Context) ([]tools.Descriptor, error)
}

// Invoker executes one tool call from its raw JSON arguments.
type Invoker interface {
	Call(ctx context.Context, name string, rawArgs string) (*tools.Result, error)
}

// Observer is told about progress within a turn. Methods are called from the
// goroutine running Run, never concurrently.
type Observer interface {
	// OnAssistantText reports model text. final is false for text sent
	// together with tool calls.
	OnAssistantText(text string, final bool)
	OnToolCall(call llmtypes.ToolCall)
	OnToolResult(call llmtypes.ToolCall, result *tools.Result)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnAssistantText(string, bool)                  {}
func (NopObserver) OnToolCall(llmtypes.ToolCall)                  {}
func (NopObserver) OnToolResult(llmtypes.ToolCall, *tools.Result) {}

// Options tunes a Loop.
type Options struct {
	// MaxIterations <= 0 means DefaultMaxIterations
	MaxIterations int
	// Parallel runs the calls of one turn concurrently. Results are still
	// appended in emission order.
	Parallel bool
	Observer Observer
	Logger   interfaces.Logger
}

// Loop drives user turns against one provider and tool backend.
type Loop struct {
	provider  Provider
	catalogue Catalogue
	invoker   Invoker
	maxIters  int
	parallel  bool
	observer  Observer
	logger    interfaces.Logger
}

// NewLoop creates a loop. catalogue and invoker may be nil for a tool-less chat.
func NewLoop(provider Provider, catalogue Catalogue, invoker Invoker, opts Options) *Loop {
	maxIters := opts.MaxIterations
	if maxIters <= 0 {
		maxIters = DefaultMaxIterations
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &Loop{
		provider:  provider,
		catalogue: catalogue,
		invoker:   invoker,
		maxIters:  maxIters,
		parallel:  opts.Parallel,
		observer:  observer,
		logger:    logger,
	}
}

// TurnResult is the outcome of a completed user turn.
type TurnResult struct {
	Text       string
	Iterations int
	ToolCalls  int
	Usage      llmtypes.Usage
}

// Run appends userText to conv and loops until the model gives a final
// answer. On error the conversation keeps everything appended so far and
// still satisfies the pairing invariant.
func (l *Loop) Run(ctx context.Context, conv *Conversation, userText string) (*TurnResult, error) {
	conv.AddUser(userText)

	var catalogue []tools.Descriptor
	if l.catalogue != nil {
		var err error
		catalogue, err = l.catalogue.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("load tool catalogue: %w", err)
		}
	}
	known := make(map[string]bool, len(catalogue))
	for _, d := range catalogue {
		known[d.Name] = true
	}
	usedIDs := callIDs(conv)

	result := &TurnResult{}
	for iteration := 1; iteration <= l.maxIters; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := conv.CheckPairing(); err != nil {
			return nil, fmt.Errorf("conversation out of order: %w", err)
		}

		turn, err := l.provider.Send(ctx, conv.Messages(), catalogue)
		if err != nil {
			return nil, err
		}
		result.Iterations = iteration
		addUsage(&result.Usage, turn.Usage)

		if turn.Final() {
			conv.AddAssistant(turn.Text, nil)
			l.observer.OnAssistantText(turn.Text, true)
			result.Text = turn.Text
			return result, nil
		}

		calls := make([]llmtypes.ToolCall, len(turn.ToolCalls))
		copy(calls, turn.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" || usedIDs[calls[i].ID] {
				calls[i].ID = uniqueID(usedIDs, iteration, i)
			}
			usedIDs[calls[i].ID] = true
		}
		conv.AddAssistant(turn.Text, calls)
		if turn.Text != "" {
			l.observer.OnAssistantText(turn.Text, false)
		}
		l.logger.Debugf("Iteration %d - tool calls: %d", iteration, len(calls))

		responses := l.execute(ctx, calls, known)
		conv.AddToolResults(responses)
		result.ToolCalls += len(calls)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, &LoopLimitError{Max: l.maxIters}
}

// execute runs calls and returns one response per call in emission order.
// Calls that never ran because ctx was cancelled get a cancellation result.
func (l *Loop) execute(ctx context.Context, calls []llmtypes.ToolCall, known map[string]bool) []ToolResponse {
	results := make([]*tools.Result, len(calls))
	for _, call := range calls {
		l.observer.OnToolCall(call)
	}

	if l.parallel && len(calls) > 1 {
		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = l.invoke(ctx, calls[i], known)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range calls {
			results[i] = l.invoke(ctx, calls[i], known)
		}
	}

	responses := make([]ToolResponse, len(calls))
	for i, call := range calls {
		l.observer.OnToolResult(call, results[i])
		responses[i] = ToolResponse{CallID: call.ID, Name: call.FunctionCall.Name, Result: results[i]}
	}
	return responses
}

func (l *Loop) invoke(ctx context.Context, call llmtypes.ToolCall, known map[string]bool) *tools.Result {
	name := call.FunctionCall.Name
	if err := ctx.Err(); err != nil {
		return cancelledResult(err)
	}
	if !known[name] {
		return tools.ErrorResult(&tools.ToolError{Kind: tools.KindUnknownTool, Tool: name, Err: fmt.Errorf("no tool named %q in the catalogue", name)})
	}
	if l.invoker == nil {
		return tools.ErrorResult(&tools.ToolError{Kind: tools.KindTransportFailure, Tool: name, Err: errors.New("no tool service configured")})
	}

	res, err := l.invoker.Call(ctx, name, call.FunctionCall.Arguments)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return cancelledResult(err)
		}
		l.logger.Infof("Tool %s failed - kind: %s, error: %v", name, tools.KindOf(err), err)
		return tools.ErrorResult(err)
	}
	if res == nil {
		res = &tools.Result{}
	}
	return res
}

func cancelledResult(err error) *tools.Result {
	return &tools.Result{Content: []tools.Content{tools.Text("Error: tool call cancelled: " + err.Error())}, IsError: true}
}

func callIDs(conv *Conversation) map[string]bool {
	ids := map[string]bool{}
	for _, msg := range conv.messages {
		for _, part := range msg.Parts {
			if call, ok := part.(llmtypes.ToolCall); ok {
				ids[call.ID] = true
			}
		}
	}
	return ids
}

func uniqueID(used map[string]bool, iteration, index int) string {
	id := fmt.Sprintf("call_%d_%d", iteration, index)
	for n := 1; used[id]; n++ {
		id = fmt.Sprintf("call_%d_%d_%d", iteration, index, n)
	}
	return id
}

func addUsage(total *llmtypes.Usage, u *llmtypes.Usage) {
	if u == nil {
		return
	}
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
}

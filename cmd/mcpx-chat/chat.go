package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	llmproviders "github.com/manishiitg/mcpx-chat-go"
	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/internal/recorder"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

const chatHelp = `
Available commands:
  !help     - Show this help message
  !clear    - Clear chat history (system prompt retained)
  !tools    - List available tools
  !refresh  - Reload the tool list from mcp.run
  !history  - Show conversation summary
  !exit     - Exit the chat (exit and quit work too)
`

var errExit = errors.New("exit requested")

func newChatCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringP("provider", "p", "", "LLM provider: claude, openai, gemini, ollama, llamafile, bedrock")
	flags.String("model", "", "model name (default depends on provider)")
	flags.StringP("url", "u", "", "provider endpoint URL")
	flags.String("system", "", "system prompt")
	flags.String("tool-mode", "", "tool calling mode: native or prompt")
	flags.Int("max-iterations", 0, "maximum model turns per user message")
	flags.Bool("parallel", false, "run the tool calls of one turn concurrently")
	flags.Bool("stream", false, "stream model output as it arrives")
	flags.String("record-dir", "", "record provider turns to this directory")
	flags.String("replay", "", "answer from turns recorded in this directory instead of a model")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command) error {
	cfg := a.cfg
	out := cmd.OutOrStdout()

	backend, err := a.newToolBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	provider, label, err := a.newChatProvider(out)
	if err != nil {
		return err
	}

	observer := &consoleObserver{out: out, streaming: cfg.Stream && cfg.Replay == "", imageDir: os.TempDir()}
	loop := chat.NewLoop(provider, backend.catalogue, backend.invoker, chat.Options{
		MaxIterations: cfg.MaxIterations,
		Parallel:      cfg.Parallel,
		Observer:      observer,
		Logger:        a.logger,
	})

	fmt.Fprintln(out, "=== mcpx chat ===")
	fmt.Fprintf(out, "Using %s. Type '!help' for commands, '!exit' to quit\n", label)
	r := &repl{
		in:        cmd.InOrStdin(),
		out:       out,
		conv:      chat.NewConversation(cfg.System),
		loop:      loop,
		catalogue: backend.catalogue,
		logger:    a.logger,
	}
	return r.run(cmd.Context())
}

// newChatProvider builds the model side: a replayer, or the configured
// model optionally wrapped by a recorder. label describes it for the user.
func (a *app) newChatProvider(out io.Writer) (provider chat.Provider, label string, err error) {
	cfg := a.cfg
	if cfg.Replay != "" {
		replayer, err := recorder.NewReplayer(cfg.Replay, a.logger)
		if err != nil {
			return nil, "", err
		}
		return replayer, fmt.Sprintf("%d recorded turns from %s", replayer.Len(), cfg.Replay), nil
	}

	llmConfig := cfg.LLMConfig()
	llmConfig.Logger = a.logger
	llmConfig.EventEmitter = &logEmitter{logger: a.logger}
	llm, err := llmproviders.InitializeLLM(llmConfig)
	if err != nil {
		return nil, "", err
	}
	label = fmt.Sprintf("%s with model %s", cfg.Provider, llm.GetModelID())

	modelProvider := chat.NewModelProvider(llm)
	if cfg.Stream {
		modelProvider.OnChunk = func(text string) {
			fmt.Fprint(out, text)
		}
	}
	if cfg.RecordDir == "" {
		return modelProvider, label, nil
	}
	return recorder.NewRecorder(modelProvider, recorder.RecordingConfig{
		Provider: cfg.Provider,
		ModelID:  llm.GetModelID(),
		Session:  "chat",
		BaseDir:  cfg.RecordDir,
	}, a.logger), label + ", recording to " + cfg.RecordDir, nil
}

// repl reads user input line by line and runs one turn per message.
type repl struct {
	in        io.Reader
	out       io.Writer
	conv      *chat.Conversation
	loop      *chat.Loop
	catalogue *tools.Catalogue
	logger    interfaces.Logger
}

func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(r.out, "\nGoodbye!")
			return nil
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "!") || text == "exit" || text == "quit" {
			if err := r.command(ctx, text); err != nil {
				if errors.Is(err, errExit) {
					fmt.Fprintln(r.out, "Goodbye!")
					return nil
				}
				fmt.Fprintf(r.out, "Error: %v\n", err)
			}
			continue
		}

		r.turn(ctx, text)
	}
}

// turn runs one user message. SIGINT cancels the turn, not the chat.
func (r *repl) turn(ctx context.Context, text string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	result, err := r.loop.Run(turnCtx, r.conv, text)
	switch {
	case err == nil:
		r.logger.Debugf("Turn done - iterations: %d, tool calls: %d, tokens in/out: %d/%d",
			result.Iterations, result.ToolCalls, result.Usage.InputTokens, result.Usage.OutputTokens)
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		fmt.Fprintln(r.out, "\n[Interrupted]")
	default:
		fmt.Fprintf(r.out, "\nERROR>> %s\n", describeError(err))
	}
}

func (r *repl) command(ctx context.Context, text string) error {
	switch text {
	case "!help":
		fmt.Fprint(r.out, chatHelp)
	case "!clear":
		r.conv.Clear()
		fmt.Fprintln(r.out, "Chat history cleared")
	case "!tools":
		descriptors, err := r.catalogue.Tools(ctx)
		if err != nil {
			return err
		}
		printToolNames(r.out, descriptors)
	case "!refresh":
		descriptors, err := r.catalogue.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Reloaded %d tools\n", len(descriptors))
	case "!history":
		printHistory(r.out, r.conv.Messages())
	case "!exit", "!quit", "exit", "quit":
		return errExit
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type !help for available commands)\n", text)
	}
	return nil
}

func printToolNames(w io.Writer, descriptors []tools.Descriptor) {
	fmt.Fprintln(w, "\nAvailable tools:")
	for _, d := range descriptors {
		fmt.Fprintf(w, "- %s\n", d.Name)
	}
}

func printHistory(w io.Writer, messages []llmtypes.MessageContent) {
	fmt.Fprintf(w, "\nConversation history (%d messages):\n", len(messages))
	for i, msg := range messages {
		var preview string
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				preview = p.Text
			case llmtypes.ToolCall:
				preview = "tool call " + p.FunctionCall.Name
			case llmtypes.ToolCallResponse:
				preview = "result of " + p.Name
			default:
				continue
			}
			break
		}
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, msg.Role, preview)
	}
}

// describeError adds a hint for the error classes the user can act on.
func describeError(err error) string {
	perr, isProvider := llmtypes.AsProviderError(err)
	switch {
	case errors.Is(err, chat.ErrLoopLimitExceeded):
		return err.Error() + " (raise --max-iterations to allow more)"
	case errors.Is(err, tools.ErrUnreachable):
		return err.Error() + " (check your mcp.run session)"
	case errors.Is(err, recorder.ErrNoRecording):
		return err.Error() + " (this conversation was not recorded)"
	case isProvider && perr.IsAuth():
		return err.Error() + " (check the provider API key)"
	case isProvider && perr.IsRateLimit():
		return err.Error() + " (rate limited, try again later)"
	default:
		return err.Error()
	}
}

// consoleObserver prints loop progress to the terminal.
type consoleObserver struct {
	out       io.Writer
	streaming bool
	imageDir  string
}

func (o *consoleObserver) OnAssistantText(text string, final bool) {
	if o.streaming {
		// already printed chunk by chunk
		fmt.Fprintln(o.out)
		return
	}
	fmt.Fprintln(o.out, text)
}

func (o *consoleObserver) OnToolCall(call llmtypes.ToolCall) {
	args := call.FunctionCall.Arguments
	if args == "" {
		args = "{}"
	}
	fmt.Fprintf(o.out, "[Tool call: %s, args: %s]\n", call.FunctionCall.Name, args)
}

func (o *consoleObserver) OnToolResult(call llmtypes.ToolCall, result *tools.Result) {
	name := call.FunctionCall.Name
	if result.IsError {
		fmt.Fprintf(o.out, "[Tool %s error: %s]\n", name, result.String())
	} else {
		fmt.Fprintf(o.out, "[Tool %s completed]\n", name)
	}
	paths, err := saveImages(result, o.imageDir)
	for _, path := range paths {
		fmt.Fprintf(o.out, "[Image from %s saved to %s]\n", name, path)
	}
	if err != nil {
		fmt.Fprintf(o.out, "[Could not save image from %s: %v]\n", name, err)
	}
}

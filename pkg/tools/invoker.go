package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
)

// Invoker validates and executes tool calls against the catalogue.
type Invoker struct {
	catalogue *Catalogue
	caller    Caller
	validator *validator
	logger    interfaces.Logger
}

// NewInvoker creates an invoker. caller may be nil when only builtins are served.
func NewInvoker(catalogue *Catalogue, caller Caller, logger interfaces.Logger) *Invoker {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &Invoker{
		catalogue: catalogue,
		caller:    caller,
		validator: newValidator(),
		logger:    logger,
	}
}

// Call executes name with the JSON object in rawArgs. Every failure is a
// *ToolError except context cancellation, which is returned as is.
func (inv *Invoker) Call(ctx context.Context, name string, rawArgs string) (*Result, error) {
	desc, ok, err := inv.catalogue.Lookup(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ToolError{Kind: KindTransportFailure, Tool: name, Err: err}
	}
	if !ok {
		return nil, &ToolError{Kind: KindUnknownTool, Tool: name, Err: fmt.Errorf("no tool named %q in the catalogue", name)}
	}

	args, err := ParseArguments(rawArgs)
	if err != nil {
		return nil, &ToolError{Kind: KindInvalidArguments, Tool: name, Err: err}
	}
	if err := inv.validator.validate(desc, args); err != nil {
		return nil, &ToolError{Kind: KindInvalidArguments, Tool: name, Err: err}
	}

	inv.logger.Debugf("Calling tool %s with arguments: %s", name, rawArgs)

	var result *Result
	if b := inv.catalogue.builtin(name); b != nil {
		result, err = b.Handler(ctx, args)
	} else if inv.caller == nil {
		err = &ToolError{Kind: KindTransportFailure, Tool: name, Err: errors.New("no tool service configured")}
	} else {
		result, err = inv.caller.CallTool(ctx, name, args)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var te *ToolError
		if errors.As(err, &te) {
			if te.Tool == "" {
				te.Tool = name
			}
			return nil, te
		}
		return nil, &ToolError{Kind: KindTransportFailure, Tool: name, Err: err}
	}
	if result == nil {
		result = &Result{}
	}
	if result.IsError {
		return nil, &ToolError{Kind: KindExecutionFailure, Tool: name, Err: errors.New(result.String()), Result: result}
	}
	return result, nil
}

// ParseArguments decodes a tool call's JSON arguments. Empty input is an empty object.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

package tools

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindExecutionFailure ErrorKind = "execution_failure"
	KindTransportFailure ErrorKind = "transport_failure"
)

// ToolError is a recoverable tool failure. The chat loop turns it into
// error content for the model instead of ending the turn.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
	// Result carries content the tool produced before failing, if any
	Result *Result
}

func (e *ToolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %q: %s", e.Tool, e.Kind)
	}
	return fmt.Sprintf("tool %q: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *ToolError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// ErrorResult renders err as the tool result content shown to the model.
func ErrorResult(err error) *Result {
	var te *ToolError
	if errors.As(err, &te) && te.Result != nil && len(te.Result.Content) > 0 {
		return &Result{Content: te.Result.Content, IsError: true}
	}
	return &Result{Content: []Content{Text("Error: " + err.Error())}, IsError: true}
}

// ErrUnreachable matches every *UnreachableError via errors.Is.
var ErrUnreachable = errors.New("tool service unreachable")

// UnreachableError reports that the catalogue could not be fetched.
// It is never returned for a reachable service with no tools.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("tool service unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Is(target error) bool { return target == ErrUnreachable }

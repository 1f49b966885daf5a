// Package toolerrors provides a structured error type for tool invocation
// failures. ToolError preserves error chains and supports errors.Is/As while
// carrying the coarse-grained Kind the tool node attaches to a failed
// ToolResult.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a tool failure for routing and telemetry purposes. All
// kinds are non-fatal to the run: a failed tool call is surfaced to the LLM
// as a ToolResult with status=error, never as a fatal executor error.
type Kind string

const (
	// KindUnknownTool indicates the requested tool name has no registered adapter.
	KindUnknownTool Kind = "unknown_tool"
	// KindInvalidArguments indicates the call's JSON arguments failed to parse
	// or failed schema validation.
	KindInvalidArguments Kind = "invalid_arguments"
	// KindAdapterFailure indicates the tool adapter itself returned an error
	// while executing (I/O failure, downstream error, panic recovery).
	KindAdapterFailure Kind = "adapter_failure"
	// KindTimeout indicates the tool adapter did not return before its
	// deadline.
	KindTimeout Kind = "timeout"
)

// ToolError represents a structured tool failure that preserves message and
// causal context while still implementing the standard error interface. Tool
// errors may be nested via Cause to retain diagnostics across retries.
type ToolError struct {
	// Kind classifies the failure. Empty Kind is treated as KindAdapterFailure
	// by callers that need a default.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling error chains with
	// errors.Is/As.
	Cause *ToolError
}

// New constructs a ToolError of the given kind with the provided message.
func New(kind Kind, message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Kind: kind, Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so error metadata survives
// serialization while still supporting errors.Is/As through Unwrap.
func NewWithCause(kind Kind, message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Kind:    kind,
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain, defaulting to
// KindAdapterFailure when err carries no ToolError in its chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Kind:    KindAdapterFailure,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns the result as a
// ToolError of the given kind.
func Errorf(kind Kind, format string, args ...any) *ToolError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

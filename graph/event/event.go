// Package event defines the tagged sum of observable moments in a run —
// StreamEvent and its variants — and the sequence-numbering contract the
// graph executor stamps onto every event before it reaches the consumer.
package event

import "github.com/graphrt/graphrt/graph/telemetry"

// Type identifies a StreamEvent variant.
type Type string

const (
	TypeRunStarted Type = "run_started"
	TypeReasoning  Type = "reasoning"
	TypeMessage    Type = "message"
	TypeToolCall   Type = "tool_call"
	TypeToolResult Type = "tool_result"
	TypeRunEnded   Type = "run_ended"
	TypeError      Type = "error"
)

// ToolStatus is the outcome of a single tool invocation.
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
)

// RunStatus is the terminal disposition of a run, carried on RunEnded.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusExhausted RunStatus = "exhausted"
	RunStatusTimeout   RunStatus = "timeout"
)

// ErrorKind classifies an Error event. Only ErrorKindProtocolViolation is
// fatal in itself. The executor emits ErrorKindUpstreamFailure once a
// node's retry budget is spent and ErrorKindCancelled when a node reports
// cancellation; both are followed by RunEnded.
type ErrorKind string

const (
	ErrorKindProtocolViolation ErrorKind = "protocol_violation"
	ErrorKindUpstreamFailure   ErrorKind = "upstream_failure"
	ErrorKindCancelled         ErrorKind = "cancelled"
)

// Fatal reports whether this error kind always terminates the run with
// RunEnded{failed}. It is false for upstream failures, which are retriable
// until the retry budget is spent (the executor then emits
// Error{upstream_failure} followed by RunEnded{failed}), and for
// cancellation (Error{cancelled} followed by RunEnded{cancelled}).
func (k ErrorKind) Fatal() bool {
	return k == ErrorKindProtocolViolation
}

// Event is the common interface satisfied by every StreamEvent variant. The
// executor is the sole assigner of sequence numbers: events are born with
// Seq()==0 and stamped via WithSeq at the moment they are placed on the
// channel.
type Event interface {
	// Type returns the variant discriminator.
	Type() Type
	// RunID returns the run this event belongs to.
	RunID() string
	// Seq returns the strictly increasing per-run sequence number assigned
	// by the executor, or 0 if not yet stamped.
	Seq() uint64
	// WithSeq returns a copy of the event stamped with the given sequence
	// number. Implementations are value types; WithSeq never mutates the
	// receiver in place.
	WithSeq(seq uint64) Event
}

// Base carries the fields common to every event variant: run identity and
// the executor-assigned sequence number. Concrete variants embed Base and
// implement Type().
type Base struct {
	runID string
	seq   uint64
}

// NewBase constructs a Base for the given run. Used by constructors of each
// concrete event variant.
func NewBase(runID string) Base {
	return Base{runID: runID}
}

func (b Base) RunID() string { return b.runID }
func (b Base) Seq() uint64   { return b.seq }

type (
	// RunStarted marks the beginning of a run. Always the first event.
	RunStarted struct {
		Base
		ConversationID string
	}

	// Reasoning carries a partial reasoning-token fragment from a
	// reasoning-capable model. Never folded into committed message history.
	Reasoning struct {
		Base
		Chunk string
	}

	// Message carries a partial assistant-message token fragment.
	Message struct {
		Base
		Chunk string
	}

	// ToolCall is emitted once per tool call when the LLM node finalizes it.
	ToolCall struct {
		Base
		ID        string
		Name      string
		Arguments string
	}

	// ToolResult is emitted once per ToolCall after the tool node executes it.
	ToolResult struct {
		Base
		ID      string
		Name    string
		Content string
		Status  ToolStatus
		// Telemetry carries the tool invocation's duration and retry count.
		// Nil only for results built without a measured execution (tests).
		Telemetry *telemetry.ToolTelemetry
	}

	// RunEnded is emitted exactly once per run, always last.
	RunEnded struct {
		Base
		Status RunStatus
	}

	// Error reports a failure or a cancellation. Every Error the executor
	// emits is followed by RunEnded; Kind.Fatal() tells whether the kind
	// itself always fails the run.
	Error struct {
		Base
		Kind    ErrorKind
		Message string
	}
)

func (e RunStarted) Type() Type { return TypeRunStarted }
func (e Reasoning) Type() Type  { return TypeReasoning }
func (e Message) Type() Type    { return TypeMessage }
func (e ToolCall) Type() Type   { return TypeToolCall }
func (e ToolResult) Type() Type { return TypeToolResult }
func (e RunEnded) Type() Type   { return TypeRunEnded }
func (e Error) Type() Type      { return TypeError }

func (e RunStarted) WithSeq(seq uint64) Event { e.seq = seq; return e }
func (e Reasoning) WithSeq(seq uint64) Event  { e.seq = seq; return e }
func (e Message) WithSeq(seq uint64) Event    { e.seq = seq; return e }
func (e ToolCall) WithSeq(seq uint64) Event   { e.seq = seq; return e }
func (e ToolResult) WithSeq(seq uint64) Event { e.seq = seq; return e }
func (e RunEnded) WithSeq(seq uint64) Event   { e.seq = seq; return e }
func (e Error) WithSeq(seq uint64) Event      { e.seq = seq; return e }

// NewRunStarted constructs a RunStarted event for runID.
func NewRunStarted(runID, conversationID string) RunStarted {
	return RunStarted{Base: NewBase(runID), ConversationID: conversationID}
}

// NewReasoning constructs a Reasoning event for runID.
func NewReasoning(runID, chunk string) Reasoning {
	return Reasoning{Base: NewBase(runID), Chunk: chunk}
}

// NewMessage constructs a Message event for runID.
func NewMessage(runID, chunk string) Message {
	return Message{Base: NewBase(runID), Chunk: chunk}
}

// NewToolCall constructs a ToolCall event for runID.
func NewToolCall(runID, id, name, arguments string) ToolCall {
	return ToolCall{Base: NewBase(runID), ID: id, Name: name, Arguments: arguments}
}

// NewToolResult constructs a ToolResult event for runID, attaching the
// telemetry collected while invoking the tool.
func NewToolResult(runID, id, name, content string, status ToolStatus, tel *telemetry.ToolTelemetry) ToolResult {
	return ToolResult{Base: NewBase(runID), ID: id, Name: name, Content: content, Status: status, Telemetry: tel}
}

// NewRunEnded constructs a RunEnded event for runID.
func NewRunEnded(runID string, status RunStatus) RunEnded {
	return RunEnded{Base: NewBase(runID), Status: status}
}

// NewError constructs an Error event for runID.
func NewError(runID string, kind ErrorKind, message string) Error {
	return Error{Base: NewBase(runID), Kind: kind, Message: message}
}

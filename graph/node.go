package graph

import (
	"context"

	"github.com/graphrt/graphrt/graph/event"
)

// NodeErrorKind classifies why a node's execution did not produce a
// committed state advance.
type NodeErrorKind string

const (
	// NodeErrorUpstreamFailure is a retriable adapter I/O or transient
	// provider failure. The executor may re-execute the same node against
	// the same (unmutated) state up to its retry budget.
	NodeErrorUpstreamFailure NodeErrorKind = "upstream_failure"
	// NodeErrorProtocolViolation is a fatal, non-retriable error: a
	// malformed delta, a broken invariant, or an unknown node id.
	NodeErrorProtocolViolation NodeErrorKind = "protocol_violation"
	// NodeErrorCancelled indicates the node observed cancellation at a
	// suspension point and exited without committing partial state.
	NodeErrorCancelled NodeErrorKind = "cancelled"
	// NodeErrorTimeout indicates the node's suspension point was aborted by
	// the run's wall-clock timeout.
	NodeErrorTimeout NodeErrorKind = "timeout"
)

// NodeError is the error type returned by Node.Execute. It is always one of
// the four NodeErrorKind variants; Err carries the underlying cause when
// one exists (nil for cancellation/timeout).
type NodeError struct {
	Kind NodeErrorKind
	Err  error
}

func (e *NodeError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Retriable reports whether the executor may re-execute the node that
// produced this error, subject to its retry budget.
func (e *NodeError) Retriable() bool { return e != nil && e.Kind == NodeErrorUpstreamFailure }

func upstreamFailure(err error) *NodeError { return &NodeError{Kind: NodeErrorUpstreamFailure, Err: err} }
func protocolViolation(err error) *NodeError {
	return &NodeError{Kind: NodeErrorProtocolViolation, Err: err}
}
func cancelledErr() *NodeError { return &NodeError{Kind: NodeErrorCancelled} }
func timeoutErr() *NodeError   { return &NodeError{Kind: NodeErrorTimeout} }

// EventSink is how a node publishes events as it progresses. Passing a sink
// rather than returning a batch of events means backpressure on the
// executor's bounded channel propagates directly into the node's suspension
// points, with no intermediate buffering.
type EventSink interface {
	// Emit stamps ev with the next sequence number and places it on the
	// run's event channel, suspending the caller if the channel is full.
	// Emit returns ctx.Err() if ctx is done before the event is delivered;
	// callers must treat that as cancellation, not as a lost event (the
	// event is never silently dropped — it is simply never sent).
	Emit(ctx context.Context, ev event.Event) error
}

// Node is a polymorphic unit of graph execution: consume state, advance it,
// emit events. The two concrete variants are the LLM node and the tool
// node; both satisfy this single contract so the executor can
// treat them uniformly.
type Node interface {
	// ID returns this node's stable identifier ("llm", "tool", ...), used
	// by the router's NextStep and the executor's node lookup.
	ID() string
	// Execute consumes and mutates state in place under the executor's
	// guarantee of exclusive access, emitting events to sink as it
	// progresses. ctx carries both cancellation and the run's timeout;
	// nodes must observe ctx.Done() at every suspension point.
	Execute(ctx context.Context, state *GraphState, sink EventSink) *NodeError
}

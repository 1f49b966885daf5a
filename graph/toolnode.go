package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/telemetry"
	"github.com/graphrt/graphrt/graph/toolerrors"
	"github.com/graphrt/graphrt/graph/tools"
)

// ToolNode is the node variant that executes every unresolved tool call on
// the most recent assistant message and appends matching tool-result
// messages. Tool failures are non-fatal: the run continues with a
// status=error ToolResult so the LLM can recover on its next turn.
type ToolNode struct {
	Adapter tools.Adapter
}

// NewToolNode constructs a ToolNode backed by the given adapter.
func NewToolNode(adapter tools.Adapter) *ToolNode {
	return &ToolNode{Adapter: adapter}
}

func (n *ToolNode) ID() string { return NodeIDTool }

// Execute implements Node. Calls execute sequentially in declaration order;
// results are appended and emitted in that same order.
func (n *ToolNode) Execute(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
	// ToolNode never retries a call itself; the retry count it reports is
	// the executor's node-level attempt number minus one (attempt 1 reports
	// zero retries).
	retryCount := state.Context.Attempt - 1
	if retryCount < 0 {
		retryCount = 0
	}

	for _, call := range state.PendingToolCalls() {
		select {
		case <-ctx.Done():
			return cancelledOrTimeout(ctx)
		default:
		}

		start := time.Now()
		content, status := n.invoke(ctx, call)
		tel := &telemetry.ToolTelemetry{
			DurationMs: time.Since(start).Milliseconds(),
			RetryCount: retryCount,
		}

		state.AppendMessage(Message{
			Role:       RoleTool,
			Name:       call.Name,
			Content:    content,
			ToolCallID: call.ID,
			ToolStatus: status,
		})

		if err := sink.Emit(ctx, event.NewToolResult(state.RunID, call.ID, call.Name, content, status, tel)); err != nil {
			return cancelledOrTimeout(ctx)
		}
	}
	return nil
}

// invoke parses the call's JSON arguments and executes it via the adapter.
// A parse failure never reaches the adapter; both parse failures and
// adapter failures surface as a
// status=error ToolResult, never as a NodeError — tool failures are
// non-fatal to the run.
func (n *ToolNode) invoke(ctx context.Context, call ToolCall) (content string, status event.ToolStatus) {
	var args json.RawMessage
	if call.Arguments == "" {
		args = json.RawMessage("{}")
	} else if !json.Valid([]byte(call.Arguments)) {
		return toolerrors.New(toolerrors.KindInvalidArguments, "arguments are not valid JSON").Error(), event.ToolStatusError
	} else {
		args = json.RawMessage(call.Arguments)
	}

	out, err := n.Adapter.Execute(ctx, call.Name, args)
	if err != nil {
		return toolerrors.FromError(err).Error(), event.ToolStatusError
	}
	return out, event.ToolStatusSuccess
}

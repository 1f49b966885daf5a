package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/model"
	"github.com/graphrt/graphrt/graph/tools"
)

// inProgressToolCall accumulates a tool call's fragments as they arrive,
// keyed by the provider's delta index: name first, then argument chunks,
// possibly interleaved with fragments of other calls.
type inProgressToolCall struct {
	id        string
	name      string
	arguments string
}

// LLMNode is the node variant that produces the next assistant turn by
// calling the LLM adapter over the current message history and streaming
// the result.
type LLMNode struct {
	Client model.Client
	// Tools are advertised to the adapter on every streaming call so the
	// model can request tool invocations. Typically populated once at
	// graph-build time from the tool adapter's ListTools.
	Tools []model.ToolDefinition
}

// NewLLMNode constructs an LLMNode backed by the given adapter, advertising
// the given tool definitions on every call.
func NewLLMNode(client model.Client, defs ...model.ToolDefinition) *LLMNode {
	return &LLMNode{Client: client, Tools: defs}
}

func (n *LLMNode) ID() string { return NodeIDLLM }

// Execute implements Node. It opens a streaming call, drains deltas into an
// in-progress assistant message emitting Reasoning/Message events as they
// arrive, accumulates tool-call fragments by index, and on stream
// completion commits exactly one assistant message carrying the
// accumulated text and the finalized tool calls in index order.
func (n *LLMNode) Execute(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
	req := model.Request{Messages: toModelMessages(state.Messages), Tools: n.Tools, Config: toModelConfig(state.LLMConfig)}

	streamer, err := n.Client.Stream(ctx, req)
	if err != nil {
		return upstreamFailure(err)
	}
	defer streamer.Close()

	var (
		text     string
		inFlight = map[int]*inProgressToolCall{}
		order    []int
	)

drain:
	for {
		select {
		case <-ctx.Done():
			return cancelledOrTimeout(ctx)
		default:
		}

		delta, recvErr := streamer.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				break drain
			}
			if ctx.Err() != nil {
				return cancelledOrTimeout(ctx)
			}
			return upstreamFailure(recvErr)
		}

		switch delta.Type {
		case model.DeltaReasoning:
			if delta.Text == "" {
				continue
			}
			if err := sink.Emit(ctx, event.NewReasoning(state.RunID, delta.Text)); err != nil {
				return cancelledOrTimeout(ctx)
			}
		case model.DeltaContent:
			if delta.Text == "" {
				continue
			}
			text += delta.Text
			if err := sink.Emit(ctx, event.NewMessage(state.RunID, delta.Text)); err != nil {
				return cancelledOrTimeout(ctx)
			}
		case model.DeltaToolCall:
			idx := delta.ToolCall.Index
			tc, ok := inFlight[idx]
			if !ok {
				tc = &inProgressToolCall{}
				inFlight[idx] = tc
				order = append(order, idx)
			}
			if delta.ToolCall.ID != "" {
				tc.id = delta.ToolCall.ID
			}
			if delta.ToolCall.Name != "" {
				tc.name = delta.ToolCall.Name
			}
			tc.arguments += delta.ToolCall.ArgumentChunk
		case model.DeltaFinish:
			// finish_reason=tool_calls and end-of-stream are equally valid
			// finalization triggers; since the stream always ends
			// shortly after Finish, tool calls are finalized uniformly
			// below once the loop exits.
		default:
			return protocolViolation(fmt.Errorf("unrecognized delta type %q", delta.Type))
		}
	}

	sort.Ints(order)
	calls := make([]ToolCall, 0, len(order))
	for _, idx := range order {
		tc := inFlight[idx]
		calls = append(calls, ToolCall{ID: tc.id, Name: tc.name, Arguments: tc.arguments})
	}

	for _, tc := range calls {
		if err := sink.Emit(ctx, event.NewToolCall(state.RunID, tc.ID, tc.Name, tc.Arguments)); err != nil {
			return cancelledOrTimeout(ctx)
		}
	}

	state.AppendMessage(Message{Role: RoleAssistant, Content: text, ToolCalls: calls})
	if len(calls) == 0 {
		// A turn with no tool calls is a final answer: nothing else would
		// ever route the router away from "llm" otherwise.
		state.Terminal = true
	}
	return nil
}

func cancelledOrTimeout(ctx context.Context) *NodeError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutErr()
	}
	return cancelledErr()
}

func toModelMessages(msgs []Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		mm := model.Message{
			Role:       model.Role(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			mm.ToolCalls = append(mm.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, mm)
	}
	return out
}

// ToolDefinitions lists the adapter's tools and converts them to the model
// layer's definition shape, for advertising to the LLM via NewLLMNode.
func ToolDefinitions(ctx context.Context, adapter tools.Adapter) ([]model.ToolDefinition, error) {
	defs, err := adapter.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out, nil
}

func toModelConfig(c LLMConfig) model.Config {
	return model.Config{
		Model:           c.Model,
		Temperature:     c.Temperature,
		MaxTokens:       c.MaxTokens,
		ReasoningEffort: c.ReasoningEffort,
	}
}

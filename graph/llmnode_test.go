package graph

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/model"
)

// fakeStreamer replays a canned sequence of deltas, one per Recv call, then
// returns io.EOF. A negative failAt means the stream always exhausts cleanly.
type fakeStreamer struct {
	deltas []model.Delta
	i      int
	failAt int // -1 disables; otherwise Recv fails after emitting this many deltas
	closed bool
}

func (s *fakeStreamer) Recv() (model.Delta, error) {
	if s.failAt >= 0 && s.i == s.failAt {
		return model.Delta{}, errors.New("stream broke")
	}
	if s.i >= len(s.deltas) {
		return model.Delta{}, io.EOF
	}
	d := s.deltas[s.i]
	s.i++
	return d, nil
}

func (s *fakeStreamer) Close() error { s.closed = true; return nil }

type fakeClient struct {
	streamer *fakeStreamer
	err      error
	lastReq  model.Request
}

func (c *fakeClient) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return c.streamer, nil
}

type fakeSink struct {
	events []event.Event
}

func (s *fakeSink) Emit(ctx context.Context, ev event.Event) error {
	s.events = append(s.events, ev)
	return nil
}

// TestLLMNodeDirectAnswer: a single content stream with no tool calls
// commits one assistant message and marks the state terminal so the router
// ends the run.
func TestLLMNodeDirectAnswer(t *testing.T) {
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: -1,
		deltas: []model.Delta{
			{Type: model.DeltaContent, Text: "4"},
			{Type: model.DeltaFinish, Finish: model.FinishStop},
		},
	}}
	node := NewLLMNode(client)
	state := &GraphState{RunID: "r1", Messages: []Message{{Role: RoleUser, Content: "what is 2+2?"}}}
	sink := &fakeSink{}

	nodeErr := node.Execute(context.Background(), state, sink)

	require.Nil(t, nodeErr)
	require.True(t, client.streamer.closed)
	require.Len(t, state.Messages, 2)
	last := state.Messages[1]
	require.Equal(t, RoleAssistant, last.Role)
	require.Equal(t, "4", last.Content)
	require.Empty(t, last.ToolCalls)
	require.True(t, state.Terminal)

	require.Len(t, sink.events, 1)
	msg, ok := sink.events[0].(event.Message)
	require.True(t, ok)
	require.Equal(t, "4", msg.Chunk)
}

// TestLLMNodeFinalizesToolCallsInIndexOrder: tool-call fragments
// interleaved across two indices are accumulated and finalized in index
// order regardless of arrival order.
func TestLLMNodeFinalizesToolCallsInIndexOrder(t *testing.T) {
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: -1,
		deltas: []model.Delta{
			{Type: model.DeltaToolCall, ToolCall: model.ToolCallFragment{Index: 1, ID: "call-b", Name: "second"}},
			{Type: model.DeltaToolCall, ToolCall: model.ToolCallFragment{Index: 0, ID: "call-a", Name: "first"}},
			{Type: model.DeltaToolCall, ToolCall: model.ToolCallFragment{Index: 0, ArgumentChunk: `{"x":`}},
			{Type: model.DeltaToolCall, ToolCall: model.ToolCallFragment{Index: 1, ArgumentChunk: `{"loc":"SF"}`}},
			{Type: model.DeltaToolCall, ToolCall: model.ToolCallFragment{Index: 0, ArgumentChunk: `1}`}},
			{Type: model.DeltaFinish, Finish: model.FinishToolCalls},
		},
	}}
	node := NewLLMNode(client)
	state := &GraphState{RunID: "r1"}
	sink := &fakeSink{}

	nodeErr := node.Execute(context.Background(), state, sink)

	require.Nil(t, nodeErr)
	require.False(t, state.Terminal)
	last := state.Messages[len(state.Messages)-1]
	require.Len(t, last.ToolCalls, 2)
	require.Equal(t, "call-a", last.ToolCalls[0].ID)
	require.Equal(t, `{"x":1}`, last.ToolCalls[0].Arguments)
	require.Equal(t, "call-b", last.ToolCalls[1].ID)
	require.Equal(t, `{"loc":"SF"}`, last.ToolCalls[1].Arguments)

	require.Len(t, sink.events, 2)
	tc0 := sink.events[0].(event.ToolCall)
	require.Equal(t, "call-a", tc0.ID)
	tc1 := sink.events[1].(event.ToolCall)
	require.Equal(t, "call-b", tc1.ID)
}

// TestLLMNodeAdvertisesToolsOnEveryCall: the node forwards its configured
// tool definitions on the streaming request so the model can call them.
func TestLLMNodeAdvertisesToolsOnEveryCall(t *testing.T) {
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: -1,
		deltas: []model.Delta{{Type: model.DeltaContent, Text: "ok"}},
	}}
	node := NewLLMNode(client, model.ToolDefinition{Name: "get_weather", Schema: []byte(`{"type":"object"}`)})
	state := &GraphState{RunID: "r1"}

	nodeErr := node.Execute(context.Background(), state, &fakeSink{})

	require.Nil(t, nodeErr)
	require.Len(t, client.lastReq.Tools, 1)
	require.Equal(t, "get_weather", client.lastReq.Tools[0].Name)
}

// TestLLMNodeCancellationDoesNotCommitPartialMessage: a cancelled node must
// not commit the in-progress assistant message, even if content has already
// streamed.
func TestLLMNodeCancellationDoesNotCommitPartialMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: -1,
		deltas: []model.Delta{
			{Type: model.DeltaContent, Text: "partial"},
		},
	}}
	node := NewLLMNode(client)
	state := &GraphState{RunID: "r1"}
	sink := sinkFunc(func(ctx context.Context, ev event.Event) error {
		cancel() // cancel right after the first chunk is observed
		return nil
	})

	nodeErr := node.Execute(ctx, state, sink)

	require.NotNil(t, nodeErr)
	require.Equal(t, NodeErrorCancelled, nodeErr.Kind)
	require.Empty(t, state.Messages)
}

// TestLLMNodeMalformedDeltaIsProtocolViolation: an unrecognized delta type is
// fatal, not retriable.
func TestLLMNodeMalformedDeltaIsProtocolViolation(t *testing.T) {
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: -1,
		deltas: []model.Delta{{Type: "bogus"}},
	}}
	node := NewLLMNode(client)
	state := &GraphState{RunID: "r1"}

	nodeErr := node.Execute(context.Background(), state, &fakeSink{})

	require.NotNil(t, nodeErr)
	require.Equal(t, NodeErrorProtocolViolation, nodeErr.Kind)
	require.False(t, nodeErr.Retriable())
}

// TestLLMNodeStreamIOErrorIsRetriableUpstreamFailure.
func TestLLMNodeStreamIOErrorIsRetriableUpstreamFailure(t *testing.T) {
	client := &fakeClient{streamer: &fakeStreamer{
		failAt: 0,
		deltas: []model.Delta{{Type: model.DeltaContent, Text: "x"}},
	}}
	node := NewLLMNode(client)
	state := &GraphState{RunID: "r1"}

	nodeErr := node.Execute(context.Background(), state, &fakeSink{})

	require.NotNil(t, nodeErr)
	require.Equal(t, NodeErrorUpstreamFailure, nodeErr.Kind)
	require.True(t, nodeErr.Retriable())
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRouterTerminalEnds(t *testing.T) {
	state := &GraphState{Terminal: true}
	require.Equal(t, End, DefaultRouter(state))
}

func TestDefaultRouterPendingToolCallsRoutesToTool(t *testing.T) {
	state := &GraphState{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_weather"}}},
	}}
	require.Equal(t, Continue(NodeIDTool), DefaultRouter(state))
}

func TestDefaultRouterNoPendingCallsRoutesToLLM(t *testing.T) {
	state := &GraphState{Messages: []Message{
		{Role: RoleAssistant, Content: "done"},
	}}
	require.Equal(t, Continue(NodeIDLLM), DefaultRouter(state))
}

func TestDefaultRouterGraphStartRoutesToLLM(t *testing.T) {
	state := &GraphState{}
	require.Equal(t, Continue(NodeIDLLM), DefaultRouter(state))
}

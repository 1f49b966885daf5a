package graph

import (
	"time"

	"github.com/graphrt/graphrt/graph/event"
)

// Role tags a Message the way the run's conversation history does.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation request attached to an assistant message.
// Its ID is stable across the request and its matching ToolResult.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON text, for transport parity with the LLM.
}

// ToolResult is the outcome of executing a ToolCall, bound to it by ID.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Status     event.ToolStatus
}

// Message is one entry in a run's conversation history. A message may be
// partial only while a node is still streaming it; once appended to
// GraphState.Messages it is whole and immutable.
type Message struct {
	Role Role
	// Content is the message text. Populated for user/system/tool messages
	// and for assistant messages that answer directly.
	Content string
	// Name optionally labels the speaker (tool name for RoleTool messages).
	Name string
	// ToolCalls is populated on assistant messages that requested tool
	// invocations. May coexist with Content.
	ToolCalls []ToolCall
	// ToolCallID identifies which ToolCall a RoleTool message answers.
	ToolCallID string
	// ToolStatus carries the outcome for RoleTool messages.
	ToolStatus event.ToolStatus
}

// LLMConfig carries the per-run generation parameters.
type LLMConfig struct {
	Model           string
	Temperature     *float64
	MaxTokens       *int
	ReasoningEffort string
}

// GraphState is the conversation and working memory a run consumes and
// appends to. Exactly one node executes at a time against a given
// GraphState, so it needs no internal locking.
type GraphState struct {
	RunID          string
	ConversationID string
	Messages       []Message
	Iteration      int
	Terminal       bool
	LLMConfig      LLMConfig
	// Context carries run-level identity and attempt metadata alongside the
	// conversation. The executor keeps Context.Attempt current across
	// retries of the same node; nodes and hook subscribers may
	// read it but never mutate it.
	Context RunContext
}

// LastAssistantMessage returns the most recent assistant message and its
// index, or ok=false if none exists yet.
func (s *GraphState) LastAssistantMessage() (msg Message, index int, ok bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], i, true
		}
	}
	return Message{}, -1, false
}

// PendingToolCalls returns the tool calls on the last assistant message that
// have no matching tool-result message yet, in declaration order.
func (s *GraphState) PendingToolCalls() []ToolCall {
	last, idx, ok := s.LastAssistantMessage()
	if !ok || len(last.ToolCalls) == 0 {
		return nil
	}
	answered := make(map[string]bool, len(last.ToolCalls))
	for _, m := range s.Messages[idx+1:] {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var pending []ToolCall
	for _, tc := range last.ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	return pending
}

// AppendMessage appends msg to the run's history. Nodes are the only
// callers; the executor never mutates Messages directly.
func (s *GraphState) AppendMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// GraphInput bundles everything spawn_run needs to initialize a GraphState.
type GraphInput struct {
	ConversationID string
	SystemPrompt   string
	Messages       []Message
	LLMConfig      LLMConfig
	// Labels carries free-form run metadata (e.g. tenant, caller) threaded
	// onto the run's RunContext and surfaced in published hooks.
	Labels map[string]string
	// MaxIterations and Timeout, when non-zero, override the executor's
	// configured defaults for this run only.
	MaxIterations int
	Timeout       time.Duration
}

// newState builds the initial GraphState from a GraphInput.
func newState(runID string, in GraphInput) *GraphState {
	messages := make([]Message, 0, len(in.Messages)+1)
	if in.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: in.SystemPrompt})
	}
	messages = append(messages, in.Messages...)
	return &GraphState{
		RunID:          runID,
		ConversationID: in.ConversationID,
		Messages:       messages,
		Iteration:      0,
		Terminal:       false,
		LLMConfig:      in.LLMConfig,
		Context: RunContext{
			RunID:          runID,
			ConversationID: in.ConversationID,
			Labels:         in.Labels,
			Attempt:        0,
		},
	}
}

package graph

// StepKind discriminates a NextStep.
type StepKind string

const (
	StepContinue StepKind = "continue"
	StepEnd      StepKind = "end"
)

// NextStep is the router's decision: continue into the named node, or end
// the run.
type NextStep struct {
	Kind   StepKind
	NodeID string
}

// Continue constructs a NextStep that continues into the named node.
func Continue(nodeID string) NextStep { return NextStep{Kind: StepContinue, NodeID: nodeID} }

// End is the NextStep that terminates the run.
var End = NextStep{Kind: StepEnd}

// Router is a pure, stateless, side-effect-free decision function over
// state, called between node executions and once at graph start.
type Router func(state *GraphState) NextStep

// DefaultRouter implements the ReAct policy: route to the tool
// node while the last assistant message has unanswered tool calls, route to
// the LLM node otherwise (including at graph start), and end once state is
// marked terminal.
func DefaultRouter(state *GraphState) NextStep {
	if state.Terminal {
		return End
	}
	if len(state.PendingToolCalls()) > 0 {
		return Continue(NodeIDTool)
	}
	return Continue(NodeIDLLM)
}

// Stable node identifiers used by the default router and executor.
const (
	NodeIDLLM  = "llm"
	NodeIDTool = "tool"
)

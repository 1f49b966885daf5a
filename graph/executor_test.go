package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/graphrt/graphrt/graph/backoff"
	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/hooks"
	"github.com/graphrt/graphrt/graph/telemetry"
)

// fakeNode is a minimal Node double for driving the executor's main loop
// without a real LLM or tool adapter.
type fakeNode struct {
	id      string
	execute func(ctx context.Context, state *GraphState, sink EventSink) *NodeError
}

func (n *fakeNode) ID() string { return n.id }
func (n *fakeNode) Execute(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
	return n.execute(ctx, state, sink)
}

// fastBackoff keeps retry tests from sleeping through the default schedule.
var fastBackoff = backoff.Policy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: time.Millisecond}

func drain(ch <-chan event.Event) []event.Event {
	var out []event.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func newTestExecutor(t *testing.T, llmExec, toolExec func(ctx context.Context, state *GraphState, sink EventSink) *NodeError, opts ...ExecutorOption) *GraphExecutor {
	t.Helper()
	e := &GraphExecutor{
		config: NewConfig(WithTimeout(time.Second), WithChannelCapacity(64)),
		router: DefaultRouter,
		nodes: map[string]Node{
			NodeIDLLM:  &fakeNode{id: NodeIDLLM, execute: llmExec},
			NodeIDTool: &fakeNode{id: NodeIDTool, execute: toolExec},
		},
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TestExecutorHappyPathOneTurn: the LLM answers directly with no tool calls;
// the run ends after a single iteration with RunStatusCompleted.
func TestExecutorHappyPathOneTurn(t *testing.T) {
	llmCalls := 0
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			llmCalls++
			state.AppendMessage(Message{Role: RoleAssistant, Content: "done"})
			state.Terminal = true
			return nil
		},
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			t.Fatal("tool node should not run")
			return nil
		},
	)

	_, ch := e.SpawnRun(context.Background(), GraphInput{ConversationID: "c1"})
	events := drain(ch)

	require.Equal(t, 1, llmCalls)
	require.IsType(t, event.RunStarted{}, events[0])
	last := events[len(events)-1]
	ended, ok := last.(event.RunEnded)
	require.True(t, ok)
	require.Equal(t, event.RunStatusCompleted, ended.Status)
}

// TestExecutorToolCallRoundTrip: the LLM requests a tool call on its first
// turn, the tool node answers it, and the LLM's second turn ends the run.
func TestExecutorToolCallRoundTrip(t *testing.T) {
	llmTurn := 0
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			llmTurn++
			if llmTurn == 1 {
				state.AppendMessage(Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_weather"}}})
				return nil
			}
			state.AppendMessage(Message{Role: RoleAssistant, Content: "it is sunny"})
			state.Terminal = true
			return nil
		},
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			for _, call := range state.PendingToolCalls() {
				state.AppendMessage(Message{Role: RoleTool, ToolCallID: call.ID, Content: "22C"})
			}
			return nil
		},
	)

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusCompleted, last.Status)
	require.Equal(t, 2, llmTurn)
}

// TestExecutorExhaustsAtMaxIterations: a router that never terminates trips
// the iteration guardrail.
func TestExecutorExhaustsAtMaxIterations(t *testing.T) {
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			state.AppendMessage(Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "loop"}}})
			return nil
		},
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			// Never answers the call, so PendingToolCalls stays non-empty and
			// the router keeps routing to the tool node forever.
			return nil
		},
	)
	e.config = NewConfig(WithMaxIterations(3), WithTimeout(time.Second))

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusExhausted, last.Status)
}

// TestExecutorProtocolViolationFails: a fatal NodeError ends the run with a
// failed status and a preceding Error event.
func TestExecutorProtocolViolationFails(t *testing.T) {
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			return protocolViolation(errors.New("bad delta"))
		},
		nil,
	)

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	require.Len(t, events, 3) // RunStarted, Error, RunEnded
	errEv, ok := events[1].(event.Error)
	require.True(t, ok)
	require.Equal(t, event.ErrorKindProtocolViolation, errEv.Kind)
	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusFailed, last.Status)
}

// TestExecutorCancel: cancelling mid-run always still delivers exactly one
// terminal RunEnded.
func TestExecutorCancel(t *testing.T) {
	started := make(chan struct{})
	blocked := make(chan struct{})
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			close(started)
			<-ctx.Done()
			return cancelledOrTimeout(ctx)
		},
		nil,
	)
	e.config = NewConfig(WithTimeout(time.Minute))

	runID, ch := e.SpawnRun(context.Background(), GraphInput{})
	go func() {
		<-started
		e.Cancel(runID)
		close(blocked)
	}()

	events := drain(ch)
	<-blocked

	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusCancelled, last.Status)
}

// TestExecutorTimeoutEndsWithTimeoutStatus: when the wall-clock guardrail
// expires mid-node, the run ends with RunStatusTimeout, not cancelled.
func TestExecutorTimeoutEndsWithTimeoutStatus(t *testing.T) {
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			<-ctx.Done()
			return cancelledOrTimeout(ctx)
		},
		nil,
	)
	e.config = NewConfig(WithTimeout(20 * time.Millisecond))

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusTimeout, last.Status)
}

// TestExecutorPerRunTimeoutOverridesConfig: a GraphInput.Timeout shorter than
// the executor default governs that run alone.
func TestExecutorPerRunTimeoutOverridesConfig(t *testing.T) {
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			<-ctx.Done()
			return cancelledOrTimeout(ctx)
		},
		nil,
	)
	e.config = NewConfig(WithTimeout(time.Minute))

	start := time.Now()
	_, ch := e.SpawnRun(context.Background(), GraphInput{Timeout: 20 * time.Millisecond})
	events := drain(ch)

	require.Less(t, time.Since(start), 10*time.Second)
	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusTimeout, last.Status)
}

// TestExecutorBackpressureLosesNoEvents: with a channel far smaller than the
// number of emitted events and a consumer that drains slowly, emitters
// suspend rather than drop — every event still arrives, in order.
func TestExecutorBackpressureLosesNoEvents(t *testing.T) {
	const chunks = 50
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			for i := 0; i < chunks; i++ {
				if err := sink.Emit(ctx, event.NewMessage(state.RunID, "x")); err != nil {
					return cancelledOrTimeout(ctx)
				}
			}
			state.AppendMessage(Message{Role: RoleAssistant, Content: "done"})
			state.Terminal = true
			return nil
		},
		nil,
	)
	e.config = NewConfig(WithChannelCapacity(4), WithTimeout(10*time.Second))

	_, ch := e.SpawnRun(context.Background(), GraphInput{})

	var events []event.Event
	for ev := range ch {
		events = append(events, ev)
		time.Sleep(time.Millisecond) // slow consumer keeps the channel full
	}

	require.Len(t, events, chunks+2) // RunStarted + chunks + RunEnded
	var lastSeq uint64
	for i, ev := range events {
		if i > 0 {
			require.Greater(t, ev.Seq(), lastSeq)
		}
		lastSeq = ev.Seq()
	}
	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusCompleted, last.Status)
}

// TestExecutorUpstreamFailureRetriesThenSucceeds exercises the retry budget:
// the first attempt fails with a retriable error, the second succeeds.
func TestExecutorUpstreamFailureRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			attempts++
			if attempts == 1 {
				return upstreamFailure(errors.New("transient"))
			}
			state.AppendMessage(Message{Role: RoleAssistant, Content: "ok"})
			state.Terminal = true
			return nil
		},
		nil,
	)
	e.config = NewConfig(WithRetryBudget(1), WithTimeout(time.Second), WithBackoffPolicy(fastBackoff))

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	require.Equal(t, 2, attempts)
	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusCompleted, last.Status)
}

// TestExecutorUpstreamFailurePastBudgetFailsRun: once the retry budget is
// spent, a retriable failure promotes to fatal with an upstream_failure
// Error event and RunStatusFailed.
func TestExecutorUpstreamFailurePastBudgetFailsRun(t *testing.T) {
	attempts := 0
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			attempts++
			return upstreamFailure(errors.New("still down"))
		},
		nil,
	)
	e.config = NewConfig(WithRetryBudget(1), WithTimeout(10*time.Second), WithBackoffPolicy(fastBackoff))

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	require.Equal(t, 2, attempts)
	errEv := events[len(events)-2].(event.Error)
	require.Equal(t, event.ErrorKindUpstreamFailure, errEv.Kind)
	last := events[len(events)-1].(event.RunEnded)
	require.Equal(t, event.RunStatusFailed, last.Status)
}

// TestExecutorSequenceNumbersAreMonotonic checks invariant 3 of the event
// ordering guarantees: sequence numbers strictly increase across a run.
func TestExecutorSequenceNumbersAreMonotonic(t *testing.T) {
	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			_ = sink.Emit(ctx, event.NewReasoning(state.RunID, "thinking"))
			state.AppendMessage(Message{Role: RoleAssistant, Content: "done"})
			state.Terminal = true
			return nil
		},
		nil,
	)

	_, ch := e.SpawnRun(context.Background(), GraphInput{})
	events := drain(ch)

	var last uint64
	for i, ev := range events {
		if i > 0 {
			require.Greater(t, ev.Seq(), last)
		}
		last = ev.Seq()
	}
}

// TestExecutorPublishesInputsAndDurationOnHook verifies the NodeCompleted
// hook payload carries the run's labels via RunContext on Inputs and a
// nonzero measured Duration, not the placeholder/zero values a half-wired
// hook would publish.
func TestExecutorPublishesInputsAndDurationOnHook(t *testing.T) {
	bus := hooks.NewBus()
	var got []hooks.NodeCompleted
	sub, err := bus.Register(hooks.SubscriberFunc(func(ctx context.Context, ev hooks.NodeCompleted) error {
		got = append(got, ev)
		return nil
	}))
	require.NoError(t, err)
	defer sub.Close()

	e := newTestExecutor(t,
		func(ctx context.Context, state *GraphState, sink EventSink) *NodeError {
			time.Sleep(time.Millisecond)
			state.AppendMessage(Message{Role: RoleAssistant, Content: "done"})
			state.Terminal = true
			return nil
		},
		nil,
		WithBus(bus),
	)

	_, ch := e.SpawnRun(context.Background(), GraphInput{
		ConversationID: "c1",
		Labels:         map[string]string{"tenant": "acme"},
	})
	drain(ch)

	require.Len(t, got, 1)
	require.Equal(t, "success", got[0].Status)
	require.Greater(t, got[0].Duration, time.Duration(0))
	in, ok := got[0].Inputs.(nodeInputs)
	require.True(t, ok)
	require.Equal(t, "acme", in.Context.Labels["tenant"])
	require.Equal(t, "c1", in.Context.ConversationID)
}

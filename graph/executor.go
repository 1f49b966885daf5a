package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphrt/graphrt/graph/backoff"
	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/hooks"
	"github.com/graphrt/graphrt/graph/telemetry"
)

// GraphExecutor owns a run's lifecycle: it loops {execute node → advance
// state → route → check guardrails} until termination, owns the bounded
// event channel, and enforces cancellation and timeout.
//
// LLM and tool adapters are shared across runs by reference; GraphExecutor
// itself is safe for concurrent use by multiple SpawnRun callers.
type GraphExecutor struct {
	config Config
	router Router
	nodes  map[string]Node

	bus     hooks.Bus
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	runs sync.Map // run_id -> *runHandle
}

// runHandle tracks the cancellation plumbing for one in-flight run so
// Cancel(run_id) can reach it.
type runHandle struct {
	cancel context.CancelFunc
}

// ExecutorOption configures a GraphExecutor beyond the node set.
type ExecutorOption func(*GraphExecutor)

// WithBus attaches a fire-and-forget observability bus. A nil bus
// (the default) disables hook publication entirely.
func WithBus(bus hooks.Bus) ExecutorOption {
	return func(e *GraphExecutor) { e.bus = bus }
}

// WithLogger attaches a structured logger. Defaults to telemetry.NoopLogger.
func WithLogger(l telemetry.Logger) ExecutorOption {
	return func(e *GraphExecutor) { e.logger = l }
}

// WithMetrics attaches a metrics recorder. Defaults to telemetry.NoopMetrics.
func WithMetrics(m telemetry.Metrics) ExecutorOption {
	return func(e *GraphExecutor) { e.metrics = m }
}

// WithRouter overrides the default ReAct router. Alternative policies are a
// single function of state; nodes and the executor need no changes.
func WithRouter(r Router) ExecutorOption {
	return func(e *GraphExecutor) { e.router = r }
}

// WithTracer attaches a tracer used to emit a span around every node
// execution attempt. Defaults to telemetry.NoopTracer.
func WithTracer(t telemetry.Tracer) ExecutorOption {
	return func(e *GraphExecutor) { e.tracer = t }
}

// WithNode registers an additional named node, reachable from a custom
// router installed via WithRouter. A node with an existing id replaces it.
func WithNode(n Node) ExecutorOption {
	return func(e *GraphExecutor) { e.nodes[n.ID()] = n }
}

// NewGraphExecutor constructs an executor wired with the LLM and tool
// nodes and the default ReAct router. Additional named nodes can be added
// via WithNode for custom router policies.
func NewGraphExecutor(llm *LLMNode, tool *ToolNode, config Config, opts ...ExecutorOption) *GraphExecutor {
	e := &GraphExecutor{
		config:  config,
		router:  DefaultRouter,
		nodes:   map[string]Node{llm.ID(): llm, tool.ID(): tool},
		logger:  telemetry.NoopLogger{},
		metrics: telemetry.NoopMetrics{},
		tracer:  telemetry.NoopTracer{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SpawnRun launches a run on a background goroutine and returns immediately
// with the run's id and a receive-only, bounded event channel.
func (e *GraphExecutor) SpawnRun(ctx context.Context, input GraphInput) (string, <-chan event.Event) {
	runID := uuid.NewString()
	ch := make(chan event.Event, e.config.channelCapacity)

	timeout := e.config.timeout
	if input.Timeout > 0 {
		timeout = input.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	h := &runHandle{cancel: cancel}
	e.runs.Store(runID, h)

	go func() {
		defer cancel()
		defer e.runs.Delete(runID)
		defer close(ch)
		e.run(runCtx, runID, input, ch)
	}()

	return runID, ch
}

// Cancel signals the cancellation token for runID. The current node
// observes it at its next suspension point and the executor emits
// RunEnded{cancelled}. Cancel on an unknown or already-finished run is a
// no-op.
func (e *GraphExecutor) Cancel(runID string) {
	if v, ok := e.runs.Load(runID); ok {
		v.(*runHandle).cancel()
	}
}

// run drives the node→router loop until a guardrail fires, a node fails, or
// the router ends the run.
func (e *GraphExecutor) run(ctx context.Context, runID string, input GraphInput, ch chan<- event.Event) {
	var seq uint64
	emit := func(c context.Context, ev event.Event) error {
		return emitOn(c, ch, &seq, ev)
	}
	emitFinal := func(ev event.Event) {
		emitBlocking(ch, &seq, ev)
	}
	sink := sinkFunc(emit)

	_ = emitBlocking(ch, &seq, event.NewRunStarted(runID, input.ConversationID))

	state := newState(runID, input)
	maxIterations := e.config.maxIterations
	if input.MaxIterations > 0 {
		maxIterations = input.MaxIterations
	}

	next := e.router(state)

	for {
		if next.Kind == StepEnd {
			state.Terminal = true
			emitFinal(event.NewRunEnded(runID, event.RunStatusCompleted))
			return
		}

		if state.Iteration >= maxIterations {
			emitFinal(event.NewRunEnded(runID, event.RunStatusExhausted))
			return
		}

		select {
		case <-ctx.Done():
			emitFinal(event.NewRunEnded(runID, terminalStatusFor(ctx)))
			return
		default:
		}

		node, ok := e.nodes[next.NodeID]
		if !ok {
			emitFinal(event.NewError(runID, event.ErrorKindProtocolViolation, fmt.Sprintf("unknown node %q", next.NodeID)))
			emitFinal(event.NewRunEnded(runID, event.RunStatusFailed))
			return
		}

		inputs := nodeInputs{
			Context:      state.Context,
			Iteration:    state.Iteration,
			MessageCount: len(state.Messages),
		}
		nodeErr, attempts, duration := e.executeWithRetry(ctx, node, state, sink)
		e.publishHook(ctx, runID, node.ID(), inputs, attempts, duration, nodeErr)

		if nodeErr != nil {
			switch nodeErr.Kind {
			case NodeErrorCancelled:
				emitFinal(event.NewError(runID, event.ErrorKindCancelled, nodeErr.Error()))
				emitFinal(event.NewRunEnded(runID, event.RunStatusCancelled))
				return
			case NodeErrorTimeout:
				emitFinal(event.NewRunEnded(runID, event.RunStatusTimeout))
				return
			default: // protocol_violation, or upstream_failure past the retry budget
				kind := event.ErrorKindProtocolViolation
				if nodeErr.Kind == NodeErrorUpstreamFailure {
					kind = event.ErrorKindUpstreamFailure
				}
				emitFinal(event.NewError(runID, kind, nodeErr.Error()))
				emitFinal(event.NewRunEnded(runID, event.RunStatusFailed))
				return
			}
		}

		state.Iteration++
		next = e.router(state)
	}
}

// nodeInputs snapshots the state a node saw at the start of its execution,
// published on the NodeCompleted hook's Inputs field.
type nodeInputs struct {
	Context      RunContext
	Iteration    int
	MessageCount int
}

// executeWithRetry executes node once, retrying retriable upstream failures
// up to the configured retry budget with exponential backoff.
// It returns the terminal error (nil on success), the number of
// attempts made, and the total wall-clock time spent inside node.Execute
// across those attempts (excluding backoff sleeps).
//
// Each attempt runs inside its own span: start, record the error if any,
// set the span status, end.
func (e *GraphExecutor) executeWithRetry(ctx context.Context, node Node, state *GraphState, sink EventSink) (*NodeError, int, time.Duration) {
	var lastErr *NodeError
	var total time.Duration
	for attempt := 0; attempt <= e.config.retryBudget; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, e.config, attempt); err != nil {
				return cancelledOrTimeout(ctx), attempt, total
			}
		}
		state.Context.Attempt = attempt + 1

		spanCtx, span := e.tracer.Start(ctx, "graph.node.execute",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(nodeSpanAttrs(state.RunID, node.ID(), attempt+1)...),
		)
		start := time.Now()
		nodeErr := node.Execute(spanCtx, state, sink)
		elapsed := time.Since(start)
		total += elapsed

		e.metrics.RecordTimer("graph.node.duration", elapsed, "node_id", node.ID())

		if nodeErr == nil {
			span.SetStatus(codes.Ok, "ok")
			span.End()
			e.metrics.IncCounter("graph.node.executions", 1, "node_id", node.ID(), "status", "success")
			return nil, attempt + 1, total
		}
		span.RecordError(nodeErr)
		span.SetStatus(codes.Error, string(nodeErr.Kind))
		span.End()
		e.metrics.IncCounter("graph.node.executions", 1, "node_id", node.ID(), "status", string(nodeErr.Kind))

		lastErr = nodeErr
		if !nodeErr.Retriable() {
			return nodeErr, attempt + 1, total
		}
	}
	return lastErr, e.config.retryBudget + 1, total
}

func nodeSpanAttrs(runID, nodeID string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("graph.run_id", runID),
		attribute.String("graph.node_id", nodeID),
		attribute.Int("graph.attempt", attempt),
	}
}

func (e *GraphExecutor) publishHook(ctx context.Context, runID, nodeID string, inputs nodeInputs, attempts int, duration time.Duration, nodeErr *NodeError) {
	if e.bus == nil {
		return
	}
	status := "success"
	if nodeErr != nil {
		status = string(nodeErr.Kind)
	}
	evt := hooks.NodeCompleted{
		RunID:    runID,
		NodeID:   nodeID,
		Inputs:   inputs,
		Outputs:  attempts,
		Duration: duration,
		Status:   status,
	}
	if err := e.bus.Publish(ctx, evt); err != nil {
		e.logger.Warn(ctx, "hook publish failed", "run_id", runID, "node_id", nodeID, "error", err)
	}
}

func terminalStatusFor(ctx context.Context) event.RunStatus {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return event.RunStatusTimeout
	}
	return event.RunStatusCancelled
}

type sinkFunc func(ctx context.Context, ev event.Event) error

func (f sinkFunc) Emit(ctx context.Context, ev event.Event) error { return f(ctx, ev) }

// emitOn stamps ev with the next sequence number and places it on ch,
// suspending until capacity is available or ctx is done. No event is ever
// dropped: it is either delivered or the call returns an error without
// having sent anything.
func emitOn(ctx context.Context, ch chan<- event.Event, seq *uint64, ev event.Event) error {
	stamped := ev.WithSeq(atomic.AddUint64(seq, 1))
	select {
	case ch <- stamped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitBlocking places ev on ch unconditionally, ignoring cancellation. Used
// only for RunStarted and the terminal Error and RunEnded events: every run
// must deliver exactly one RunEnded regardless of how it terminated.
func emitBlocking(ch chan<- event.Event, seq *uint64, ev event.Event) error {
	stamped := ev.WithSeq(atomic.AddUint64(seq, 1))
	ch <- stamped
	return nil
}

func sleepBackoff(ctx context.Context, cfg Config, attempt int) error {
	return backoff.Sleep(ctx, cfg.backoffPolicy, attempt)
}

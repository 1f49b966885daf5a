package graph

import (
	"time"

	"github.com/graphrt/graphrt/graph/backoff"
)

// Config is the executor's configuration surface.
type Config struct {
	maxIterations   int
	timeout         time.Duration
	channelCapacity int
	retryBudget     int
	backoffPolicy   backoff.Policy
}

// Option configures a Config via the functional-options pattern: typed,
// validated fields rather than a bare map.
type Option func(*Config)

// WithMaxIterations overrides the default guardrail on loop iterations
// (default 50).
func WithMaxIterations(n int) Option {
	return func(c *Config) { c.maxIterations = n }
}

// WithTimeout overrides the default wall-clock guardrail (default 5 minutes).
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.timeout = d }
}

// WithChannelCapacity overrides the default bounded event-channel capacity
// (default 1024).
func WithChannelCapacity(n int) Option {
	return func(c *Config) { c.channelCapacity = n }
}

// WithRetryBudget overrides the default number of retries the executor
// grants a node for retriable upstream failures (default 0).
func WithRetryBudget(n int) Option {
	return func(c *Config) { c.retryBudget = n }
}

// WithBackoffPolicy overrides the backoff schedule used between retries
// (default backoff.DefaultPolicy).
func WithBackoffPolicy(p backoff.Policy) Option {
	return func(c *Config) { c.backoffPolicy = p }
}

// NewConfig builds a Config from the given options, applying the package's
// defaults first.
func NewConfig(opts ...Option) Config {
	c := Config{
		maxIterations:   50,
		timeout:         5 * time.Minute,
		channelCapacity: 1024,
		retryBudget:     0,
		backoffPolicy:   backoff.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxIterations <= 0 {
		c.maxIterations = 50
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Minute
	}
	if c.channelCapacity <= 0 {
		c.channelCapacity = 1024
	}
	if c.retryBudget < 0 {
		c.retryBudget = 0
	}
	return c
}

// RunContext carries execution metadata for a single run invocation: run
// and conversation identity, free-form labels, and the attempt counter.
// GraphExecutor builds one per run in newState and keeps Attempt current as
// executeWithRetry retries a node; it is surfaced on GraphState and in
// published hooks.NodeCompleted payloads. Parent-run and agent-as-tool
// linkage are intentionally absent; multi-agent topologies are out of scope
// for this runtime.
type RunContext struct {
	RunID          string
	ConversationID string
	Labels         map[string]string
	Attempt        int
}

// Package backoff implements a small exponential backoff helper for the
// executor's node retry-budget path: an interval that doubles (by default)
// between attempts up to a configured ceiling.
package backoff

import (
	"context"
	"time"
)

// Policy configures exponential backoff between retry attempts of the same
// node.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// BackoffCoefficient multiplies the interval after each attempt.
	BackoffCoefficient float64
	// MaxInterval caps the computed delay.
	MaxInterval time.Duration
}

// DefaultPolicy mirrors common workflow-engine retry defaults: 500ms initial
// delay, doubling, capped at 30s.
var DefaultPolicy = Policy{
	InitialInterval:    500 * time.Millisecond,
	BackoffCoefficient: 2.0,
	MaxInterval:        30 * time.Second,
}

// Interval returns the delay before retry attempt n (1-indexed: the delay
// before the first retry is attempt 1).
func (p Policy) Interval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	coeff := p.BackoffCoefficient
	if coeff <= 0 {
		coeff = 1
	}
	d := float64(p.InitialInterval)
	for i := 1; i < attempt; i++ {
		d *= coeff
	}
	interval := time.Duration(d)
	if p.MaxInterval > 0 && interval > p.MaxInterval {
		interval = p.MaxInterval
	}
	return interval
}

// Sleep waits for the attempt's backoff interval, or returns ctx.Err() early
// if ctx is cancelled first. This is the node-execution suspension point
// the executor observes cancellation and timeout at while backing off.
func Sleep(ctx context.Context, p Policy, attempt int) error {
	timer := time.NewTimer(p.Interval(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package hooks implements the fire-and-forget observability bus: after
// each node completion the executor publishes a NodeCompleted event
// carrying {run_id, node_id, inputs, outputs, duration, status}.
// Failures in hook subscribers must never affect the run, so the executor
// only logs a Publish error — it never aborts or retries because of one.
package hooks

import (
	"context"
	"sync"
	"time"
)

// NodeCompleted is the payload published after every node execution,
// successful or not.
type NodeCompleted struct {
	RunID    string
	NodeID   string
	Inputs   any
	Outputs  any
	Duration time.Duration
	Status   string // "success", "upstream_failure", "protocol_violation", "cancelled", "timeout"
}

// Bus publishes node-completion notifications to registered subscribers in
// a synchronous fan-out pattern. The bus is thread-safe and supports
// concurrent Publish, Register, and Close operations.
type Bus interface {
	// Publish delivers event to every currently registered subscriber; the
	// order among subscribers is not defined and need not match registration
	// order. Iteration stops at the first subscriber error,
	// which Publish returns to the caller; the executor treats any
	// returned error as fire-and-forget and never lets it affect the run.
	Publish(ctx context.Context, event NodeCompleted) error
	// Register adds a subscriber and returns a Subscription that can be
	// closed to unregister.
	Register(sub Subscriber) (Subscription, error)
}

// Subscriber reacts to published node-completion events.
type Subscriber interface {
	HandleEvent(ctx context.Context, event NodeCompleted) error
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event NodeCompleted) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event NodeCompleted) error {
	return f(ctx, event)
}

// Subscription represents an active registration on a Bus.
type Subscription interface {
	// Close removes the subscriber from the bus. Idempotent and safe for
	// concurrent use.
	Close() error
}

type bus struct {
	mu          sync.RWMutex
	subscribers map[*subscription]Subscriber
}

type subscription struct {
	bus  *bus
	once sync.Once
}

// NewBus constructs a new in-memory, thread-safe observability bus.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

func (b *bus) Publish(ctx context.Context, event NodeCompleted) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errSubscriberRequired
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}

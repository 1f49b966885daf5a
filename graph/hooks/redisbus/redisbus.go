// Package redisbus publishes node-completion hook events to a Redis pub/sub
// channel, for a gateway process that wants to observe runs without linking
// directly against the executor that produced them.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/graphrt/graphrt/graph/hooks"
)

// Sink publishes hooks.NodeCompleted events to a Redis channel as JSON. It
// implements hooks.Subscriber so it can be registered on an in-process
// hooks.Bus alongside other subscribers.
type Sink struct {
	client  *redis.Client
	channel string
}

// New constructs a Sink that publishes to the given Redis channel using
// client. The caller owns the client's lifecycle.
func New(client *redis.Client, channel string) *Sink {
	return &Sink{client: client, channel: channel}
}

// wireEvent is the JSON shape published on the channel. Duration is encoded
// in milliseconds since it crosses a process boundary.
type wireEvent struct {
	RunID      string `json:"run_id"`
	NodeID     string `json:"node_id"`
	Inputs     any    `json:"inputs,omitempty"`
	Outputs    any    `json:"outputs,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// HandleEvent publishes event to the configured Redis channel. Errors are
// returned to the caller (the executor's Bus.Publish), which treats them as
// fire-and-forget and never lets them affect run execution.
func (s *Sink) HandleEvent(ctx context.Context, event hooks.NodeCompleted) error {
	payload, err := json.Marshal(wireEvent{
		RunID:      event.RunID,
		NodeID:     event.NodeID,
		Inputs:     event.Inputs,
		Outputs:    event.Outputs,
		DurationMs: event.Duration.Milliseconds(),
		Status:     event.Status,
	})
	if err != nil {
		return fmt.Errorf("redisbus: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish: %w", err)
	}
	return nil
}

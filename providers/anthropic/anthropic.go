// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// graph/model.Client contract, translating Anthropic's content-block SSE
// stream into model.Delta fragments (reasoning/content/tool-call chunks),
// with retry and exponential backoff around transient failures.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/graphrt/graphrt/graph/model"
)

// Config configures a Client. APIKey is required; everything else has a
// sensible default applied by New.
type Config struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string
	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string
	// MaxRetries sets the maximum retry attempts for transient stream-open
	// failures. Default: 3.
	MaxRetries int
	// RetryDelay sets the base delay between retry attempts; actual delay
	// uses exponential backoff. Default: 1 second.
	RetryDelay time.Duration
	// DefaultModel is used when a request's Config.Model is empty.
	// Default: "claude-sonnet-4-20250514".
	DefaultModel string
	// DefaultMaxTokens is used when a request's Config.MaxTokens is nil.
	// Default: 4096.
	DefaultMaxTokens int
}

// Client implements model.Client over the Anthropic Messages API.
type Client struct {
	client           anthropic.Client
	maxRetries       int
	retryDelay       time.Duration
	defaultModel     string
	defaultMaxTokens int
}

// New constructs a Client. Returns an error if cfg.APIKey is empty.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:           anthropic.NewClient(opts...),
		maxRetries:       cfg.MaxRetries,
		retryDelay:       cfg.RetryDelay,
		defaultModel:     cfg.DefaultModel,
		defaultMaxTokens: cfg.DefaultMaxTokens,
	}, nil
}

// Stream implements model.Client. It opens the streaming call; opening
// failures are retried up to maxRetries with exponential backoff before
// surfacing to the LLM node as a retriable upstream_failure.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}

	var lastErr error
	delay := c.retryDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
		stream := c.client.Messages.NewStreaming(ctx, params)
		if stream == nil {
			lastErr = errors.New("anthropic: nil stream")
			continue
		}
		// The request is sent when the stream is opened; a failure to open
		// it is reported through Err before the first Next.
		if err := stream.Err(); err != nil {
			_ = stream.Close()
			lastErr = err
			continue
		}
		return &streamer{stream: stream}, nil
	}
	return nil, fmt.Errorf("anthropic: stream open failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) buildParams(req model.Request) (anthropic.MessageNewParams, error) {
	messages, system, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	modelID := req.Config.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := int64(c.defaultMaxTokens)
	if req.Config.MaxTokens != nil {
		maxTokens = int64(*req.Config.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if req.Config.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Config.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(msgs []model.Message) ([]anthropic.MessageParam, string, error) {
	var system strings.Builder
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
		case model.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, "", fmt.Errorf("parse tool call %s arguments: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case model.RoleTool:
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out, system.String(), nil
}

func convertTools(defs []model.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema any
		if len(d.Schema) > 0 {
			if err := json.Unmarshal(d.Schema, &schema); err != nil {
				return nil, fmt.Errorf("parse tool %s schema: %w", d.Name, err)
			}
		}
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: schema,
		}, d.Name))
	}
	return out, nil
}

// streamer adapts an Anthropic SSE stream to model.Streamer, translating
// content-block events into Delta fragments indexed the way the graph's
// LLM node expects.
type streamer struct {
	stream        streamSource
	pendingFinish *model.Delta
	done          bool
}

// streamSource is the subset of *ssestream.Stream[anthropic.MessageStreamEventUnion]
// this package depends on, narrowed to keep the adapter testable with a fake.
type streamSource interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

func (s *streamer) Recv() (model.Delta, error) {
	if s.pendingFinish != nil {
		f := *s.pendingFinish
		s.pendingFinish = nil
		s.done = true
		return f, nil
	}
	if s.done {
		return model.Delta{}, io.EOF
	}

	for s.stream.Next() {
		ev := s.stream.Current()
		switch ev.Type {
		case "content_block_start":
			block := ev.AsContentBlockStart()
			if block.ContentBlock.Type == "tool_use" {
				tu := block.ContentBlock.AsToolUse()
				return model.Delta{
					Type: model.DeltaToolCall,
					ToolCall: model.ToolCallFragment{
						Index: int(block.Index),
						ID:    tu.ID,
						Name:  tu.Name,
					},
				}, nil
			}
		case "content_block_delta":
			d := ev.AsContentBlockDelta()
			switch d.Delta.Type {
			case "text_delta":
				if d.Delta.Text != "" {
					return model.Delta{Type: model.DeltaContent, Text: d.Delta.Text}, nil
				}
			case "thinking_delta":
				if d.Delta.Thinking != "" {
					return model.Delta{Type: model.DeltaReasoning, Text: d.Delta.Thinking}, nil
				}
			case "input_json_delta":
				if d.Delta.PartialJSON != "" {
					return model.Delta{
						Type: model.DeltaToolCall,
						ToolCall: model.ToolCallFragment{
							Index:         int(d.Index),
							ArgumentChunk: d.Delta.PartialJSON,
						},
					}, nil
				}
			}
		case "message_delta":
			md := ev.AsMessageDelta()
			f := model.Delta{Type: model.DeltaFinish, Finish: finishReason(string(md.Delta.StopReason))}
			s.pendingFinish = &f
		}
	}

	if err := s.stream.Err(); err != nil {
		return model.Delta{}, err
	}
	if s.pendingFinish != nil {
		f := *s.pendingFinish
		s.pendingFinish = nil
		s.done = true
		return f, nil
	}
	s.done = true
	return model.Delta{}, io.EOF
}

func (s *streamer) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func finishReason(stopReason string) model.FinishReason {
	switch stopReason {
	case "tool_use":
		return model.FinishToolCalls
	case "max_tokens":
		return model.FinishLength
	case "stop_sequence", "end_turn":
		return model.FinishStop
	default:
		return model.FinishStop
	}
}

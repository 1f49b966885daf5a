// Package openai adapts github.com/openai/openai-go to the graph/model.Client
// contract, translating OpenAI's chat-completion-chunk SSE stream into
// model.Delta fragments. Demonstrates that the LLM node is adapter-agnostic:
// this and providers/anthropic both satisfy model.Client.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/graphrt/graphrt/graph/model"
)

// Config configures a Client. APIKey is required.
type Config struct {
	APIKey           string
	BaseURL          string
	DefaultModel     string
	DefaultMaxTokens int
}

// Client implements model.Client over the OpenAI Chat Completions API.
type Client struct {
	client           openai.Client
	defaultModel     string
	defaultMaxTokens int
}

// New constructs a Client. Returns an error if cfg.APIKey is empty.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client:           openai.NewClient(opts...),
		defaultModel:     cfg.DefaultModel,
		defaultMaxTokens: cfg.DefaultMaxTokens,
	}, nil
}

// Stream implements model.Client.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if stream == nil {
		return nil, errors.New("openai: nil stream")
	}
	return &streamer{stream: stream, toolNames: map[int64]string{}}, nil
}

func (c *Client) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	modelID := req.Config.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: convertMessages(req.Messages),
	}
	if req.Config.Temperature != nil {
		params.Temperature = openai.Float(*req.Config.Temperature)
	}
	maxTokens := c.defaultMaxTokens
	if req.Config.MaxTokens != nil {
		maxTokens = *req.Config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case model.RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)}
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case model.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func convertTools(defs []model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Schema) > 0 {
			if err := json.Unmarshal(d.Schema, &schema); err != nil {
				return nil, fmt.Errorf("parse tool %s schema: %w", d.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

// streamSource is the subset of *ssestream.Stream[openai.ChatCompletionChunk]
// this package depends on.
type streamSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// streamer adapts OpenAI's chat-completion-chunk stream to model.Streamer.
// Tool call fragments arrive already indexed by OpenAI's own "index" field,
// matching the graph's ToolCallFragment.Index contract directly.
type streamer struct {
	stream        streamSource
	toolNames     map[int64]string
	pendingFinish *model.Delta
	done          bool
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
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			return model.Delta{Type: model.DeltaContent, Text: delta.Content}, nil
		}
		if len(delta.ToolCalls) > 0 {
			tc := delta.ToolCalls[0]
			name := tc.Function.Name
			if name != "" {
				s.toolNames[tc.Index] = name
			} else {
				// OpenAI sends the function name only on the fragment that
				// opens a tool call; later argument-only fragments for the
				// same index omit it. Backfill from what we've already seen
				// so every emitted fragment carries the name.
				name = s.toolNames[tc.Index]
			}
			return model.Delta{
				Type: model.DeltaToolCall,
				ToolCall: model.ToolCallFragment{
					Index:         int(tc.Index),
					ID:            tc.ID,
					Name:          name,
					ArgumentChunk: tc.Function.Arguments,
				},
			}, nil
		}
		if choice.FinishReason != "" {
			f := model.Delta{Type: model.DeltaFinish, Finish: finishReason(choice.FinishReason)}
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

func finishReason(reason string) model.FinishReason {
	switch reason {
	case "tool_calls":
		return model.FinishToolCalls
	case "length":
		return model.FinishLength
	case "content_filter":
		return model.FinishContentFilter
	default:
		return model.FinishStop
	}
}

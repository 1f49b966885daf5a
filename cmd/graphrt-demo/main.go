// Command graphrt-demo wires a GraphExecutor to a live LLM provider and a
// small set of demo tools, printing the event stream to stdout as it
// arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/graphrt/graphrt/graph"
	"github.com/graphrt/graphrt/graph/event"
	"github.com/graphrt/graphrt/graph/hooks"
	"github.com/graphrt/graphrt/graph/model"
	"github.com/graphrt/graphrt/graph/telemetry"
	"github.com/graphrt/graphrt/graph/tools"
	"github.com/graphrt/graphrt/providers/anthropic"
	"github.com/graphrt/graphrt/providers/openai"
)

func main() {
	var (
		provider       = flag.String("provider", "anthropic", "LLM provider: anthropic or openai")
		apiKey         = flag.String("api-key", os.Getenv("GRAPHRT_API_KEY"), "provider API key")
		modelID        = flag.String("model", "", "model identifier override")
		prompt         = flag.String("prompt", "What is 2+2?", "initial user message")
		maxIterations  = flag.Int("max-iterations", 50, "guardrail: max loop iterations")
		timeout        = flag.Duration("timeout", 5*time.Minute, "guardrail: wall-clock timeout")
		retryBudget    = flag.Int("retry-budget", 2, "retries granted to a node on retriable upstream failure")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphrt-demo: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := buildClient(*provider, *apiKey, *modelID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphrt-demo:", err)
		os.Exit(1)
	}

	registry, err := tools.NewRegistry(demoTools()...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphrt-demo: build tool registry:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defs, err := graph.ToolDefinitions(ctx, registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphrt-demo: list tools:", err)
		os.Exit(1)
	}

	cfg := graph.NewConfig(
		graph.WithMaxIterations(*maxIterations),
		graph.WithTimeout(*timeout),
		graph.WithRetryBudget(*retryBudget),
	)
	executor := graph.NewGraphExecutor(
		graph.NewLLMNode(client, defs...),
		graph.NewToolNode(registry),
		cfg,
		graph.WithBus(hooks.NewBus()),
		graph.WithLogger(telemetry.NewZapLogger(logger)),
		graph.WithMetrics(telemetry.NewOtelMetrics()),
		graph.WithTracer(telemetry.NewOtelTracer()),
	)

	runID, events := executor.SpawnRun(ctx, graph.GraphInput{
		ConversationID: "demo",
		Messages:       []graph.Message{{Role: graph.RoleUser, Content: *prompt}},
		LLMConfig:      graph.LLMConfig{Model: *modelID},
		Labels:         map[string]string{"provider": *provider},
	})
	fmt.Printf("run %s started\n", runID)

	for ev := range events {
		printEvent(ev)
	}
}

func buildClient(provider, apiKey, modelID string) (model.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set -api-key or GRAPHRT_API_KEY")
	}
	switch provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: apiKey, DefaultModel: modelID})
	case "openai":
		return openai.New(openai.Config{APIKey: apiKey, DefaultModel: modelID})
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", provider)
	}
}

func printEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.RunStarted:
		fmt.Printf("[%d] run_started conversation=%s\n", e.Seq(), e.ConversationID)
	case event.Reasoning:
		fmt.Printf("[%d] reasoning %q\n", e.Seq(), e.Chunk)
	case event.Message:
		fmt.Printf("[%d] message %q\n", e.Seq(), e.Chunk)
	case event.ToolCall:
		fmt.Printf("[%d] tool_call %s(%s) id=%s\n", e.Seq(), e.Name, e.Arguments, e.ID)
	case event.ToolResult:
		fmt.Printf("[%d] tool_result %s status=%s content=%s\n", e.Seq(), e.Name, e.Status, e.Content)
	case event.RunEnded:
		fmt.Printf("[%d] run_ended status=%s\n", e.Seq(), e.Status)
	case event.Error:
		fmt.Printf("[%d] error kind=%s message=%s\n", e.Seq(), e.Kind, e.Message)
	default:
		fmt.Printf("unknown event type %T\n", ev)
	}
}

func demoTools() []tools.Entry {
	weatherSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"loc": {"type": "string"}},
		"required": ["loc"]
	}`)
	return []tools.Entry{
		{
			Definition: tools.Definition{
				Name:        "get_weather",
				Description: "Return a canned weather reading for a location.",
				Schema:      weatherSchema,
			},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Loc string `json:"loc"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", err
				}
				return fmt.Sprintf(`{"loc":%q,"temp":22}`, in.Loc), nil
			},
		},
	}
}

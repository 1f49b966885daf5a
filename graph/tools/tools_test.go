package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphrt/graphrt/graph/toolerrors"
)

func weatherEntry(handler Handler) Entry {
	return Entry{
		Definition: Definition{
			Name:        "get_weather",
			Description: "look up the weather",
			Schema:      []byte(`{"type":"object","properties":{"loc":{"type":"string"}},"required":["loc"]}`),
		},
		Handler: handler,
	}
}

func TestNewRegistryRejectsMalformedSchema(t *testing.T) {
	_, err := NewRegistry(Entry{
		Definition: Definition{Name: "bad", Schema: []byte(`{"type":`)},
		Handler:    func(context.Context, json.RawMessage) (string, error) { return "", nil },
	})
	require.Error(t, err)
}

func TestRegistryListTools(t *testing.T) {
	r, err := NewRegistry(weatherEntry(func(context.Context, json.RawMessage) (string, error) { return "ok", nil }))
	require.NoError(t, err)
	defs, err := r.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "get_weather", defs[0].Name)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), "nope", []byte(`{}`))
	var te *toolerrors.ToolError
	require.True(t, errors.As(err, &te))
	require.Equal(t, toolerrors.KindUnknownTool, te.Kind)
}

func TestRegistryExecuteInvalidArguments(t *testing.T) {
	r, err := NewRegistry(weatherEntry(func(context.Context, json.RawMessage) (string, error) { return "ok", nil }))
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), "get_weather", []byte(`{}`))
	var te *toolerrors.ToolError
	require.True(t, errors.As(err, &te))
	require.Equal(t, toolerrors.KindInvalidArguments, te.Kind)
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r, err := NewRegistry(weatherEntry(func(context.Context, json.RawMessage) (string, error) { return `{"temp":22}`, nil }))
	require.NoError(t, err)
	content, err := r.Execute(context.Background(), "get_weather", []byte(`{"loc":"SF"}`))
	require.NoError(t, err)
	require.Equal(t, `{"temp":22}`, content)
}

func TestRegistryExecuteHandlerFailure(t *testing.T) {
	r, err := NewRegistry(weatherEntry(func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("downstream unavailable")
	}))
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), "get_weather", []byte(`{"loc":"SF"}`))
	var te *toolerrors.ToolError
	require.True(t, errors.As(err, &te))
	require.Equal(t, toolerrors.KindAdapterFailure, te.Kind)
}

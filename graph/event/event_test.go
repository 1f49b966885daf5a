package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithSeqDoesNotMutateOriginal(t *testing.T) {
	base := NewMessage("run1", "hello")
	require.Equal(t, uint64(0), base.Seq())

	stamped := base.WithSeq(5)
	require.Equal(t, uint64(5), stamped.Seq())
	require.Equal(t, uint64(0), base.Seq(), "WithSeq must not mutate the receiver")
}

func TestErrorKindFatal(t *testing.T) {
	require.True(t, ErrorKindProtocolViolation.Fatal())
	require.False(t, ErrorKindUpstreamFailure.Fatal())
	require.False(t, ErrorKindCancelled.Fatal())
}

func TestEventTypesRoundTrip(t *testing.T) {
	tests := []struct {
		ev   Event
		want Type
	}{
		{NewRunStarted("r", "c"), TypeRunStarted},
		{NewReasoning("r", "x"), TypeReasoning},
		{NewMessage("r", "x"), TypeMessage},
		{NewToolCall("r", "id", "name", "{}"), TypeToolCall},
		{NewToolResult("r", "id", "name", "ok", ToolStatusSuccess, nil), TypeToolResult},
		{NewRunEnded("r", RunStatusCompleted), TypeRunEnded},
		{NewError("r", ErrorKindProtocolViolation, "bad"), TypeError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.ev.Type())
		require.Equal(t, "r", tt.ev.RunID())
	}
}

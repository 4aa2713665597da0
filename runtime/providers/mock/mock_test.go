package mock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/barre/runtime/providers"
	"github.com/AltairaLabs/barre/runtime/types"
)

func drain(t *testing.T, ch <-chan providers.StreamChunk) (deltas []string, final providers.StreamChunk) {
	t.Helper()
	for chunk := range ch {
		if chunk.Delta != "" {
			deltas = append(deltas, chunk.Delta)
		}
		final = chunk
	}
	return deltas, final
}

func TestDefaultResponses(t *testing.T) {
	p := NewProvider("", "mock-model")
	assert.Equal(t, "mock", p.ID())

	resp, err := p.Predict(context.Background(), providers.PredictionRequest{ResponseFormat: providers.ResponseFormatJSON})
	require.NoError(t, err)
	assert.Equal(t, DefaultScores, resp.Content)

	stream, err := p.PredictStream(context.Background(), providers.PredictionRequest{})
	require.NoError(t, err)
	deltas, final := drain(t, stream)
	assert.Equal(t, DefaultFeedback, strings.Join(deltas, ""))
	assert.Equal(t, DefaultFeedback, final.Content)
	require.NotNil(t, final.FinishReason)
	assert.Len(t, p.Requests(), 2)
}

func TestQueuedResponsesThenResponder(t *testing.T) {
	p := NewProvider("m", "x").
		WithResponses("first", "second").
		WithResponder(func(providers.PredictionRequest) (string, error) { return "fallback", nil })

	for _, want := range []string{"first", "second", "fallback"} {
		resp, err := p.Predict(context.Background(), providers.PredictionRequest{})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}
}

func TestWithError(t *testing.T) {
	boom := errors.New("boom")
	p := NewProvider("m", "x").WithError(boom)
	_, err := p.Predict(context.Background(), providers.PredictionRequest{})
	assert.ErrorIs(t, err, boom)
	_, err = p.PredictStream(context.Background(), providers.PredictionRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestGateBlocksUntilReleased(t *testing.T) {
	gate := make(chan struct{})
	p := NewProvider("m", "x").WithGate(gate)

	done := make(chan struct{})
	go func() {
		_, _ = p.Predict(context.Background(), providers.PredictionRequest{})
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(p.Requests()) == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("call returned before gate opened")
	default:
	}
	close(gate)
	<-done
}

func TestGateHonoursContext(t *testing.T) {
	p := NewProvider("m", "x").WithGate(make(chan struct{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Predict(ctx, providers.PredictionRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamCancelledMidway(t *testing.T) {
	p := NewProvider("m", "x").WithResponses("a b c d e f").WithTokenDelay(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	stream, err := p.PredictStream(ctx, providers.PredictionRequest{})
	require.NoError(t, err)
	_, final := drain(t, stream)
	assert.Error(t, final.Error)
}

func TestRequestsAreRecorded(t *testing.T) {
	p := NewProvider("m", "x")
	req := providers.PredictionRequest{
		System:   "sys",
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	}
	_, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	got := p.Requests()
	require.Len(t, got, 1)
	assert.Equal(t, "sys", got[0].System)
}

func TestSplitTokens(t *testing.T) {
	assert.Equal(t, []string{"a ", "b ", "c"}, splitTokens("a b c"))
	assert.Empty(t, splitTokens(""))
}

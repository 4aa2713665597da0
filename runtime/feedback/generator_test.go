package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AltairaLabs/barre/pkg/testutil"
	"github.com/AltairaLabs/barre/runtime/providers/mock"
	"github.com/AltairaLabs/barre/runtime/telemetry"
	"github.com/AltairaLabs/barre/runtime/types"
)

type recordingObserver struct {
	mu     sync.Mutex
	failed []bool
}

func (o *recordingObserver) GenerationFinished(_ time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, failed)
}

func TestBuildRequest_ImagesInCaptureOrder(t *testing.T) {
	g := NewGenerator(mock.NewProvider("", "vision"), Config{})
	b := types.Batch{Seq: 1, Frames: testutil.Frames(10)}

	req := g.BuildRequest(b)

	assert.Equal(t, DefaultSystemPrompt, req.System)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	msg := req.Messages[0]
	assert.Equal(t, "user", msg.Role)
	require.Len(t, msg.Parts, 11)

	require.NotNil(t, msg.Parts[0].Text)
	assert.Equal(t, types.ContentTypeText, msg.Parts[0].Type)
	assert.Equal(t, Instruction(10), *msg.Parts[0].Text)

	for i, part := range msg.Parts[1:] {
		require.Equal(t, types.ContentTypeImage, part.Type)
		require.NotNil(t, part.Media)
		assert.Equal(t, b.Frames[i].Base64(), part.Media.Data, "image %d out of order", i)
		assert.Equal(t, DefaultDetail, part.Media.Detail)
	}
}

func TestGenerate_StreamsToListeners(t *testing.T) {
	p := mock.NewProvider("", "vision").WithResponses("Lift the chin. Soften the knee.")
	g := NewGenerator(p, Config{})

	var deltas []string
	var last string
	g.AddListener(func(seq uint64, delta, accumulated string) {
		assert.Equal(t, uint64(3), seq)
		deltas = append(deltas, delta)
		last = accumulated
	})

	res := g.Generate(context.Background(), types.Batch{Seq: 3, Frames: testutil.Frames(10)})

	assert.False(t, res.Failed)
	assert.NoError(t, res.Err)
	assert.Equal(t, "Lift the chin. Soften the knee.", res.Text)
	assert.Equal(t, res.Text, last)
	assert.Len(t, deltas, 6)
	assert.Equal(t, uint64(3), res.BatchSeq)
	assert.Len(t, p.Requests(), 1)
}

func TestGenerate_ProviderErrorYieldsSentinel(t *testing.T) {
	obs := &recordingObserver{}
	p := mock.NewProvider("", "vision").WithError(errors.New("upstream 503"))
	g := NewGenerator(p, Config{}, WithObserver(obs))

	res := g.Generate(context.Background(), types.Batch{Seq: 1, Frames: testutil.Frames(10)})

	assert.True(t, res.Failed)
	assert.Equal(t, FailureText, res.Text)
	assert.EqualError(t, res.Err, "upstream 503")
	assert.Equal(t, []bool{true}, obs.failed)
}

func TestGenerate_TimeoutYieldsSentinel(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	p := mock.NewProvider("", "vision").WithGate(gate)
	g := NewGenerator(p, Config{Timeout: 20 * time.Millisecond})

	res := g.Generate(context.Background(), types.Batch{Seq: 1, Frames: testutil.Frames(2)})

	assert.True(t, res.Failed)
	assert.Equal(t, FailureText, res.Text)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestGenerate_MidStreamTimeout(t *testing.T) {
	p := mock.NewProvider("", "vision").
		WithResponses("one two three four five six").
		WithTokenDelay(15 * time.Millisecond)
	g := NewGenerator(p, Config{Timeout: 40 * time.Millisecond})

	res := g.Generate(context.Background(), types.Batch{Seq: 1, Frames: testutil.Frames(2)})

	assert.True(t, res.Failed)
	assert.Equal(t, FailureText, res.Text)
}

func TestGenerate_EmptyBatch(t *testing.T) {
	p := mock.NewProvider("", "vision")
	g := NewGenerator(p, Config{})

	res := g.Generate(context.Background(), types.Batch{Seq: 1})

	assert.True(t, res.Failed)
	assert.Empty(t, p.Requests())
}

func TestGenerate_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	obs := &recordingObserver{}
	g := NewGenerator(mock.NewProvider("", "vision"), Config{},
		WithTracer(telemetry.Tracer(tp)), WithObserver(obs))

	res := g.Generate(context.Background(), types.Batch{Seq: 7, Frames: testutil.Frames(3)})
	require.False(t, res.Failed)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "feedback.generate", spans[0].Name())
	assert.Equal(t, []bool{false}, obs.failed)
}

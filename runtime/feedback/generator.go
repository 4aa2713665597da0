// Package feedback turns a batch of frames into streamed coaching text.
//
// Generate never returns an error: request failures, stream errors and
// timeouts produce a Result whose Text is FailureText and whose Failed flag
// is set, so the pipeline moves on to the next batch.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/providers"
	"github.com/AltairaLabs/barre/runtime/telemetry"
	"github.com/AltairaLabs/barre/runtime/types"
)

// FailureText replaces the feedback of a batch whose generation failed.
const FailureText = "Unable to generate feedback for this sequence. Keep practicing and feedback will resume with the next set of frames."

// DefaultSystemPrompt is the coaching persona.
const DefaultSystemPrompt = "You are a professional ballet coach. Provide frame-by-frame and overall feedback for the sequence."

// Defaults for a generation request.
const (
	DefaultMaxTokens = 700
	DefaultTimeout   = 60 * time.Second
	DefaultDetail    = "low"
)

var errEmptyBatch = errors.New("feedback: empty batch")

// Instruction returns the user instruction that precedes the frames.
func Instruction(frames int) string {
	return fmt.Sprintf("Analyze this dance sequence (%d frames). Provide feedback on posture, errors, and transitions.", frames)
}

// TokenListener observes streamed text. accumulated is the full text so far.
type TokenListener func(batchSeq uint64, delta, accumulated string)

// Observer is notified when a generation finishes, typically for metrics.
type Observer interface {
	GenerationFinished(elapsed time.Duration, failed bool)
}

// Config tunes generation requests.
type Config struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	ImageDetail  string
	Timeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ImageDetail == "" {
		c.ImageDetail = DefaultDetail
	}
}

// Result is the outcome of one generation.
type Result struct {
	BatchSeq uint64
	Text     string
	Failed   bool
	Err      error
	Latency  time.Duration
	CostInfo *types.CostInfo
}

// Option configures a Generator.
type Option func(*Generator)

// WithTracer sets the tracer used for generation spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) { g.tracer = t }
}

// WithObserver registers a completion observer.
func WithObserver(o Observer) Option {
	return func(g *Generator) { g.observer = o }
}

// Generator sends batches to a streaming vision provider.
type Generator struct {
	provider providers.Provider
	cfg      Config
	tracer   trace.Tracer
	observer Observer

	mu        sync.RWMutex
	listeners []TokenListener
}

// NewGenerator creates a generator over provider.
func NewGenerator(provider providers.Provider, cfg Config, opts ...Option) *Generator {
	cfg.applyDefaults()
	g := &Generator{
		provider: provider,
		cfg:      cfg,
		tracer:   telemetry.Tracer(nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddListener registers a token listener.
func (g *Generator) AddListener(l TokenListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

func (g *Generator) notify(seq uint64, delta, accumulated string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, l := range g.listeners {
		l(seq, delta, accumulated)
	}
}

// BuildRequest assembles the vision request for b: the system prompt and a
// single user message holding the instruction followed by one image per
// frame in capture order.
func (g *Generator) BuildRequest(b types.Batch) providers.PredictionRequest {
	parts := make([]types.ContentPart, 0, len(b.Frames)+1)
	parts = append(parts, types.NewTextPart(Instruction(len(b.Frames))))
	for _, f := range b.Frames {
		parts = append(parts, types.NewImagePartFromFrame(f, g.cfg.ImageDetail))
	}
	return providers.PredictionRequest{
		System:      g.cfg.SystemPrompt,
		Messages:    []types.Message{{Role: "user", Parts: parts, Timestamp: time.Now()}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}
}

// Generate streams feedback for b. It always returns a usable Result.
func (g *Generator) Generate(ctx context.Context, b types.Batch) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "feedback.generate", trace.WithAttributes(
		attribute.Int64("batch.seq", int64(b.Seq)),
		attribute.Int("batch.frames", len(b.Frames)),
		attribute.String("llm.model", g.provider.Model()),
	))
	defer span.End()
	ctx = logger.WithBatchSeq(ctx, strconv.FormatUint(b.Seq, 10))
	ctx = logger.WithModel(logger.WithStage(ctx, "feedback"), g.provider.Model())

	text, cost, err := g.stream(ctx, b)

	res := Result{BatchSeq: b.Seq, Text: text, Latency: time.Since(start), CostInfo: cost}
	if err != nil {
		res.Text = FailureText
		res.Failed = true
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.LLMError(g.provider.ID(), "feedback", err, "batch_seq", b.Seq, "latency", res.Latency)
	} else if cost != nil {
		logger.LLMResponse(g.provider.ID(), "feedback", cost.InputTokens, cost.OutputTokens, "batch_seq", b.Seq)
	}
	span.SetAttributes(attribute.Bool("feedback.failed", res.Failed))

	if g.observer != nil {
		g.observer.GenerationFinished(res.Latency, res.Failed)
	}
	return res
}

func (g *Generator) stream(ctx context.Context, b types.Batch) (string, *types.CostInfo, error) {
	if len(b.Frames) == 0 {
		return "", nil, errEmptyBatch
	}

	req := g.BuildRequest(b)
	logger.LLMCall(g.provider.ID(), "feedback", len(req.Messages), len(b.Frames), "model", g.provider.Model())

	chunks, err := g.provider.PredictStream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	accumulated := ""
	for chunk := range chunks {
		if chunk.Error != nil {
			// Drain so the provider goroutine can exit.
			for range chunks {
			}
			return accumulated, nil, chunk.Error
		}
		if chunk.Delta != "" {
			accumulated += chunk.Delta
			g.notify(b.Seq, chunk.Delta, accumulated)
		}
		if chunk.FinishReason != nil {
			return accumulated, chunk.CostInfo, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return accumulated, nil, err
	}
	if accumulated == "" {
		return "", nil, errors.New("feedback: stream ended without content")
	}
	return accumulated, nil, nil
}

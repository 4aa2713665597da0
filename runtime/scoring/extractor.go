// Package scoring derives numeric sub-scores from feedback text with a
// JSON-only completion.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/providers"
	"github.com/AltairaLabs/barre/runtime/telemetry"
	"github.com/AltairaLabs/barre/runtime/types"
)

// ErrScoreParse is returned when the model output does not satisfy the score
// contract. The accompanying scores are indeterminate.
var ErrScoreParse = errors.New("scoring: response does not match score contract")

// SystemPrompt instructs the model to reply with the score object only.
const SystemPrompt = `You are a professional ballet coach analyzing dance performance.
Analyze the feedback and provide scores (0-100) for:
1. Flexibility - how well the dancer demonstrates extension and range of motion
2. Alignment - quality of body alignment and posture
3. Smoothness - how fluid and connected the movements are
4. Energy - level of energy and engagement in the performance

Respond in JSON format only:
{
  "flexibility": number,
  "alignment": number,
  "smoothness": number,
  "energy": number,
  "explanation": "brief explanation of scores"
}`

// Defaults for a scoring request.
const (
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
	DefaultTimeout     = 30 * time.Second
)

// scoreSchema is the contract a scoring response must satisfy. Additional
// keys are tolerated.
const scoreSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["flexibility", "alignment", "smoothness", "energy", "explanation"],
  "properties": {
    "flexibility": {"type": "number"},
    "alignment": {"type": "number"},
    "smoothness": {"type": "number"},
    "energy": {"type": "number"},
    "explanation": {"type": "string"}
  }
}`

var schema = mustSchema(scoreSchema)

func mustSchema(s string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("scoring: invalid score schema: %v", err))
	}
	return compiled
}

// Observer is notified after each extraction.
type Observer interface {
	ScoringFinished(elapsed time.Duration, parseFailed bool)
}

// Config tunes scoring requests.
type Config struct {
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTracer sets the tracer used for scoring spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Extractor) { e.tracer = t }
}

// WithObserver registers an extraction observer.
func WithObserver(o Observer) Option {
	return func(e *Extractor) { e.observer = o }
}

// Extractor turns feedback text into Scores.
type Extractor struct {
	provider providers.Provider
	cfg      Config
	tracer   trace.Tracer
	observer Observer
}

// NewExtractor creates an extractor over provider.
func NewExtractor(provider providers.Provider, cfg Config, opts ...Option) *Extractor {
	cfg.applyDefaults()
	e := &Extractor{provider: provider, cfg: cfg, tracer: telemetry.Tracer(nil)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildRequest assembles the scoring request for feedback text.
func (e *Extractor) BuildRequest(text string) providers.PredictionRequest {
	return providers.PredictionRequest{
		System: SystemPrompt,
		Messages: []types.Message{{
			Role:      "user",
			Content:   "Analyze this feedback and provide scores:\n\n" + text,
			Timestamp: time.Now(),
		}},
		MaxTokens:      e.cfg.MaxTokens,
		Temperature:    e.cfg.Temperature,
		ResponseFormat: providers.ResponseFormatJSON,
	}
}

// Extract requests scores for text. Transport failures are returned as-is;
// malformed output yields ErrScoreParse. Either way the scores are
// indeterminate.
func (e *Extractor) Extract(ctx context.Context, text string) (types.Scores, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "scoring.extract",
		trace.WithAttributes(attribute.String("llm.model", e.provider.Model())))
	defer span.End()
	ctx = logger.WithModel(logger.WithStage(ctx, "scoring"), e.provider.Model())

	scores, err := e.extract(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "Score extraction failed", "provider", e.provider.ID(), "error", err)
	}
	if e.observer != nil {
		e.observer.ScoringFinished(time.Since(start), err != nil)
	}
	return scores, err
}

func (e *Extractor) extract(ctx context.Context, text string) (types.Scores, error) {
	logger.LLMCall(e.provider.ID(), "scoring", 1, 0, "model", e.provider.Model())
	resp, err := e.provider.Predict(ctx, e.BuildRequest(text))
	if err != nil {
		return types.Scores{}, err
	}
	if resp.CostInfo != nil {
		logger.LLMResponse(e.provider.ID(), "scoring", resp.CostInfo.InputTokens, resp.CostInfo.OutputTokens)
	}
	return Parse(resp.Content)
}

// Parse validates body against the score contract and returns the scores.
// Values are not clamped.
func Parse(body string) (types.Scores, error) {
	body = strings.TrimSpace(body)
	result, err := schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return types.Scores{}, fmt.Errorf("%w: %v", ErrScoreParse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return types.Scores{}, fmt.Errorf("%w: %s", ErrScoreParse, strings.Join(msgs, "; "))
	}

	var raw struct {
		Flexibility json.Number `json:"flexibility"`
		Alignment   json.Number `json:"alignment"`
		Smoothness  json.Number `json:"smoothness"`
		Energy      json.Number `json:"energy"`
		Explanation string      `json:"explanation"`
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return types.Scores{}, fmt.Errorf("%w: %v", ErrScoreParse, err)
	}

	var scores types.Scores
	for _, f := range []struct {
		n   json.Number
		dst **int
	}{
		{raw.Flexibility, &scores.Flexibility},
		{raw.Alignment, &scores.Alignment},
		{raw.Smoothness, &scores.Smoothness},
		{raw.Energy, &scores.Energy},
	} {
		v, err := toInt(f.n)
		if err != nil {
			return types.Scores{}, fmt.Errorf("%w: %v", ErrScoreParse, err)
		}
		*f.dst = &v
	}
	scores.Explanation = raw.Explanation
	return scores, nil
}

// toInt rounds fractional scores ("82.5") to the nearest integer.
func toInt(n json.Number) (int, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

// OverallScore returns the 0-10 session score for s, or nil when any
// sub-score is unknown.
func OverallScore(s types.Scores) *int {
	return s.Overall()
}

// Package mock provides a scriptable in-process provider for tests and
// offline runs.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/providers"
)

// Default canned responses.
const (
	DefaultFeedback = "Good extension through the arms. Keep the supporting knee soft and " +
		"lift through the crown of the head. Try to finish each movement before starting the next."
	DefaultScores = `{"flexibility": 78, "alignment": 82, "smoothness": 75, "energy": 80, ` +
		`"explanation": "Solid lines with room to refine transitions."}`
)

func init() {
	providers.RegisterProviderFactory("mock", func(spec providers.ProviderSpec) (providers.Provider, error) {
		return NewProvider(spec.ID, spec.Model), nil
	})
}

// Responder produces the response text for a request.
type Responder func(req providers.PredictionRequest) (string, error)

// Provider is a provider implementation that never leaves the process. By
// default it answers JSON-format requests with DefaultScores and everything
// else with DefaultFeedback. Every request is recorded.
type Provider struct {
	id    string
	model string

	mu         sync.Mutex
	responder  Responder
	queue      []string
	err        error
	gate       chan struct{}
	tokenDelay time.Duration
	requests   []providers.PredictionRequest
}

// NewProvider creates a mock provider with the default responder.
func NewProvider(id, model string) *Provider {
	if id == "" {
		id = "mock"
	}
	return &Provider{id: id, model: model}
}

// WithResponses queues responses returned in order before falling back to
// the responder.
func (m *Provider) WithResponses(responses ...string) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
	return m
}

// WithResponder replaces the default responder.
func (m *Provider) WithResponder(r Responder) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = r
	return m
}

// WithError makes every call fail with err.
func (m *Provider) WithError(err error) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithGate blocks each call until a value is received from (or the close of) gate.
func (m *Provider) WithGate(gate chan struct{}) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = gate
	return m
}

// WithTokenDelay spaces streamed tokens out by d.
func (m *Provider) WithTokenDelay(d time.Duration) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenDelay = d
	return m
}

// ID returns the provider ID.
func (m *Provider) ID() string { return m.id }

// Model returns the configured model name.
func (m *Provider) Model() string { return m.model }

// Close is a no-op.
func (m *Provider) Close() error { return nil }

// Requests returns a copy of every request received so far.
func (m *Provider) Requests() []providers.PredictionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]providers.PredictionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// respond records the request, waits on the gate and resolves the response.
func (m *Provider) respond(ctx context.Context, req providers.PredictionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	if m.responder != nil {
		return m.responder(req)
	}
	if req.ResponseFormat == providers.ResponseFormatJSON {
		return DefaultScores, nil
	}
	return DefaultFeedback, nil
}

// Predict returns the next response.
func (m *Provider) Predict(ctx context.Context, req providers.PredictionRequest) (providers.PredictionResponse, error) {
	start := time.Now()
	text, err := m.respond(ctx, req)
	if err != nil {
		return providers.PredictionResponse{Latency: time.Since(start)}, err
	}
	logger.Debug("Mock provider predict", "provider_id", m.id, "model", m.model, "chars", len(text))
	return providers.PredictionResponse{Content: text, Latency: time.Since(start)}, nil
}

// PredictStream streams the next response word by word.
func (m *Provider) PredictStream(ctx context.Context, req providers.PredictionRequest) (<-chan providers.StreamChunk, error) {
	text, err := m.respond(ctx, req)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	delay := m.tokenDelay
	m.mu.Unlock()

	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		accumulated := ""
		tokens := splitTokens(text)
		for i, tok := range tokens {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
				}
			}
			if ctx.Err() != nil {
				out <- providers.StreamChunk{
					Content:      accumulated,
					Error:        ctx.Err(),
					FinishReason: providers.StringPtr(providers.FinishReasonCancelled),
				}
				return
			}
			accumulated += tok
			out <- providers.StreamChunk{
				Content:     accumulated,
				Delta:       tok,
				TokenCount:  i + 1,
				DeltaTokens: 1,
			}
		}
		out <- providers.StreamChunk{
			Content:      accumulated,
			TokenCount:   len(tokens),
			FinishReason: providers.StringPtr(providers.FinishReasonStop),
		}
	}()
	return out, nil
}

// splitTokens splits text into words, keeping the trailing space on each.
func splitTokens(text string) []string {
	var tokens []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			tokens = append(tokens, text)
			break
		}
		tokens = append(tokens, text[:i+1])
		text = text[i+1:]
	}
	return tokens
}

var _ providers.Provider = (*Provider)(nil)

// Package providers defines the completion-endpoint abstraction used by the
// feedback and scoring steps.
//
// A Provider offers two calls against a chat-completion endpoint:
//   - Predict: a single non-streaming completion (used for JSON scoring)
//   - PredictStream: an incremental token stream (used for live feedback)
//
// Messages may interleave text and image content parts.
package providers

import (
	"context"
	"time"

	"github.com/AltairaLabs/barre/runtime/types"
)

// Response formats accepted in PredictionRequest.ResponseFormat.
const (
	ResponseFormatText = ""
	ResponseFormatJSON = "json_object"
)

// PredictionRequest represents a request to a completion provider.
type PredictionRequest struct {
	System      string          `json:"system"`
	Messages    []types.Message `json:"messages"`
	Temperature float32         `json:"temperature"`
	TopP        float32         `json:"top_p"`
	MaxTokens   int             `json:"max_tokens"`
	// ResponseFormat asks the endpoint to constrain its output, e.g. to a JSON object.
	ResponseFormat string                 `json:"response_format,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PredictionResponse represents a response from a completion provider.
type PredictionResponse struct {
	Content    string          `json:"content"`
	CostInfo   *types.CostInfo `json:"cost_info,omitempty"`
	Latency    time.Duration   `json:"latency"`
	Raw        []byte          `json:"raw,omitempty"`
	RawRequest interface{}     `json:"raw_request,omitempty"`
}

// Pricing defines cost per 1K tokens for input and output
type Pricing struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// ProviderDefaults holds default parameters for providers
type ProviderDefaults struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Pricing     Pricing
}

// Provider is the contract for completion providers.
type Provider interface {
	ID() string
	Model() string

	Predict(ctx context.Context, req PredictionRequest) (PredictionResponse, error)
	PredictStream(ctx context.Context, req PredictionRequest) (<-chan StreamChunk, error)

	Close() error
}

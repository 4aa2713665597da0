package providers

import "github.com/AltairaLabs/barre/runtime/types"

// Finish reasons reported on the last StreamChunk.
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonError     = "error"
	FinishReasonCancelled = "cancelled"
)

// StreamChunk represents a batch of tokens with metadata
type StreamChunk struct {
	// Content is the accumulated content so far
	Content string `json:"content"`

	// Delta is the new content in this chunk
	Delta string `json:"delta"`

	// TokenCount is the total number of tokens so far
	TokenCount int `json:"token_count"`

	// DeltaTokens is the number of tokens in this delta
	DeltaTokens int `json:"delta_tokens"`

	// FinishReason is nil until stream is complete
	FinishReason *string `json:"finish_reason,omitempty"`

	// Error is set if an error occurred during streaming
	Error error `json:"-"`

	// CostInfo is set on the final chunk when the endpoint reports usage
	CostInfo *types.CostInfo `json:"cost_info,omitempty"`
}

// Done reports whether this is the final chunk of the stream.
func (c *StreamChunk) Done() bool {
	return c.FinishReason != nil || c.Error != nil
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

package types

import "time"

// Message is a prompt message sent to a completion endpoint. Plain text
// messages set Content; multimodal messages set Parts instead.
type Message struct {
	Role    string        `json:"role"` // "system", "user", "assistant"
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// IsMultimodal reports whether the message carries content parts.
func (m *Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// ImageCount returns the number of image parts in the message.
func (m *Message) ImageCount() int {
	n := 0
	for i := range m.Parts {
		if m.Parts[i].Type == ContentTypeImage {
			n++
		}
	}
	return n
}

// CostInfo tracks token usage and associated costs for an LLM call.
type CostInfo struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	CachedTokens  int     `json:"cached_tokens,omitempty"`
	InputCostUSD  float64 `json:"input_cost_usd"`
	OutputCostUSD float64 `json:"output_cost_usd"`
	TotalCost     float64 `json:"total_cost_usd"`
}

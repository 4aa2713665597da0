package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChatRole is the author of a chat message.
type ChatRole string

// Chat roles as understood by the backend.
const (
	ChatRoleUser ChatRole = "user"
	ChatRoleAI   ChatRole = "ai"
)

// ChatKind tags the payload carried by a chat message.
type ChatKind string

// Chat message kinds.
const (
	ChatKindText           ChatKind = "text"
	ChatKindCameraFeedback ChatKind = "camera_feedback"
)

// ChatMessage is the single canonical chat/feedback message shape. The
// backend has historically stored the text under either "content" or
// "message"; both are accepted when decoding and only "content" is written.
type ChatMessage struct {
	ID        string    `json:"-"`
	Role      ChatRole  `json:"-"`
	Kind      ChatKind  `json:"-"`
	Text      string    `json:"-"`
	ImageURL  string    `json:"-"`
	Timestamp time.Time `json:"-"`
}

type chatMessageWire struct {
	ID        string     `json:"_id,omitempty"`
	Role      ChatRole   `json:"role"`
	Kind      ChatKind   `json:"type,omitempty"`
	Content   *string    `json:"content,omitempty"`
	Message   *string    `json:"message,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// NewFeedbackMessage builds the AI camera-feedback message mirrored into chat
// history for one feedback entry.
func NewFeedbackMessage(text string, image Frame) ChatMessage {
	msg := ChatMessage{
		Role:      ChatRoleAI,
		Kind:      ChatKindCameraFeedback,
		Text:      text,
		Timestamp: time.Now(),
	}
	if len(image.Data) > 0 {
		msg.ImageURL = image.DataURL()
	}
	return msg
}

// MarshalJSON writes the canonical wire form.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	text := m.Text
	w := chatMessageWire{
		ID:       m.ID,
		Role:     m.Role,
		Kind:     m.Kind,
		Content:  &text,
		ImageURL: m.ImageURL,
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		w.Timestamp = &ts
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either "content" or "message" for the text payload.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var w chatMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Role == "" {
		return fmt.Errorf("chat message has no role")
	}
	*m = ChatMessage{
		ID:       w.ID,
		Role:     w.Role,
		Kind:     w.Kind,
		ImageURL: w.ImageURL,
	}
	switch {
	case w.Content != nil:
		m.Text = *w.Content
	case w.Message != nil:
		m.Text = *w.Message
	}
	if m.Kind == "" {
		m.Kind = ChatKindText
	}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}
	return nil
}

// ChatSession is a backend chat session that feedback can be mirrored into.
type ChatSession struct {
	ID       string        `json:"_id"`
	Title    string        `json:"title"`
	Messages []ChatMessage `json:"messages,omitempty"`
}

// NormalizeMessage converts a loosely-typed message map, as decoded from
// older payloads, into the canonical ChatMessage.
func NormalizeMessage(raw map[string]any) ChatMessage {
	str := func(key string) string {
		if v, ok := raw[key].(string); ok {
			return v
		}
		return ""
	}
	msg := ChatMessage{
		ID:       str("_id"),
		Role:     ChatRole(str("role")),
		Kind:     ChatKind(str("type")),
		Text:     str("content"),
		ImageURL: str("imageUrl"),
	}
	if msg.Text == "" {
		msg.Text = str("message")
	}
	if msg.Kind == "" {
		msg.Kind = ChatKindText
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("timestamp")); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

package relay

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged with the relay service.
const (
	EventRegister   = "register"
	EventSendFrame  = "send_frame"
	EventMeshResult = "mesh_result"
	EventConnected  = "connected"
)

// Envelope is the JSON frame carried by every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterPayload announces the user behind the connection.
type RegisterPayload struct {
	UserID string `json:"user_id"`
}

// SendFramePayload carries one sampled frame.
type SendFramePayload struct {
	UserID    string `json:"user_id"`
	ImageData string `json:"image_data"` // base64, no data: prefix
	SocketID  string `json:"socket_id"`
	Seq       uint64 `json:"seq"`
}

// MeshResultPayload is an overlay image produced by the relay service.
type MeshResultPayload struct {
	ImageB64 string `json:"image_b64"`
}

// ConnectedPayload optionally assigns the connection identity.
type ConnectedPayload struct {
	SocketID string `json:"socket_id"`
}

// Encode wraps payload in an envelope for event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses an inbound message envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid relay message: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("invalid relay message: missing event")
	}
	return env, nil
}

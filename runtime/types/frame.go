package types

import (
	"encoding/base64"
	"time"
)

// Frame is a timestamped still image captured from the live source.
// Frames are shared between the batch buffer and the relay queue, so Data
// must not be modified after capture.
type Frame struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	MIMEType   string    `json:"mime_type"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	Data       []byte    `json:"-"`
}

// Base64 returns the frame bytes in standard base64 encoding.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// DataURL renders the frame as a data: URL.
func (f Frame) DataURL() string {
	return "data:" + f.MIMEType + ";base64," + f.Base64()
}

// Batch is an ordered group of frames submitted together for feedback.
type Batch struct {
	Seq    uint64  `json:"seq"`
	Frames []Frame `json:"frames"`
}

// Len returns the number of frames in the batch.
func (b Batch) Len() int { return len(b.Frames) }

// First returns the earliest frame of the batch.
func (b Batch) First() (Frame, bool) {
	if len(b.Frames) == 0 {
		return Frame{}, false
	}
	return b.Frames[0], true
}

// Last returns the most recent frame of the batch.
func (b Batch) Last() (Frame, bool) {
	if len(b.Frames) == 0 {
		return Frame{}, false
	}
	return b.Frames[len(b.Frames)-1], true
}

package types

import (
	"encoding/base64"
	"fmt"
)

// ContentPart represents a single piece of content in a multimodal prompt
// message. The vision request interleaves one text part with one image part
// per frame.
type ContentPart struct {
	Type string `json:"type"` // "text" or "image"

	// For text content
	Text *string `json:"text,omitempty"`

	// For image content
	Media *MediaContent `json:"media,omitempty"`
}

// MediaContent holds inline image data for a content part.
type MediaContent struct {
	Data     string `json:"data"`             // Base64-encoded image bytes
	MIMEType string `json:"mime_type"`        // e.g. "image/jpeg"
	Detail   string `json:"detail,omitempty"` // Optional detail hint: "low", "high", "auto"
}

// ContentType constants for content part types.
const (
	ContentTypeText  = "text"
	ContentTypeImage = "image"
)

// Common MIME types.
const (
	MIMETypeImageJPEG = "image/jpeg"
	MIMETypeImagePNG  = "image/png"
	MIMETypeImageWebP = "image/webp"
)

// NewTextPart creates a ContentPart with text content.
func NewTextPart(text string) ContentPart {
	return ContentPart{
		Type: ContentTypeText,
		Text: &text,
	}
}

// NewImagePartFromFrame creates an image ContentPart carrying the frame's
// encoded bytes inline.
func NewImagePartFromFrame(f Frame, detail string) ContentPart {
	return ContentPart{
		Type: ContentTypeImage,
		Media: &MediaContent{
			Data:     f.Base64(),
			MIMEType: f.MIMEType,
			Detail:   detail,
		},
	}
}

// DataURL renders the media as a data: URL, the form vision endpoints accept
// for inline images.
func (mc *MediaContent) DataURL() string {
	return "data:" + mc.MIMEType + ";base64," + mc.Data
}

// Validate checks that the part carries the payload its type requires.
func (cp *ContentPart) Validate() error {
	switch cp.Type {
	case ContentTypeText:
		if cp.Text == nil || *cp.Text == "" {
			return fmt.Errorf("text part has no text")
		}
	case ContentTypeImage:
		if cp.Media == nil || cp.Media.Data == "" {
			return fmt.Errorf("image part has no data")
		}
		if _, err := base64.StdEncoding.DecodeString(cp.Media.Data); err != nil {
			return fmt.Errorf("image part data is not base64: %w", err)
		}
	default:
		return fmt.Errorf("unsupported content type %q", cp.Type)
	}
	return nil
}

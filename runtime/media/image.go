// Package media encodes captured frames and handles inline image payloads.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIME type constants.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeWebP = "image/webp"
)

// Default encoding values.
const (
	DefaultQuality  = 70
	DefaultMaxWidth = 800
)

// ErrEmptyImage is returned for images with a zero dimension, such as a
// video element that has not produced its first frame yet.
var ErrEmptyImage = errors.New("media: image has zero size")

// Encoded is the result of encoding a frame.
type Encoded struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100). Images wider
// than maxWidth are scaled down preserving aspect ratio; maxWidth <= 0
// disables scaling.
func EncodeJPEG(img image.Image, quality, maxWidth int) (*Encoded, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	width, height := TargetDimensions(bounds.Dx(), bounds.Dy(), maxWidth)
	if width != bounds.Dx() {
		img = scale(img, width, height)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return &Encoded{
		Data:     buf.Bytes(),
		MIMEType: MIMETypeJPEG,
		Width:    width,
		Height:   height,
	}, nil
}

// Decode decodes any registered image format (jpeg, png, gif, webp).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// TargetDimensions returns the size an image of w x h is scaled to so that
// its width does not exceed maxWidth.
func TargetDimensions(w, h, maxWidth int) (width, height int) {
	if maxWidth <= 0 || w <= maxWidth {
		return w, h
	}
	ratio := float64(maxWidth) / float64(w)
	height = int(float64(h) * ratio)
	if height < 1 {
		height = 1
	}
	return maxWidth, height
}

func scale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// FormatToMIMEType converts an image.Decode format name to a MIME type.
func FormatToMIMEType(format string) string {
	switch format {
	case "png":
		return MIMETypePNG
	case "gif":
		return MIMETypeGIF
	case "webp":
		return MIMETypeWebP
	default:
		return MIMETypeJPEG
	}
}

package testutil

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/barre/runtime/types"
)

// epoch is the capture time of the first synthetic frame.
var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// Frames returns n synthetic JPEG-tagged frames with sequence numbers 1..n,
// captured 300ms apart. Each payload is unique so ordering can be asserted.
func Frames(n int) []types.Frame {
	frames := make([]types.Frame, n)
	for i := range frames {
		frames[i] = Frame(uint64(i + 1))
	}
	return frames
}

// Frame returns a single synthetic frame with the given sequence number.
func Frame(seq uint64) types.Frame {
	return types.Frame{
		ID:         uuid.NewString(),
		Seq:        seq,
		CapturedAt: epoch.Add(time.Duration(seq-1) * 300 * time.Millisecond),
		MIMEType:   types.MIMETypeImageJPEG,
		Data:       []byte(fmt.Sprintf("frame-%d", seq)),
	}
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

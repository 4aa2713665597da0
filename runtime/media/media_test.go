package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestEncodeJPEG(t *testing.T) {
	enc, err := EncodeJPEG(solid(64, 48), 70, 800)
	require.NoError(t, err)
	assert.Equal(t, MIMETypeJPEG, enc.MIMEType)
	assert.Equal(t, 64, enc.Width)
	assert.Equal(t, 48, enc.Height)

	img, format, err := Decode(enc.Data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestEncodeJPEGScalesDown(t *testing.T) {
	enc, err := EncodeJPEG(solid(1600, 900), 70, 800)
	require.NoError(t, err)
	assert.Equal(t, 800, enc.Width)
	assert.Equal(t, 450, enc.Height)

	img, _, err := Decode(enc.Data)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
}

func TestEncodeJPEGEmpty(t *testing.T) {
	_, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 10)), 70, 0)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = EncodeJPEG(nil, 70, 0)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 3)))
	_, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, FormatToMIMEType(format))

	_, _, err = Decode([]byte("not an image"))
	assert.Error(t, err)
	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestTargetDimensions(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{640, 480, 800, 640, 480},
		{1920, 1080, 800, 800, 450},
		{1000, 1, 100, 100, 1},
		{1000, 500, 0, 1000, 500},
	}
	for _, tt := range tests {
		w, h := TargetDimensions(tt.w, tt.h, tt.max)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	url := DataURL(MIMETypePNG, []byte("abc"))
	assert.Equal(t, "data:image/png;base64,YWJj", url)

	mime, data, err := ParseDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, MIMETypePNG, mime)
	assert.Equal(t, []byte("abc"), data)
}

func TestParseDataURLInvalid(t *testing.T) {
	for _, s := range []string{
		"",
		"http://example.com/a.png",
		"data:image/png,YWJj",
		"data:;base64,YWJj",
		"data:image/png;base64",
		"data:image/png;base64,!!!",
	} {
		_, _, err := ParseDataURL(s)
		assert.ErrorIs(t, err, ErrInvalidDataURL, s)
	}
}

func TestIsBase64(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"YWJj", true},
		{"YQ==", true},
		{"/9j/4AAQ+", true},
		{"", false},
		{"YQ===", false},
		{"not base64!", false},
		{"data:image/png;base64,YWJj", false},
		{"YW Jj", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBase64(tt.in), tt.in)
	}
}

package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestFrameEncoding(t *testing.T) {
	f := Frame{MIMEType: MIMETypeImageJPEG, Data: []byte("abc")}
	assert.Equal(t, "YWJj", f.Base64())
	assert.Equal(t, "data:image/jpeg;base64,YWJj", f.DataURL())
}

func TestBatchFirstLast(t *testing.T) {
	_, ok := Batch{}.First()
	assert.False(t, ok)
	_, ok = Batch{}.Last()
	assert.False(t, ok)

	b := Batch{Frames: []Frame{{Seq: 1}, {Seq: 2}, {Seq: 3}}}
	first, ok := b.First()
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.Seq)
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Seq)
	assert.Equal(t, 3, b.Len())
}

func TestScoresOverall(t *testing.T) {
	tests := []struct {
		name   string
		scores Scores
		want   *int
	}{
		{
			name:   "round trip example",
			scores: Scores{Flexibility: intPtr(80), Alignment: intPtr(90), Smoothness: intPtr(85), Energy: intPtr(75)},
			want:   intPtr(8),
		},
		{
			name:   "perfect",
			scores: Scores{Flexibility: intPtr(100), Alignment: intPtr(100), Smoothness: intPtr(100), Energy: intPtr(100)},
			want:   intPtr(10),
		},
		{
			name:   "out of range passes through",
			scores: Scores{Flexibility: intPtr(150), Alignment: intPtr(150), Smoothness: intPtr(150), Energy: intPtr(150)},
			want:   intPtr(15),
		},
		{
			name:   "missing sub-score",
			scores: Scores{Flexibility: intPtr(80), Alignment: intPtr(90), Smoothness: intPtr(85)},
			want:   nil,
		},
		{
			name:   "indeterminate",
			scores: Scores{},
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scores.Overall())
		})
	}
}

func TestScoresStates(t *testing.T) {
	assert.True(t, Scores{}.Indeterminate())
	assert.False(t, Scores{}.Complete())
	partial := Scores{Energy: intPtr(1)}
	assert.False(t, partial.Indeterminate())
	assert.False(t, partial.Complete())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "01:05", FormatDuration(65*time.Second))
	assert.Equal(t, "05:00", FormatDuration(5*time.Minute+400*time.Millisecond))
}

func TestRepresentativeImage(t *testing.T) {
	r := &SessionRecord{}
	_, ok := r.RepresentativeImage()
	assert.False(t, ok)

	r.Entries = []FeedbackEntry{
		{Text: "no image"},
		{Text: "with image", Image: Frame{Seq: 7, Data: []byte{1}}},
	}
	img, ok := r.RepresentativeImage()
	require.True(t, ok)
	assert.Equal(t, uint64(7), img.Seq)
}

func TestChatMessageUnmarshalAcceptsBothKeys(t *testing.T) {
	var a, b ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"ai","content":"hello","type":"camera_feedback"}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","message":"hi"}`), &b))

	assert.Equal(t, "hello", a.Text)
	assert.Equal(t, ChatKindCameraFeedback, a.Kind)
	assert.Equal(t, "hi", b.Text)
	assert.Equal(t, ChatKindText, b.Kind)
}

func TestChatMessageUnmarshalRequiresRole(t *testing.T) {
	var m ChatMessage
	assert.Error(t, json.Unmarshal([]byte(`{"content":"x"}`), &m))
}

func TestChatMessageMarshalWritesContent(t *testing.T) {
	msg := NewFeedbackMessage("keep your back straight", Frame{MIMEType: MIMETypeImageJPEG, Data: []byte("abc")})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "ai", raw["role"])
	assert.Equal(t, "camera_feedback", raw["type"])
	assert.Equal(t, "keep your back straight", raw["content"])
	assert.Equal(t, "data:image/jpeg;base64,YWJj", raw["imageUrl"])
	assert.NotContains(t, raw, "message")
}

func TestNormalizeMessage(t *testing.T) {
	msg := NormalizeMessage(map[string]any{
		"role":      "ai",
		"message":   "legacy text",
		"timestamp": "2024-03-01T10:00:00Z",
	})
	assert.Equal(t, ChatRoleAI, msg.Role)
	assert.Equal(t, "legacy text", msg.Text)
	assert.Equal(t, ChatKindText, msg.Kind)
	assert.Equal(t, 2024, msg.Timestamp.Year())
}

func TestContentPartValidate(t *testing.T) {
	text := NewTextPart("analyze")
	assert.NoError(t, text.Validate())

	img := NewImagePartFromFrame(Frame{MIMEType: MIMETypeImageJPEG, Data: []byte("abc")}, "low")
	assert.NoError(t, img.Validate())
	assert.Equal(t, "data:image/jpeg;base64,YWJj", img.Media.DataURL())

	bad := ContentPart{Type: ContentTypeImage, Media: &MediaContent{Data: "!!!"}}
	assert.Error(t, bad.Validate())

	assert.Error(t, (&ContentPart{Type: "audio"}).Validate())
}

func TestMessageImageCount(t *testing.T) {
	m := Message{Role: "user", Parts: []ContentPart{
		NewTextPart("look"),
		NewImagePartFromFrame(Frame{Data: []byte{1}}, ""),
		NewImagePartFromFrame(Frame{Data: []byte{2}}, ""),
	}}
	assert.True(t, m.IsMultimodal())
	assert.Equal(t, 2, m.ImageCount())
}

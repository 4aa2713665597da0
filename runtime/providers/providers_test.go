package providers

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
)

func TestSSEScanner(t *testing.T) {
	input := "event: message\ndata: {\"a\":1}\n\n: comment\ndata:{\"b\":2}\n\ndata: [DONE]\n\n"
	s := NewSSEScanner(strings.NewReader(input))

	var got []string
	for s.Scan() {
		got = append(got, s.Data())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, "[DONE]"}, got)
}

func TestSSEScannerLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	s := NewSSEScanner(strings.NewReader("data: " + long + "\n\n"))
	require.True(t, s.Scan())
	assert.Len(t, s.Data(), len(long))
}

func TestCheckHTTPError(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(""))}
	assert.NoError(t, CheckHTTPError(ok, "predict"))

	bad := &http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"Incorrect API key"}}`)),
	}
	err := CheckHTTPError(bad, "predict")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, pkgerrors.StatusCode(err))
	assert.Equal(t, "Incorrect API key", pkgerrors.UserMessage(err))

	plain := &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("upstream"))}
	err = CheckHTTPError(plain, "stream")
	assert.Contains(t, err.Error(), "upstream")
}

func TestStreamChunkDone(t *testing.T) {
	c := StreamChunk{Delta: "a"}
	assert.False(t, c.Done())
	c.FinishReason = StringPtr(FinishReasonStop)
	assert.True(t, c.Done())
}

func TestCreateProviderUnknownType(t *testing.T) {
	_, err := CreateProviderFromSpec(ProviderSpec{Type: "nope"})
	assert.ErrorContains(t, err, "unsupported provider type")
}

func TestBaseProviderDefaults(t *testing.T) {
	t.Setenv("BASE_KEY", "k")
	b, key := NewBaseProviderWithAPIKey("id", "model", "BASE_KEY", nil)
	assert.Equal(t, "k", key)
	assert.Equal(t, "id", b.ID())
	assert.Equal(t, "model", b.Model())
	assert.NotNil(t, b.GetHTTPClient())
	assert.NoError(t, b.Close())
}

package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AltairaLabs/barre/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 60*time.Second, httputil.DefaultProviderTimeout)
	assert.Equal(t, 30*time.Second, httputil.DefaultBackendTimeout)
	assert.Equal(t, 15*time.Second, httputil.DefaultUploadTimeout)
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"provider timeout", httputil.DefaultProviderTimeout},
		{"backend timeout", httputil.DefaultBackendTimeout},
		{"zero timeout", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := httputil.NewHTTPClient(tt.timeout)
			require.NotNil(t, client)
			assert.Equal(t, tt.timeout, client.Timeout)
		})
	}
}

func TestNewTracedHTTPClient_RoundTrips(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := httputil.NewTracedHTTPClient(time.Second, "backend")
	require.NotNil(t, client.Transport)

	resp, err := client.Get(srv.URL + "/ai-reports/user/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

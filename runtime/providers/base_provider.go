package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	pkgerrors "github.com/AltairaLabs/barre/pkg/errors"
	"github.com/AltairaLabs/barre/pkg/httputil"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// BaseProvider provides common functionality shared across provider
// implementations. It should be embedded in concrete provider structs.
type BaseProvider struct {
	id     string
	model  string
	client *http.Client
}

// NewBaseProvider creates a new BaseProvider with common fields
func NewBaseProvider(id, model string, client *http.Client) BaseProvider {
	if client == nil {
		client = httputil.NewTracedHTTPClient(httputil.DefaultProviderTimeout, id)
	}
	return BaseProvider{
		id:     id,
		model:  model,
		client: client,
	}
}

// NewBaseProviderWithAPIKey creates a BaseProvider and reads the API key from
// the named environment variable.
func NewBaseProviderWithAPIKey(id, model, keyEnv string, client *http.Client) (provider BaseProvider, apiKey string) {
	return NewBaseProvider(id, model, client), os.Getenv(keyEnv)
}

// ID returns the provider ID
func (b *BaseProvider) ID() string {
	return b.id
}

// Model returns the model name requests are sent to
func (b *BaseProvider) Model() string {
	return b.model
}

// Close closes the HTTP client's idle connections
func (b *BaseProvider) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// GetHTTPClient returns the underlying HTTP client for provider-specific use
func (b *BaseProvider) GetHTTPClient() *http.Client {
	return b.client
}

// CheckHTTPError converts a non-200 response into a ContextualError carrying
// the status code and, when the body is a standard error envelope, the
// server's message. The body is closed on error.
func CheckHTTPError(resp *http.Response, operation string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) // NOSONAR: Read error results in empty body in error message

	err := pkgerrors.New(pkgerrors.ComponentProvider, operation,
		fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))).
		WithStatusCode(resp.StatusCode)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		err = err.WithServerMessage(envelope.Error.Message)
	}
	return err
}

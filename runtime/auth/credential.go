package auth

import (
	"context"
	"net/http"
)

// Credential applies authentication to HTTP requests.
type Credential interface {
	// Apply adds authentication to the HTTP request.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential type identifier ("bearer", "none").
	Type() string
}

// BearerCredential sets an Authorization: Bearer header from a TokenSource.
type BearerCredential struct {
	source TokenSource
}

// NewBearerCredential creates a bearer credential over source.
func NewBearerCredential(source TokenSource) *BearerCredential {
	return &BearerCredential{source: source}
}

// Apply adds the bearer token to the request. It fails with ErrNoToken (or
// a wrapped variant) when the source has none.
func (c *BearerCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.source.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns "bearer".
func (c *BearerCredential) Type() string {
	return "bearer"
}

// NoOpCredential is a credential that does nothing.
// Used for services that don't require authentication, such as a local mesh relay.
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// Type returns "none".
func (c *NoOpCredential) Type() string {
	return "none"
}

// Package auth supplies the bearer token of the signed-in user to backend
// requests.
//
// Token sources are resolved from configuration in precedence order: an
// OAuth2 client-credentials exchange, a token file, then an environment
// variable. A source that yields an empty token returns ErrNoToken.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoToken is returned when no bearer token is available.
var ErrNoToken = errors.New("auth: no token available")

// tokenRefreshBuffer is how long before expiry a cached OAuth2 token is refreshed.
const tokenRefreshBuffer = 1 * time.Minute

// TokenSource yields a bearer token for the current user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static returns a source that always yields token.
func Static(token string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	})
}

// FromEnv returns a source reading the named environment variable on every call.
func FromEnv(name string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		token := strings.TrimSpace(os.Getenv(name))
		if token == "" {
			return "", fmt.Errorf("%w: %s is not set", ErrNoToken, name)
		}
		return token, nil
	})
}

// FromFile returns a source reading a token file on every call, so rotated
// tokens are picked up without a restart.
func FromFile(path string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		//nolint:gosec // G304: path is from trusted configuration
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrNoToken, path)
		}
		return token, nil
	})
}

// oauth2Source adapts an oauth2.TokenSource, reusing tokens until shortly
// before they expire.
type oauth2Source struct {
	ts oauth2.TokenSource
}

// FromOAuth2 wraps an oauth2.TokenSource.
func FromOAuth2(ts oauth2.TokenSource) TokenSource {
	return &oauth2Source{ts: oauth2.ReuseTokenSourceWithExpiry(nil, ts, tokenRefreshBuffer)}
}

func (s *oauth2Source) Token(_ context.Context) (string, error) {
	tok, err := s.ts.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain oauth2 token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}
	return tok.AccessToken, nil
}

// ClientCredentials returns a source performing the OAuth2 client-credentials
// grant against tokenURL. ctx carries the HTTP client used for the exchange
// (see oauth2.HTTPClient) and must outlive the source.
func ClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string, scopes ...string) TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return FromOAuth2(cfg.TokenSource(ctx))
}

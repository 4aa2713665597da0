package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AltairaLabs/barre/pkg/config"
)

// Resolve builds the token source described by cfg. Relative token file
// paths are resolved against configDir. ctx is used for OAuth2 exchanges and
// must outlive the returned source.
func Resolve(ctx context.Context, cfg config.AuthConfig, configDir string) (TokenSource, error) {
	if o := cfg.OAuth2; o != nil {
		if o.TokenURL == "" || o.ClientID == "" {
			return nil, fmt.Errorf("auth.oauth2 requires tokenURL and clientID")
		}
		secret := ""
		if o.ClientSecretEnv != "" {
			secret = os.Getenv(o.ClientSecretEnv)
			if secret == "" {
				return nil, fmt.Errorf("environment variable %s is not set", o.ClientSecretEnv)
			}
		}
		return ClientCredentials(ctx, o.TokenURL, o.ClientID, secret, o.Scopes...), nil
	}

	if cfg.TokenFile != "" {
		path := cfg.TokenFile
		if !filepath.IsAbs(path) && configDir != "" {
			path = filepath.Join(configDir, path)
		}
		return FromFile(path), nil
	}

	if cfg.TokenEnv != "" {
		return FromEnv(cfg.TokenEnv), nil
	}
	return Static(""), nil
}

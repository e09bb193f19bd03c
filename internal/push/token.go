package push

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
)

const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// GoogleTokenSource resolves Application Default Credentials on every call,
// so each dispatch carries a freshly issued bearer token.
type GoogleTokenSource struct {
	scopes []string
}

func NewGoogleTokenSource(scopes ...string) *GoogleTokenSource {
	if len(scopes) == 0 {
		scopes = []string{MessagingScope}
	}
	return &GoogleTokenSource{scopes: scopes}
}

func (g *GoogleTokenSource) AccessToken(ctx context.Context) (string, error) {
	creds, err := google.FindDefaultCredentials(ctx, g.scopes...)
	if err != nil {
		return "", fmt.Errorf("find default credentials: %w", err)
	}

	tok, err := creds.TokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("identity provider returned empty access token")
	}
	return tok.AccessToken, nil
}

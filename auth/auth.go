// Package auth provides OAuth2 access tokens for the chat connection.
package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

// TokenSource is a source of OAuth2 access tokens. Its methods are safe to
// call concurrently.
type TokenSource interface {
	// Token retrieves a token value. This may trigger a token refresh or the
	// device code flow. The result is always non-nil if the error is nil.
	Token(ctx context.Context) (*oauth2.Token, error)
	// Refresh forces a refresh of the token if its current value is identical
	// to old in the sense of [Equal]. The result is the refreshed token.
	// Requiring the old token lets concurrent callers share one refresh.
	Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error)
}

// Equal compares two OAuth2 tokens by access token, refresh token, token type,
// and expiry.
func Equal(a, b *oauth2.Token) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.AccessToken == b.AccessToken &&
		a.TokenType == b.TokenType &&
		a.RefreshToken == b.RefreshToken &&
		a.Expiry.Equal(b.Expiry)
}

// ErrStatic is returned when a static token needs to be refreshed.
var ErrStatic = errors.New("static token can't be refreshed")

var errEmptyStatic = errors.New("empty static access token")

type static struct {
	tok *oauth2.Token
}

// Static creates a TokenSource which always returns the given access token.
// A leading "oauth:" prefix, as used in IRC passwords, is removed.
// Refreshing the token fails with [ErrStatic].
func Static(access string) TokenSource {
	access = strings.TrimPrefix(access, "oauth:")
	return static{tok: &oauth2.Token{AccessToken: access, TokenType: "bearer"}}
}

func (s static) Token(ctx context.Context) (*oauth2.Token, error) {
	if s.tok.AccessToken == "" {
		return nil, errEmptyStatic
	}
	return s.tok, nil
}

func (s static) Refresh(ctx context.Context, old *oauth2.Token) (*oauth2.Token, error) {
	if Equal(s.tok, old) {
		return nil, ErrStatic
	}
	return s.tok, nil
}

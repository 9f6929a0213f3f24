// Package auth supplies access tokens for the Spotify Web API.
//
// The retrieval core only depends on TokenProvider. StaticToken serves a
// pre-obtained token; ClientCredentials runs the OAuth2 client-credentials
// grant and caches the token until shortly before it expires.
package auth

import (
	"context"

	"github.com/pkg/errors"
)

// TokenProvider returns a bearer token for the next request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ErrEmptyToken is returned by StaticToken when no token was configured.
var ErrEmptyToken = errors.New("empty access token")

// StaticToken is a fixed access token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}

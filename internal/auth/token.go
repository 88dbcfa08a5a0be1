// Package auth provides the bearer tokens attached to streaming requests and
// the HS256 tokens understood by the development backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spigell/aspiro/internal/secrets"
)

// ErrTokenExpired is returned when a JWT bearer token is past its expiry.
var ErrTokenExpired = errors.New("token expired")

// TokenProvider supplies the current bearer token. An empty token with a nil
// error means that no session is available.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// SecretToken resolves the token from a secrets source on every call, so a
// rotated token file is picked up without a restart.
type SecretToken struct {
	Source secrets.Source
	Now    func() time.Time
}

// Token implements TokenProvider.
func (s *SecretToken) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	token, err := secrets.Optional(s.Source)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	if err := CheckExpiry(token, now()); err != nil {
		return "", err
	}

	return token, nil
}

// CheckExpiry rejects JWTs whose exp claim is not after now. The signature is
// not verified; that is the backend's job. Opaque tokens are accepted as is.
func CheckExpiry(token string, now time.Time) error {
	if strings.Count(token, ".") != 2 {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}

	return nil
}

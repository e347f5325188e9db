// Package auth is the identity boundary: it turns a bearer credential into a
// user id before any core logic runs.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rshade/carbon-offload/internal/apperr"
)

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Admin  bool
}

// Authenticator validates a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// StaticTokens authenticates against a fixed token table.
type StaticTokens struct {
	tokens map[string]string
	admins map[string]struct{}
}

var _ Authenticator = (*StaticTokens)(nil)

// NewStaticTokens builds an authenticator from token -> user id pairs.
func NewStaticTokens(tokens map[string]string, admins []string) *StaticTokens {
	s := &StaticTokens{
		tokens: make(map[string]string, len(tokens)),
		admins: make(map[string]struct{}, len(admins)),
	}
	for k, v := range tokens {
		s.tokens[k] = v
	}
	for _, a := range admins {
		s.admins[a] = struct{}{}
	}
	return s
}

// Authenticate compares token against every entry in constant time.
func (s *StaticTokens) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.Unauthenticated("missing bearer token")
	}
	var user string
	for candidate, u := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			user = u
		}
	}
	if user == "" {
		return Identity{}, apperr.Unauthenticated("invalid bearer token")
	}
	_, admin := s.admins[user]
	return Identity{UserID: user, Admin: admin}, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Package authctx binds an already-presented bearer token or API key to a
// User. Full OAuth/OIDC handshakes are an external collaborator per spec §1;
// this package only implements the minimal "transport layer validates and
// binds the request to a User before calling the core" contract of §6.
package authctx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Identity is the authenticated caller bound to the request context.
type Identity struct {
	UserID uuid.UUID
	Tier   string
}

type contextKey string

const identityKey contextKey = "mockfactory_identity"

// FromContext extracts the Identity bound to the request, or nil if
// unauthenticated (only possible on routes that don't require auth).
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ErrInvalidCredential is returned by a Resolver when the presented token
// does not bind to any active user.
var ErrInvalidCredential = errors.New("invalid credential")

// Resolver looks up the User bound to a bearer token or API key. Callers
// (pkg/user) implement this against their own credential storage.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Authenticator wraps a Resolver for use by the HTTP middleware.
type Authenticator struct {
	resolver Resolver
}

// NewAuthenticator creates an Authenticator backed by the given Resolver.
func NewAuthenticator(resolver Resolver) *Authenticator {
	return &Authenticator{resolver: resolver}
}

// Middleware requires a bearer token (Authorization: Bearer <token>) or an
// X-API-Key header, resolves it to a User, and stores the Identity in the
// request context. Unauthenticated or invalid requests receive 401.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "missing bearer token or API key")
				return
			}

			id, err := a.resolver.Resolve(r.Context(), token)
			if err != nil {
				respondUnauthorized(w, "invalid credential")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, &id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) string {
	if v := r.Header.Get("X-API-Key"); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return ""
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"forbidden","message":"` + message + `"}`))
}

package api

import (
	"context"
	"errors"

	"github.com/wftracker/wftracker/internal/tracker"
)

// principalContextKey is the context key for the authenticated caller.
type principalContextKey struct{}

// tokenContextKey is the context key for the raw bearer token.
type tokenContextKey struct{}

// ErrNoPrincipalInContext indicates no authenticated caller was found in the context.
var ErrNoPrincipalInContext = errors.New("no principal in context")

// WithPrincipal returns a new context with the caller attached.
func WithPrincipal(ctx context.Context, p *tracker.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the caller from the context.
// Returns ErrNoPrincipalInContext if not present or nil.
func PrincipalFromContext(ctx context.Context) (*tracker.Principal, error) {
	p, ok := ctx.Value(principalContextKey{}).(*tracker.Principal)
	if !ok || p == nil {
		return nil, ErrNoPrincipalInContext
	}
	return p, nil
}

// MustPrincipalFromContext extracts the caller or panics.
// Use only when SessionMiddleware guarantees presence.
func MustPrincipalFromContext(ctx context.Context) *tracker.Principal {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		panic("principal not in context: middleware misconfiguration")
	}
	return p
}

// WithToken returns a new context with the bearer token attached.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext extracts the bearer token. Returns "" if not present.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

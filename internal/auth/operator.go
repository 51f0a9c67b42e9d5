package auth

import (
	"context"
	"net/http"
	"strings"
)

type operatorKey struct{}

// Operator is the authenticated desk operator behind a request.
type Operator struct {
	ID   string
	Role Role
}

// Authenticator checks bearer tokens against a set of allowed roles.
type Authenticator struct {
	tokens  *TokenManager
	allowed map[Role]struct{}
}

// NewAuthenticator accepts any of the given roles; no roles means secretary
// or admin.
func NewAuthenticator(tokens *TokenManager, allowed ...Role) *Authenticator {
	if len(allowed) == 0 {
		allowed = []Role{RoleSecretary, RoleAdmin}
	}
	set := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return &Authenticator{tokens: tokens, allowed: set}
}

// Authenticate reads the Authorization header.  It returns ErrMissingToken,
// ErrInvalidToken or ErrForbidden.
func (a *Authenticator) Authenticate(r *http.Request) (Operator, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Operator{}, ErrMissingToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Operator{}, ErrInvalidToken
	}

	claims, err := a.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return Operator{}, ErrInvalidToken
	}
	if _, ok := a.allowed[claims.Role]; !ok {
		return Operator{}, ErrForbidden
	}
	return Operator{ID: claims.Subject, Role: claims.Role}, nil
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFromContext retrieves the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(Operator)
	return op, ok
}

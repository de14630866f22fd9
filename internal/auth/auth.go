// Package auth проверяет статические токены доступа к API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
)

type contextKey string

const TokenContextKey contextKey = "auth.token"

type Verifier struct {
	tokens [][]byte
}

func New(tokens []string) *Verifier {
	v := &Verifier{}
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		v.tokens = append(v.tokens, []byte(t))
	}
	return v
}

// ExtractToken: сначала Authorization: Bearer, потом параметр token.
func ExtractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func (v *Verifier) Verify(token string) bool {
	if token == "" {
		return false
	}
	ok := 0
	for _, t := range v.tokens {
		ok |= subtle.ConstantTimeCompare(t, []byte(token))
	}
	return ok == 1
}

func (v *Verifier) Authenticate(ctx context.Context, r *http.Request) (context.Context, error) {
	token := ExtractToken(r)
	if token == "" {
		return ctx, ErrMissingToken
	}
	if !v.Verify(token) {
		return ctx, ErrInvalidToken
	}
	return context.WithValue(ctx, TokenContextKey, token), nil
}

func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenContextKey).(string)
	return token, ok
}

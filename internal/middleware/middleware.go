// Package middleware implements the bearer-token auth gate shared by every
// authenticated endpoint, stashing the parsed session identity on the
// request context for handlers to read back.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"limit/internal/apperr"
	"limit/internal/auth"
)

type contextKey string

const identityKey contextKey = "session_identity"

// Auth validates the bearer session token on every request and stashes the
// resulting SessionIdentity on the request context. Clients are not
// browsers, so only the Authorization header is consulted (no cookie jar).
func Auth(svc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, apperr.New(apperr.Unauthenticated, "missing bearer token"))
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			identity, err := svc.Verify(tokenStr)
			if err != nil {
				writeError(w, apperr.New(apperr.Unauthenticated, "invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Identity returns the SessionIdentity stashed by Auth, or false if the
// request was never authenticated.
func Identity(r *http.Request) (auth.SessionIdentity, bool) {
	identity, ok := r.Context().Value(identityKey).(auth.SessionIdentity)
	return identity, ok
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// ownerFromContext returns the authenticated owner ID placed by requireAuth.
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerIDKey).(string)
	return owner
}

// requireAuth wraps a handler with bearer-token authentication. The token is
// an HS256 JWT whose sub claim identifies the owner; any parse or signature
// failure is a 401 before the handler runs.
func (s *Server) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			s.writeJSONError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			s.writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			s.writeJSONError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			s.writeJSONError(w, http.StatusUnauthorized, "token missing subject")
			return
		}

		handler(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, sub)))
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ownerKeyType string

const OwnerKey ownerKeyType = "owner"

// AnonymousOwner owns UI state when bearer auth is disabled.
const AnonymousOwner = "anonymous"

// Auth validates a Bearer JWT signed with secret and puts its owner in the
// context. The owner is the Keycloak preferred_username claim, else sub.
// When issuer is set the iss claim must match it.
func Auth(secret []byte, issuer string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				unauthorized(w)
				return
			}
			tokenStr := strings.TrimSpace(ah[len("Bearer "):])
			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w)
				return
			}
			owner, _ := claims["preferred_username"].(string)
			if owner == "" {
				owner, _ = claims["sub"].(string)
			}
			if owner == "" {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OwnerKey, owner)))
		})
	}
}

// Anonymous marks every request as owned by AnonymousOwner.
func Anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), OwnerKey, AnonymousOwner)))
	})
}

// GetOwner returns the request owner, or "" outside Auth and Anonymous.
func GetOwner(ctx context.Context) string {
	if s, ok := ctx.Value(OwnerKey).(string); ok {
		return s
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
}

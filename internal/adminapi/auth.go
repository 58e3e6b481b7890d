package adminapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// newAuthMiddleware returns a middleware that requires a valid bearer JWT
// signed with secret and carrying issuer. If secret is empty, the returned
// middleware is a no-op — the admin surface runs unauthenticated, matching
// local-dev defaults elsewhere in this codebase.
func newAuthMiddleware(secret, issuer string) func(http.Handler) http.Handler {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := jwt.RegisteredClaims{}
			parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			if issuer != "" && claims.Issuer != issuer {
				http.Error(w, "invalid token issuer", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimPrefix(header, prefix), true
}

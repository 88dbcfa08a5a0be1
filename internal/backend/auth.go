package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates bearer tokens. auth.Issuer implements it.
type TokenVerifier interface {
	Verify(token string) (*jwt.RegisteredClaims, error)
}

type contextKey string

const subjectKey contextKey = "subject"

// requireToken rejects requests without a valid bearer token and stores the
// token subject in the request context.
func requireToken(verifier TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subject(r *http.Request) string {
	s, _ := r.Context().Value(subjectKey).(string)
	return s
}

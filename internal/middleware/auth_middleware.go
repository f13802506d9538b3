package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/service"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier checks bearer tokens. *service.JWTService implements it.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logrus.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondUnauthorized(w, "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondUnauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.verifier.VerifyToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			respondUnauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *service.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// UserID returns the login id of the authenticated caller.
func UserID(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(claimsKey).(*service.Claims)
	if !ok || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

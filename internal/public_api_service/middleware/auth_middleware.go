package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")
)

// AuthenticatedUser holds information about the authenticated caller.
type AuthenticatedUser struct {
	ID       string
	Username string
	IsAdmin  bool
}

// Claims is the bearer token payload issued by the account service.
type Claims struct {
	Username string `json:"unm,omitempty"`
	IsAdmin  bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// UserFromContext returns the caller placed in the context by AuthMiddleware.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	u, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return u, ok && u.ID != ""
}

// AuthMiddleware verifies an HS256 bearer token and stores the caller in the context.
func AuthMiddleware(secret []byte, logger *slog.Logger) func(next http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			var claims Claims
			_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					logger.InfoContext(r.Context(), "Expired token presented")
				} else {
					logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				}
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				logger.WarnContext(r.Context(), "Token has no subject")
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			authUser := AuthenticatedUser{
				ID:       claims.Subject,
				Username: claims.Username,
				IsAdmin:  claims.IsAdmin,
			}
			ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, authUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly rejects callers without the admin claim. AuthMiddleware must run first.
func AdminOnly(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := UserFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "AuthenticatedUser not found in context. AuthMiddleware must run first.")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !authUser.IsAdmin {
				logger.WarnContext(r.Context(), "Admin access denied", "userID", authUser.ID)
				http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

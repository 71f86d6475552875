package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func sign(t *testing.T, claims Claims, method jwt.SigningMethod, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(admin bool) Claims {
	return Claims{
		Username: "asha",
		IsAdmin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func protected(mws ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(u.ID))
	})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	expired := validClaims(false)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims(false)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + sign(t, validClaims(false), jwt.SigningMethodHS256, testSecret), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "ApiKey abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, validClaims(false), jwt.SigningMethodHS256, []byte("other")), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + sign(t, validClaims(false), jwt.SigningMethodHS512, testSecret), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, expired, jwt.SigningMethodHS256, testSecret), http.StatusUnauthorized},
		{"no expiry", "Bearer " + sign(t, noExpiry, jwt.SigningMethodHS256, testSecret), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			protected(AuthMiddleware(testSecret, logger)).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "user-1", rr.Body.String())
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := protected(AuthMiddleware(testSecret, logger), AdminOnly(logger))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, validClaims(false), jwt.SigningMethodHS256, testSecret))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req.Header.Set("Authorization", "Bearer "+sign(t, validClaims(true), jwt.SigningMethodHS256, testSecret))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

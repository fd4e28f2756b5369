package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Username(r.Context())))
	})
}

func TestAuthenticator_RoundTrip(t *testing.T) {
	a := NewAuthenticator(secret, "monforge")
	token, err := a.GenerateToken("alice", "admin", time.Hour)
	require.NoError(t, err)

	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	_, err = NewAuthenticator(secret, "other").ValidateToken(token)
	assert.Error(t, err, "issuer mismatch")

	expired, err := a.GenerateToken("alice", "admin", -time.Minute)
	require.NoError(t, err)
	_, err = a.ValidateToken(expired)
	assert.Error(t, err)
}

func TestAuthenticator_Middleware(t *testing.T) {
	a := NewAuthenticator(secret, "monforge")
	token, err := a.GenerateToken("bob", "user", time.Hour)
	require.NoError(t, err)
	h := a.Middleware(echoUser())

	tests := []struct {
		name   string
		header string
		query  string
		code   int
		body   string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"bad format", "Token " + token, "", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"header", "Bearer " + token, "", http.StatusOK, "bob"},
		{"query", "", "?token=" + token, http.StatusOK, "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/screens"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chart/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Idempotency-Key")
}

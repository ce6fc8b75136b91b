// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation and the disabled-auth passthrough

package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := SubjectFromContext(r.Context())
		_, _ = w.Write([]byte(subject))
	})
}

func TestMiddleware(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)
	valid, err := verifier.Generate("user-123", time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Generate("user-123", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "user-123"},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"missing authorization header"}`},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid authorization header format"}`},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: `{"error":"empty token"}`},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantBody: `{"error":"invalid token"}`},
	}

	handler := Middleware(verifier, slog.Default())(subjectEcho())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.wantStatus == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestMiddleware_NilVerifierPassesThrough(t *testing.T) {
	handler := Middleware(nil, nil)(subjectEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	var sawAuth bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = Authenticated(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
		wantAuth bool
	}{
		{"disabled", "", "", http.StatusNoContent, false},
		{"valid", "s3cret", "Bearer s3cret", http.StatusNoContent, true},
		{"missing", "s3cret", "", http.StatusUnauthorized, false},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized, false},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawAuth = false
			req := httptest.NewRequest(http.MethodGet, "/api/widgets", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireToken(tt.token)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantAuth, sawAuth)
			if tt.wantCode == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

//go:build integration

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestIntegration401Unauthorized verifies the auth error response format.
func TestIntegration401Unauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAuthError(rec)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}

	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON content type")
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"message":"Invalid or missing API token"`) {
		t.Errorf("Unexpected auth error body: %s", body)
	}
}

// TestIntegrationExtractBearerToken tests token extraction from headers.
func TestIntegrationExtractBearerToken(t *testing.T) {
	testCases := []struct {
		name       string
		authHeader string
		want       string
	}{
		{
			name:       "Bearer token",
			authHeader: "Bearer tl_abc123_secret",
			want:       "tl_abc123_secret",
		},
		{
			name: "No header",
			want: "",
		},
		{
			name:       "Basic auth rejected",
			authHeader: "Basic dXNlcjpwYXNz",
			want:       "",
		},
		{
			name:       "Bare token without scheme",
			authHeader: "tl_abc123_secret",
			want:       "",
		},
		{
			name:       "Lowercase bearer rejected",
			authHeader: "bearer tl_abc123_secret",
			want:       "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}

			got := extractBearerToken(req)
			if got != tc.want {
				t.Errorf("extractBearerToken() = %q, want %q", got, tc.want)
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/courses/ratings/CSE2331", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	rec, reached := corsRequest([]string{"https://app.example.edu/"}, http.MethodGet, "https://app.example.edu", false)

	assert.True(t, reached)
	assert.Equal(t, "https://app.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Cache")
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSWildcardHasNoCredentials(t *testing.T) {
	rec, _ := corsRequest([]string{"*"}, http.MethodGet, "https://elsewhere.example", false)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	rec, reached := corsRequest([]string{"https://app.example.edu"}, http.MethodGet, "https://evil.example", false)

	assert.True(t, reached, "the request itself is still served")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORSPreflight(t *testing.T) {
	rec, reached := corsRequest([]string{"*"}, http.MethodOptions, "https://app.example.edu", true)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Requester-ID")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSPlainOptionsPassesThrough(t *testing.T) {
	_, reached := corsRequest([]string{"*"}, http.MethodOptions, "", false)
	assert.True(t, reached)
}

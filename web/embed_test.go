package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func get(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestConsoleServesFiles(t *testing.T) {
	h := Console("/ui")

	cases := []struct {
		path, contains string
	}{
		{"/ui/", "<title>classgrade</title>"},
		{"/ui/app.js", "new WebSocket"},
		{"/ui/courses/CSE2331", "<title>classgrade</title>"},
	}
	for _, tc := range cases {
		w := get(h, http.MethodGet, tc.path)
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), tc.contains, tc.path)
	}
}

func TestConsoleRouting(t *testing.T) {
	files := fstest.MapFS{
		"index.html": {Data: []byte("<html>console</html>")},
		"app.js":     {Data: []byte("console.log(1)")},
	}
	h := newConsole(files, "/ui")

	w := get(h, http.MethodGet, "/ui")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/ui/", w.Header().Get("Location"))

	w = get(h, http.MethodGet, "/ui/index.html")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "<html>console</html>", w.Body.String())

	w = get(h, http.MethodGet, "/ui/missing.js")
	assert.Equal(t, http.StatusNotFound, w.Code, "missing assets do not fall back to index.html")

	w = get(h, http.MethodGet, "/other/app.js")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(h, http.MethodPost, "/ui/")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = get(h, http.MethodHead, "/ui/courses/CSE2331")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

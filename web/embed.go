// Package web embeds the research console (dist/) and serves it.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Console returns a handler serving the embedded console under prefix
// (for example "/ui"). The bare prefix redirects to prefix + "/". Paths
// without a file extension that name no file get index.html, so console
// deep links such as /ui/courses/CSE2331 load the app; missing assets are
// a plain 404.
func Console(prefix string) http.Handler {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return newConsole(sub, "/"+strings.Trim(prefix, "/"))
}

func newConsole(files fs.FS, prefix string) http.Handler {
	if prefix == "/" {
		prefix = ""
	}
	fileServer := http.StripPrefix(prefix, http.FileServer(http.FS(files)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path == prefix {
			http.Redirect(w, r, prefix+"/", http.StatusMovedPermanently)
			return
		}
		rel, ok := strings.CutPrefix(r.URL.Path, prefix+"/")
		if !ok {
			http.NotFound(w, r)
			return
		}

		if rel == "" || rel == "index.html" {
			serveIndex(w, r, files)
			return
		}
		if _, err := fs.Stat(files, rel); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}
		if path.Ext(rel) != "" {
			http.NotFound(w, r)
			return
		}
		serveIndex(w, r, files)
	})
}

// serveIndex writes index.html directly; FileServer would redirect
// "/index.html" requests to the directory.
func serveIndex(w http.ResponseWriter, r *http.Request, files fs.FS) {
	page, err := fs.ReadFile(files, "index.html")
	if err != nil {
		http.Error(w, "console unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(page)
}

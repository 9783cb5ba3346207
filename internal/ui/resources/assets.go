// Package resources serves the viewer's static assets.
package resources

import "net/http"

// StaticDirectoryPath is the path to static assets from the project root.
const StaticDirectoryPath = "internal/ui/resources/static"

// FigureScript is the client that draws frames received over the socket.
const FigureScript = "figure.js"

// StaticPath returns the URL path for a static asset.
func StaticPath(path string) string {
	return "/static/" + path
}

// FileHandler serves a single asset regardless of the request path.
func FileHandler(name string) http.Handler {
	h := Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = StaticPath(name)
		r2.URL.RawPath = ""
		h.ServeHTTP(w, r2)
	})
}

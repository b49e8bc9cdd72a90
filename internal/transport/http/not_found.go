package http

import "net/http"

// NotFoundHandler answers unknown routes with the NOT_FOUND envelope naming
// the requested path.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
}

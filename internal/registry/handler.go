package registry

import (
	"io"
	"net/http"
	"os"
	"strings"
)

// Handler serves read-only point queries against the index over HTTP:
// GET /{scope}/{name} streams the underlying NDJSON index file verbatim,
// one published version entry per line, so clients parse it line-by-line
// rather than decoding a JSON array. This is the minimal surface spec.md's
// Non-goals leave in scope — no listing, no mutation endpoints.
func (m *IndexManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.Trim(r.URL.Path, "/")
		scoped, err := ParseScopedName(id)
		if err != nil || strings.Contains(scoped.Scope, "..") || strings.Contains(scoped.Name, "..") {
			http.Error(w, "invalid skill id", http.StatusBadRequest)
			return
		}

		f, err := os.Open(m.pathFor(scoped))
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", "application/json")
		io.Copy(w, f)
	})
}

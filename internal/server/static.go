package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// handleStatic serves the reader UI. Unknown paths fall back to
// 200.html so client-side routing works; API paths never reach here
// because they are routed explicitly.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.staticDir == "" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	rel := filepath.Clean(strings.TrimPrefix(r.URL.Path, "/"))
	if rel == "." || rel == "" {
		rel = "index.html"
	}
	// Clean leaves no .. segments past the root, but be explicit.
	if strings.HasPrefix(rel, "..") {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}

	full := filepath.Join(s.staticDir, rel)
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return
	}

	fallback := filepath.Join(s.staticDir, "200.html")
	if _, err := os.Stat(fallback); err == nil {
		http.ServeFile(w, r, fallback)
		return
	}
	s.respondError(w, http.StatusNotFound, "not found")
}

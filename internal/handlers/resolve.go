package handlers

import (
	"errors"
	"net/http"

	"thumbcache/internal/logging"
	"thumbcache/internal/resolver"
)

// ResolveResponse is the body of /api/resolve.
type ResolveResponse struct {
	Input string `json:"input"`
	Path  string `json:"path"`
}

// ResolvePath finds an existing equivalent of the path query parameter.
func (h *Handlers) ResolvePath(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("path")
	if input == "" {
		writeJSONError(w, "path is required", http.StatusBadRequest)
		return
	}
	if !h.allowPath(w, input) {
		return
	}

	resolved, err := h.svc.ResolvePath(input)
	if errors.Is(err, resolver.ErrNotFound) {
		writeJSONError(w, "no equivalent path found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Warn("Resolve of %q failed: %v", input, err)
		writeJSONError(w, "resolve failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ResolveResponse{Input: input, Path: resolved})
}

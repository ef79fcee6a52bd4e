package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"

	"thumbcache/internal/logging"
)

// GetPreview serves the stored preview of dir/name. It answers 404 when no
// current preview exists; previews are only generated by /api/warm.
func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	name := r.URL.Query().Get("name")
	if dir == "" || name == "" {
		writeJSONError(w, "dir and name are required", http.StatusBadRequest)
		return
	}
	if name != filepath.Base(name) {
		writeJSONError(w, "name must be a plain file name", http.StatusBadRequest)
		return
	}
	if !h.allowPath(w, dir) {
		return
	}

	data, ok, err := h.svc.Preview(r.Context(), dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, "file not found", http.StatusNotFound)
			return
		}
		logging.Warn("Preview of %s/%s failed: %v", dir, name, err)
		writeJSONError(w, "preview unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		writeJSONError(w, "no preview", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write preview: %v", err)
	}
}

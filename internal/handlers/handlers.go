package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"thumbcache/internal/browser"
	"thumbcache/internal/logging"
)

// Handlers serves the HTTP API on top of a browser service.
type Handlers struct {
	svc       *browser.Service
	root      string
	startTime time.Time
}

// New creates the API handlers. Requests naming a path outside root are
// refused.
func New(svc *browser.Service, root string) *Handlers {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Handlers{
		svc:       svc,
		root:      filepath.Clean(root),
		startTime: time.Now(),
	}
}

// allowPath writes a 403 and returns false when path is outside the root.
func (h *Handlers) allowPath(w http.ResponseWriter, path string) bool {
	if isSubPath(h.root, path) {
		return true
	}
	logging.Warn("Refused request for %s outside root %s", path, h.root)
	writeJSONError(w, "path outside root", http.StatusForbidden)
	return false
}

// isSubPath reports whether child is parent or lies below it.
func isSubPath(parent, child string) bool {
	parent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	child, err = filepath.Abs(child)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

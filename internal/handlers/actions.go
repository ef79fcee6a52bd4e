package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"thumbcache/internal/logging"
	"thumbcache/internal/pipeline"
	"thumbcache/internal/resolver"
	"thumbcache/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// RatingRequest is the body of /api/rating. Nil fields are left unchanged.
type RatingRequest struct {
	Dir    string `json:"dir"`
	Name   string `json:"name"`
	Rating *int   `json:"rating,omitempty"`
	Tag    *int   `json:"tag,omitempty"`
}

// DirRequest is the body of /api/warm and /api/purge.
type DirRequest struct {
	Dir string `json:"dir"`
}

// WarmResponse summarizes a finished run.
type WarmResponse struct {
	Dir         string `json:"dir"`
	Total       int    `json:"total"`
	Hits        int    `json:"hits"`
	Generated   int    `json:"generated"`
	PassThrough int    `json:"passThrough"`
	Errors      int    `json:"errors"`
	Degraded    bool   `json:"degraded"`
	Cancelled   bool   `json:"cancelled"`
	DurationMS  int64  `json:"durationMs"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// SetRating updates the rating and/or tag of a file.
func (h *Handlers) SetRating(w http.ResponseWriter, r *http.Request) {
	var req RatingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Dir == "" || req.Name == "" || (req.Rating == nil && req.Tag == nil) {
		writeJSONError(w, "dir, name and a rating or tag are required", http.StatusBadRequest)
		return
	}
	if !h.allowPath(w, req.Dir) {
		return
	}

	if req.Rating != nil {
		if err := h.svc.SetRating(r.Context(), req.Dir, req.Name, *req.Rating); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if req.Tag != nil {
		if err := h.svc.SetTag(r.Context(), req.Dir, req.Name, *req.Tag); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	writeJSONStatus(w, "ok")
}

// Warm generates previews for a directory and waits for the run to finish.
// A client disconnect cancels the run.
func (h *Handlers) Warm(w http.ResponseWriter, r *http.Request) {
	var req DirRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Dir == "" {
		writeJSONError(w, "dir is required", http.StatusBadRequest)
		return
	}
	if !h.allowPath(w, req.Dir) {
		return
	}

	run, err := h.svc.StartPipeline(r.Context(), req.Dir, nil)
	if errors.Is(err, resolver.ErrNotFound) {
		writeJSONError(w, "directory not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Warn("Warm of %s failed: %v", req.Dir, err)
		writeJSONError(w, "failed to start", http.StatusInternalServerError)
		return
	}

	var done pipeline.Event
	for ev := range run.Events() {
		if ev.Kind == pipeline.Done {
			done = ev
		}
	}

	s := done.Stats
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, WarmResponse{
		Dir:         run.Dir(),
		Total:       s.Total,
		Hits:        s.Hits,
		Generated:   s.Misses + s.Stale + s.Renamed,
		PassThrough: s.PassThrough,
		Errors:      s.Errors,
		Degraded:    s.Degraded,
		Cancelled:   done.Cancelled,
		DurationMS:  s.Duration.Milliseconds(),
	})
}

// Purge empties the thumbnail store of a directory.
func (h *Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	var req DirRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Dir == "" {
		writeJSONError(w, "dir is required", http.StatusBadRequest)
		return
	}
	if !h.allowPath(w, req.Dir) {
		return
	}

	if err := h.svc.PurgeDirectory(r.Context(), req.Dir); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, "purged")
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidRating), errors.Is(err, store.ErrInvalidTag):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotWritable):
		writeJSONError(w, "directory is not writable", http.StatusForbidden)
	default:
		logging.Warn("Store operation failed: %v", err)
		writeJSONError(w, "store unavailable", http.StatusServiceUnavailable)
	}
}

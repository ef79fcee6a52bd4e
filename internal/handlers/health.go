package handlers

import (
	"net/http"
	"runtime"
	"time"

	"thumbcache/internal/codec"
	"thumbcache/internal/startup"
)

const statusHealthy = "healthy"

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	ActiveRuns       int  `json:"activeRuns"`
	OpenStores       int  `json:"openStores"`
	ViewCacheEntries int  `json:"viewCacheEntries"`
	VipsAvailable    bool `json:"vipsAvailable"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.svc.GetStats()

	response := HealthResponse{
		Status:           statusHealthy,
		Version:          startup.Version,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		ActiveRuns:       stats.ActiveRuns,
		OpenStores:       stats.OpenStores,
		ViewCacheEntries: stats.ViewCacheEntries,
		VipsAvailable:    codec.IsVipsAvailable(),
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

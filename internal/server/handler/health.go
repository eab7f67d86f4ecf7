package handler

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// HealthCheck reports that the process is serving.
// GET /api/health
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(now.Sub(startedAt).Seconds()),
		"timestamp":      now.UTC().Format(time.RFC3339),
	})
}

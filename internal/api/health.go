package api

import (
	"net/http"
	"time"

	"github.com/amberlink/voiceaudit/internal/audio"
	"github.com/amberlink/voiceaudit/internal/database"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	db        *database.DB
	storeType string
	version   string
	startTime time.Time
}

func NewHealthHandler(db *database.DB, storeType, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		storeType: storeType,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	checks["storage"] = h.storeType

	// Compressed inputs and clip encoding need sox on PATH.
	if audio.CheckSox() {
		checks["sox"] = "ok"
	} else {
		checks["sox"] = "missing"
		if status == "healthy" {
			status = "degraded"
		}
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}

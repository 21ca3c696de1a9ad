package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/cache"
	"github.com/dagpulse/dagpulse/internal/models"
)

// Pinger probes upstream connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	gw      Pinger
	store   cache.Store
	version string
	logger  zerolog.Logger
}

func NewHealthHandler(gw Pinger, store cache.Store, version string, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{gw: gw, store: store, version: version, logger: logger}
}

// HealthCheck reports service status plus upstream and cache health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	airflowStatus := "connected"
	status := "healthy"
	if err := h.gw.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("airflow health probe failed")
		airflowStatus = "disconnected"
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, models.HealthCheckResponse{
		Status:            status,
		Version:           h.version,
		AirflowConnection: airflowStatus,
		CacheStatus:       h.store.Status(),
		Timestamp:         time.Now().UTC(),
	})
}

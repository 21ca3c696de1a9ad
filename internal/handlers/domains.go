package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/health"
	"github.com/dagpulse/dagpulse/internal/models"
)

// HealthService is the aggregation engine surface the handlers call.
type HealthService interface {
	Dashboard(ctx context.Context, timeRange models.TimeRange, force bool) (models.DashboardResponse, error)
	DomainDetail(ctx context.Context, domain string, timeRange models.TimeRange, force bool) (models.DomainDetailResponse, error)
	RunSummaries(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.RunSummary, error)
}

type DomainHandler struct {
	svc    HealthService
	logger zerolog.Logger
}

func NewDomainHandler(svc HealthService, logger zerolog.Logger) *DomainHandler {
	return &DomainHandler{svc: svc, logger: logger}
}

// GetDomains serves the dashboard: every domain summary in the window.
func (h *DomainHandler) GetDomains(w http.ResponseWriter, r *http.Request) {
	timeRange := models.ParseTimeRange(r.URL.Query().Get("time_range"))
	force := parseBool(r.URL.Query().Get("force_refresh"))

	resp, err := h.svc.Dashboard(r.Context(), timeRange, force)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build dashboard")
		http.Error(w, "Failed to fetch domain data: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDomainDetail serves the drill-down view for one domain.
func (h *DomainHandler) GetDomainDetail(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	timeRange := models.ParseTimeRange(r.URL.Query().Get("time_range"))
	force := parseBool(r.URL.Query().Get("force_refresh"))

	resp, err := h.svc.DomainDetail(r.Context(), domain, timeRange, force)
	if err != nil {
		var notFound *health.DomainNotFoundError
		if errors.As(err, &notFound) {
			http.Error(w, notFound.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("domain", domain).Msg("failed to build domain detail")
		http.Error(w, "Failed to fetch domain detail: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRuns lists recent runs for one workflow, with UI links.
func (h *DomainHandler) GetRuns(w http.ResponseWriter, r *http.Request) {
	dagID := mux.Vars(r)["id"]
	timeRange := models.ParseTimeRange(r.URL.Query().Get("time_range"))

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > 100 {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = v
	}

	runs, err := h.svc.RunSummaries(r.Context(), dagID, timeRange, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("dag_id", dagID).Msg("failed to fetch runs")
		http.Error(w, "Failed to fetch runs: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	return err == nil && v
}

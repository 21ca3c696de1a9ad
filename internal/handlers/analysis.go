package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/models"
)

// Analyzer produces the failure-analysis bundle.
type Analyzer interface {
	AnalyzeFailures(ctx context.Context, timeRange models.TimeRange) (models.FailureAnalysis, error)
}

type AnalysisHandler struct {
	svc    Analyzer
	logger zerolog.Logger
}

func NewAnalysisHandler(svc Analyzer, logger zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, logger: logger}
}

// GetFailureAnalysis serves the analysis bundle for the window.
func (h *AnalysisHandler) GetFailureAnalysis(w http.ResponseWriter, r *http.Request) {
	timeRange := models.ParseTimeRange(r.URL.Query().Get("time_range"))

	result, err := h.svc.AnalyzeFailures(r.Context(), timeRange)
	if err != nil {
		h.logger.Error().Err(err).Msg("failure analysis request failed")
		http.Error(w, "Failed to analyze failures: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

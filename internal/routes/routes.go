package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dagpulse/dagpulse/internal/handlers"
)

// NewRouter sets up the API routes.
func NewRouter(
	health *handlers.HealthHandler,
	domains *handlers.DomainHandler,
	cacheHandler *handlers.CacheHandler,
	analysis *handlers.AnalysisHandler,
	reports *handlers.ReportHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check at the root and under the API prefix.
	router.HandleFunc("/health", health.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", health.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/domains", domains.GetDomains).Methods(http.MethodGet)
	api.HandleFunc("/domains/{domain}", domains.GetDomainDetail).Methods(http.MethodGet)
	api.HandleFunc("/domains/{domain}/workflows/{id}/runs", domains.GetRuns).Methods(http.MethodGet)
	api.HandleFunc("/cache/clear", cacheHandler.ClearCache).Methods(http.MethodPost)
	api.HandleFunc("/analysis/failures", analysis.GetFailureAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/slack/test", reports.SlackTest).Methods(http.MethodPost)
	api.HandleFunc("/reports/send", reports.SendReport).Methods(http.MethodPost)
	api.HandleFunc("/reports/schedule", reports.GetSchedule).Methods(http.MethodGet)

	return router
}

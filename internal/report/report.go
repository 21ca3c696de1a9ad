// Package report assembles a health report from the dashboard data and the
// optional failure analysis and hands it to the messaging sink.
package report

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/models"
)

type HealthSource interface {
	Dashboard(ctx context.Context, timeRange models.TimeRange, force bool) (models.DashboardResponse, error)
}

type Analyzer interface {
	AnalyzeFailures(ctx context.Context, timeRange models.TimeRange) (models.FailureAnalysis, error)
}

type Sink interface {
	SendHealthSummary(ctx context.Context, domains []models.DomainHealth, timeRange models.TimeRange, dashboardURL string, analysis *models.FailureAnalysis) error
	Configured() bool
}

type Service struct {
	health       HealthSource
	analyzer     Analyzer
	sink         Sink
	dashboardURL string
	logger       zerolog.Logger
}

func NewService(health HealthSource, analyzer Analyzer, sink Sink, dashboardURL string, logger zerolog.Logger) *Service {
	return &Service{
		health:       health,
		analyzer:     analyzer,
		sink:         sink,
		dashboardURL: dashboardURL,
		logger:       logger.With().Str("component", "report_service").Logger(),
	}
}

// Send builds and dispatches one health report. Analysis failure degrades to
// a report without the analysis section; sink failure is the returned error.
func (s *Service) Send(ctx context.Context, timeRange models.TimeRange, includeAnalysis bool) error {
	dashboard, err := s.health.Dashboard(ctx, timeRange, false)
	if err != nil {
		return errors.Wrap(err, "build dashboard for report")
	}
	if len(dashboard.Domains) == 0 {
		return errors.New("no domain data available for report")
	}

	var totalFailures int
	for _, d := range dashboard.Domains {
		totalFailures += d.FailedCount
	}

	var analysis *models.FailureAnalysis
	if includeAnalysis && totalFailures > 0 && s.analyzer != nil {
		result, err := s.analyzer.AnalyzeFailures(ctx, timeRange)
		if err != nil {
			s.logger.Error().Err(err).Msg("failure analysis unavailable, sending report without it")
		} else {
			analysis = &result
		}
	}

	return s.sink.SendHealthSummary(ctx, dashboard.Domains, timeRange, s.dashboardURL, analysis)
}

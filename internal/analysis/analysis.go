// Package analysis turns failing workflow runs into a structured analysis
// bundle. Log collection is capped, the external provider is a pluggable
// black box, and provider failure degrades to a locally synthesized summary
// instead of failing the request.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/cache"
	"github.com/dagpulse/dagpulse/internal/models"
)

// Gateway is the upstream access the pipeline needs.
type Gateway interface {
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	ListRunsForMany(ctx context.Context, dagIDs []string, timeRange models.TimeRange) map[string][]models.Run
	ListTaskInstances(ctx context.Context, dagID, runID string) ([]models.TaskInstance, error)
	GetTaskLog(ctx context.Context, dagID, runID, taskID string, tryNumber int) (string, error)
}

// Provider accepts the structured failure context and returns findings.
type Provider interface {
	Analyze(ctx context.Context, prompt string) (models.FailureAnalysis, error)
}

// Service runs the failure-analysis pipeline and caches its results under a
// key and TTL separate from the dashboard cache.
type Service struct {
	gw       Gateway
	provider Provider // nil when analysis is disabled
	store    cache.Store
	ttl      time.Duration
	logger   zerolog.Logger
}

func NewService(gw Gateway, provider Provider, store cache.Store, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		gw:       gw,
		provider: provider,
		store:    store,
		ttl:      ttl,
		logger:   logger.With().Str("component", "analysis_service").Logger(),
	}
}

// AnalyzeFailures produces the analysis bundle for the window. Successful
// provider results are cached; degraded local summaries are not, so the
// provider gets retried on the next call.
func (s *Service) AnalyzeFailures(ctx context.Context, timeRange models.TimeRange) (models.FailureAnalysis, error) {
	key := "analysis:" + string(timeRange)
	if payload, ok := s.store.Get(ctx, key); ok {
		var cached models.FailureAnalysis
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	}

	report, err := s.collect(ctx, timeRange)
	if err != nil {
		return models.FailureAnalysis{}, err
	}

	now := time.Now().UTC()
	if report.TotalFailingWorkflows == 0 {
		result := models.FailureAnalysis{
			Summary:     "No workflow failures in the selected time range.",
			Categories:  []models.FailureCategory{},
			ActionItems: []models.ActionItem{},
			TimeRange:   timeRange,
			GeneratedAt: now,
		}
		s.cacheResult(ctx, key, result)
		return result, nil
	}

	if s.provider == nil {
		return s.localSummary(report, "analysis provider not configured", now), nil
	}

	result, err := s.provider.Analyze(ctx, buildPrompt(report))
	if err != nil {
		s.logger.Error().Err(err).Str("time_range", string(timeRange)).Msg("analysis provider failed")
		return s.localSummary(report, err.Error(), now), nil
	}
	result.TimeRange = timeRange
	result.GeneratedAt = now
	s.cacheResult(ctx, key, result)
	return result, nil
}

func (s *Service) cacheResult(ctx context.Context, key string, result models.FailureAnalysis) {
	if payload, err := json.Marshal(result); err == nil {
		s.store.Set(ctx, key, payload, s.ttl)
	}
}

// localSummary is the counts-only degradation used when the provider is
// unavailable.
func (s *Service) localSummary(report failureReport, reason string, now time.Time) models.FailureAnalysis {
	return models.FailureAnalysis{
		Summary: fmt.Sprintf("%d workflows with %d failed runs in the last %s. Detailed analysis is unavailable.",
			report.TotalFailingWorkflows, report.TotalFailedRuns, report.TimeRange),
		Categories:  []models.FailureCategory{},
		ActionItems: []models.ActionItem{},
		TimeRange:   report.TimeRange,
		Degraded:    true,
		Error:       reason,
		GeneratedAt: now,
	}
}

// Package health aggregates orchestrator state into per-domain health
// summaries and serves them through a two-tier cache: a short-TTL primary
// entry plus a long-TTL fallback entry written together after every
// successful live aggregation. When live aggregation fails, the fallback is
// served stale rather than surfacing the outage.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/airflow"
	"github.com/dagpulse/dagpulse/internal/cache"
	"github.com/dagpulse/dagpulse/internal/models"
)

// fallbackTTL is the fixed lifetime of the stale-serving tier.
const fallbackTTL = time.Hour

// Gateway is the upstream access the engine needs.
type Gateway interface {
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	ListRuns(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.Run, error)
	ListRunsForMany(ctx context.Context, dagIDs []string, timeRange models.TimeRange) map[string][]models.Run
	BaseURL() string
}

// Service computes and caches domain health summaries.
type Service struct {
	gw     Gateway
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

func NewService(gw Gateway, store cache.Store, primaryTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		gw:     gw,
		store:  store,
		ttl:    primaryTTL,
		logger: logger.With().Str("component", "health_service").Logger(),
	}
}

// Dashboard returns summaries for every domain. force bypasses the primary
// cache read; both tiers are still rewritten on success.
func (s *Service) Dashboard(ctx context.Context, timeRange models.TimeRange, force bool) (models.DashboardResponse, error) {
	key := "dashboard:" + string(timeRange)
	return readThrough(ctx, s, key, force, func(ctx context.Context) (models.DashboardResponse, error) {
		return s.buildDashboard(ctx, timeRange)
	})
}

// DomainDetail returns the drill-down view for one domain.
func (s *Service) DomainDetail(ctx context.Context, domain string, timeRange models.TimeRange, force bool) (models.DomainDetailResponse, error) {
	key := fmt.Sprintf("domain:%s:%s", domain, timeRange)
	return readThrough(ctx, s, key, force, func(ctx context.Context) (models.DomainDetailResponse, error) {
		return s.buildDomainDetail(ctx, domain, timeRange)
	})
}

// RunSummaries lists recent runs for one workflow with UI links. Not cached;
// the run listing is cheap and callers want it fresh.
func (s *Service) RunSummaries(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.RunSummary, error) {
	runs, err := s.gw.ListRuns(ctx, dagID, timeRange, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list runs for %s", dagID)
	}
	base := s.gw.BaseURL()
	summaries := make([]models.RunSummary, 0, len(runs))
	for _, r := range runs {
		state := r.State
		if state == "" {
			// Display records default an absent state to queued.
			state = models.RunStateQueued
		}
		summaries = append(summaries, models.RunSummary{
			DagID:         r.DagID,
			RunID:         r.RunID,
			State:         state,
			ExecutionDate: r.ExecutionDate,
			StartDate:     r.StartDate,
			EndDate:       r.EndDate,
			AirflowURL:    fmt.Sprintf("%s/dags/%s/grid?dag_run_id=%s", base, r.DagID, url.QueryEscape(r.RunID)),
		})
	}
	return summaries, nil
}

// readThrough implements the two-tier contract: primary read (unless
// bypassed), live build, write both tiers on success, serve the stale
// fallback on failure. Domain-not-found is never recovered or cached.
func readThrough[T any](ctx context.Context, s *Service, key string, force bool, build func(context.Context) (T, error)) (T, error) {
	var zero T

	if !force {
		if payload, ok := s.store.Get(ctx, key); ok {
			var cached T
			if err := json.Unmarshal(payload, &cached); err == nil {
				return cached, nil
			}
			s.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
		}
	}

	result, err := build(ctx)
	if err != nil {
		var notFound *DomainNotFoundError
		if errors.As(err, &notFound) {
			return zero, err
		}
		if payload, ok := s.store.Get(ctx, fallbackKey(key)); ok {
			var stale T
			if uerr := json.Unmarshal(payload, &stale); uerr == nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("live aggregation failed, serving stale fallback")
				return stale, nil
			}
		}
		return zero, err
	}

	if payload, merr := json.Marshal(result); merr == nil {
		s.store.Set(ctx, key, payload, s.ttl)
		s.store.Set(ctx, fallbackKey(key), payload, fallbackTTL)
	}
	return result, nil
}

func fallbackKey(key string) string {
	return "fallback:" + key
}

func (s *Service) buildDashboard(ctx context.Context, timeRange models.TimeRange) (models.DashboardResponse, error) {
	workflows, err := s.gw.ListWorkflows(ctx)
	if err != nil {
		return models.DashboardResponse{}, errors.Wrap(err, "list workflows")
	}

	groups := make(map[string][]models.Workflow)
	for _, wf := range workflows {
		domain := airflow.DomainOf(wf.Tags)
		groups[domain] = append(groups[domain], wf)
	}

	now := time.Now().UTC()
	domains := make([]models.DomainHealth, 0, len(groups))
	for domain, members := range groups {
		ids := dagIDs(members)
		runsByID := s.gw.ListRunsForMany(ctx, ids, timeRange)
		domains = append(domains, domainHealthFrom(domain, len(members), runsByID, now))
	}

	// Domains with failures first, then alphabetically.
	sort.Slice(domains, func(i, j int) bool {
		if domains[i].HasFailures != domains[j].HasFailures {
			return domains[i].HasFailures
		}
		return domains[i].Domain < domains[j].Domain
	})

	return models.DashboardResponse{
		TimeRange:    timeRange,
		Domains:      domains,
		TotalDomains: len(domains),
		TotalDags:    len(workflows),
		LastUpdated:  now,
	}, nil
}

func (s *Service) buildDomainDetail(ctx context.Context, domain string, timeRange models.TimeRange) (models.DomainDetailResponse, error) {
	workflows, err := s.gw.ListWorkflows(ctx)
	if err != nil {
		return models.DomainDetailResponse{}, errors.Wrap(err, "list workflows")
	}

	var members []models.Workflow
	for _, wf := range workflows {
		if airflow.DomainOf(wf.Tags) == domain {
			members = append(members, wf)
		}
	}
	if len(members) == 0 {
		return models.DomainDetailResponse{}, &DomainNotFoundError{Domain: domain}
	}

	// One batch fetch serves both the domain summary and every per-workflow
	// summary; nothing is re-fetched per workflow.
	runsByID := s.gw.ListRunsForMany(ctx, dagIDs(members), timeRange)

	now := time.Now().UTC()
	base := s.gw.BaseURL()
	dags := make([]models.WorkflowHealth, 0, len(members))
	for _, wf := range members {
		dags = append(dags, workflowHealthFrom(wf, runsByID[wf.DagID], base))
	}

	// Workflows with failures first, then by id.
	sort.Slice(dags, func(i, j int) bool {
		iFailing := dags[i].FailedCount > 0
		jFailing := dags[j].FailedCount > 0
		if iFailing != jFailing {
			return iFailing
		}
		return dags[i].DagID < dags[j].DagID
	})

	return models.DomainDetailResponse{
		Domain:      domain,
		TimeRange:   timeRange,
		Summary:     domainHealthFrom(domain, len(members), runsByID, now),
		Dags:        dags,
		LastUpdated: now,
	}, nil
}

func dagIDs(workflows []models.Workflow) []string {
	ids := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		ids = append(ids, wf.DagID)
	}
	return ids
}

// domainHealthFrom reduces every run of every member workflow into state
// counters. A run with a missing state still counts toward the total but
// contributes to no state counter.
func domainHealthFrom(domain string, dagCount int, runsByID map[string][]models.Run, now time.Time) models.DomainHealth {
	var total, failed, success, running, queued int
	for _, runs := range runsByID {
		for _, run := range runs {
			total++
			switch run.State {
			case models.RunStateFailed:
				failed++
			case models.RunStateSuccess:
				success++
			case models.RunStateRunning:
				running++
			case models.RunStateQueued:
				queued++
			}
		}
	}
	return models.DomainHealth{
		Domain:       domain,
		TotalDags:    dagCount,
		TotalRuns:    total,
		FailedCount:  failed,
		SuccessCount: success,
		RunningCount: running,
		QueuedCount:  queued,
		HasFailures:  failed > 0,
		HealthScore:  healthScore(success, total),
		LastUpdated:  now,
	}
}

func workflowHealthFrom(wf models.Workflow, runs []models.Run, baseURL string) models.WorkflowHealth {
	wh := models.WorkflowHealth{
		DagID:       wf.DagID,
		DisplayName: wf.DisplayName,
		Description: wf.Description,
		IsPaused:    wf.IsPaused,
		Tags:        wf.Tags,
		TotalRuns:   len(runs),
		AirflowURL:  fmt.Sprintf("%s/dags/%s/grid", baseURL, wf.DagID),
	}
	for _, run := range runs {
		switch run.State {
		case models.RunStateFailed:
			wh.FailedCount++
		case models.RunStateSuccess:
			wh.SuccessCount++
		case models.RunStateRunning:
			wh.RunningCount++
		case models.RunStateQueued:
			wh.QueuedCount++
		}
	}
	if len(runs) > 0 {
		// The upstream run list is ordered descending by execution date.
		latest := runs[0]
		if latest.State.Valid() {
			state := latest.State
			wh.LastRunState = &state
		}
		date := latest.ExecutionDate
		wh.LastRunDate = &date
	}
	return wh
}

// healthScore is the success percentage rounded to two decimals, 100.0 when
// there are no runs.
func healthScore(success, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return math.Round(float64(success)/float64(total)*100*100) / 100
}

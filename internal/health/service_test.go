package health

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagpulse/dagpulse/internal/cache"
	"github.com/dagpulse/dagpulse/internal/models"
)

type fakeGateway struct {
	workflows     []models.Workflow
	runs          map[string][]models.Run
	listErr       error
	listCalls     int
	manyCalls     int
	listRunsCalls int
}

func (f *fakeGateway) ListWorkflows(context.Context) ([]models.Workflow, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.workflows, nil
}

func (f *fakeGateway) ListRuns(_ context.Context, dagID string, _ models.TimeRange, _ int) ([]models.Run, error) {
	f.listRunsCalls++
	return f.runs[dagID], nil
}

func (f *fakeGateway) ListRunsForMany(_ context.Context, dagIDs []string, _ models.TimeRange) map[string][]models.Run {
	f.manyCalls++
	out := make(map[string][]models.Run, len(dagIDs))
	for _, id := range dagIDs {
		runs := f.runs[id]
		if runs == nil {
			runs = []models.Run{}
		}
		out[id] = runs
	}
	return out
}

func (f *fakeGateway) BaseURL() string { return "https://airflow.example.com" }

func run(dagID, runID string, state models.RunState, at time.Time) models.Run {
	return models.Run{DagID: dagID, RunID: runID, State: state, ExecutionDate: at}
}

func newTestService(gw Gateway) *Service {
	return NewService(gw, cache.NewMemoryStore(), 2*time.Minute, zerolog.Nop())
}

func TestDashboardGroupsByDomainTag(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		workflows: []models.Workflow{
			{DagID: "billing_export", Tags: []string{"domain:finance"}},
			{DagID: "ledger_sync", Tags: []string{"domain:finance", "critical"}},
			{DagID: "orphan_job", Tags: []string{"hourly"}},
		},
		runs: map[string][]models.Run{
			"billing_export": {run("billing_export", "r1", models.RunStateFailed, at), run("billing_export", "r2", models.RunStateSuccess, at)},
			"ledger_sync":    {run("ledger_sync", "r1", models.RunStateSuccess, at)},
			"orphan_job":     {run("orphan_job", "r1", models.RunStateSuccess, at)},
		},
	}
	svc := newTestService(gw)

	resp, err := svc.Dashboard(context.Background(), models.TimeRange24h, false)
	require.NoError(t, err)

	require.Len(t, resp.Domains, 2)
	assert.Equal(t, 2, resp.TotalDomains)
	assert.Equal(t, 3, resp.TotalDags)

	// finance has failures so it sorts before untagged.
	finance := resp.Domains[0]
	assert.Equal(t, "finance", finance.Domain)
	assert.True(t, finance.HasFailures)
	assert.Equal(t, 2, finance.TotalDags)
	assert.Equal(t, 3, finance.TotalRuns)
	assert.Equal(t, 1, finance.FailedCount)
	assert.Equal(t, 2, finance.SuccessCount)
	assert.InDelta(t, 66.67, finance.HealthScore, 0.001)

	untagged := resp.Domains[1]
	assert.Equal(t, "untagged", untagged.Domain)
	assert.False(t, untagged.HasFailures)
	assert.Equal(t, 100.0, untagged.HealthScore)
}

func TestDashboardSortsHealthyDomainsAlphabetically(t *testing.T) {
	gw := &fakeGateway{
		workflows: []models.Workflow{
			{DagID: "z1", Tags: []string{"domain:zeta"}},
			{DagID: "a1", Tags: []string{"domain:alpha"}},
			{DagID: "m1", Tags: []string{"domain:mid"}},
		},
		runs: map[string][]models.Run{
			"m1": {run("m1", "r1", models.RunStateFailed, time.Now())},
		},
	}
	svc := newTestService(gw)

	resp, err := svc.Dashboard(context.Background(), models.TimeRange24h, false)
	require.NoError(t, err)
	require.Len(t, resp.Domains, 3)

	assert.Equal(t, "mid", resp.Domains[0].Domain)
	assert.Equal(t, "alpha", resp.Domains[1].Domain)
	assert.Equal(t, "zeta", resp.Domains[2].Domain)
}

func TestDashboardUnknownStateCountsTowardTotalOnly(t *testing.T) {
	at := time.Now().UTC()
	gw := &fakeGateway{
		workflows: []models.Workflow{{DagID: "d1", Tags: []string{"domain:etl"}}},
		runs: map[string][]models.Run{
			"d1": {
				run("d1", "r1", models.RunStateSuccess, at),
				run("d1", "r2", "", at),
				run("d1", "r3", "upstream_failed", at),
			},
		},
	}
	svc := newTestService(gw)

	resp, err := svc.Dashboard(context.Background(), models.TimeRange24h, false)
	require.NoError(t, err)
	require.Len(t, resp.Domains, 1)

	d := resp.Domains[0]
	assert.Equal(t, 3, d.TotalRuns)
	assert.Equal(t, 1, d.SuccessCount)
	assert.Equal(t, 0, d.FailedCount)
	assert.Equal(t, 0, d.RunningCount)
	assert.Equal(t, 0, d.QueuedCount)
	assert.InDelta(t, 33.33, d.HealthScore, 0.001)
}

func TestDashboardServedFromCacheUntilForced(t *testing.T) {
	gw := &fakeGateway{
		workflows: []models.Workflow{{DagID: "d1", Tags: []string{"domain:etl"}}},
		runs:      map[string][]models.Run{},
	}
	svc := newTestService(gw)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, models.TimeRange24h, false)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.listCalls)

	_, err = svc.Dashboard(ctx, models.TimeRange24h, false)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.listCalls, "second read should hit the cache")

	_, err = svc.Dashboard(ctx, models.TimeRange24h, true)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.listCalls, "force bypasses the primary read")
}

func TestDashboardServesStaleFallbackOnUpstreamFailure(t *testing.T) {
	gw := &fakeGateway{
		workflows: []models.Workflow{{DagID: "d1", Tags: []string{"domain:etl"}}},
		runs: map[string][]models.Run{
			"d1": {run("d1", "r1", models.RunStateSuccess, time.Now())},
		},
	}
	svc := newTestService(gw)
	ctx := context.Background()

	first, err := svc.Dashboard(ctx, models.TimeRange24h, false)
	require.NoError(t, err)

	// Upstream goes down; a forced rebuild fails but the fallback tier
	// still has the last good payload.
	gw.listErr = errors.New("connection refused")
	stale, err := svc.Dashboard(ctx, models.TimeRange24h, true)
	require.NoError(t, err)
	assert.Equal(t, first.TotalDags, stale.TotalDags)
	assert.Equal(t, first.Domains, stale.Domains)
}

func TestDashboardErrorsWhenNoFallbackExists(t *testing.T) {
	gw := &fakeGateway{listErr: errors.New("connection refused")}
	svc := newTestService(gw)

	_, err := svc.Dashboard(context.Background(), models.TimeRange24h, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDomainDetail(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		workflows: []models.Workflow{
			{DagID: "billing_export", DisplayName: "Billing Export", Tags: []string{"domain:finance"}},
			{DagID: "ledger_sync", Tags: []string{"domain:finance"}},
			{DagID: "other", Tags: []string{"domain:etl"}},
		},
		runs: map[string][]models.Run{
			"billing_export": {run("billing_export", "r1", models.RunStateSuccess, at)},
			"ledger_sync":    {run("ledger_sync", "r1", models.RunStateFailed, at.Add(time.Hour))},
		},
	}
	svc := newTestService(gw)

	resp, err := svc.DomainDetail(context.Background(), "finance", models.TimeRange24h, false)
	require.NoError(t, err)

	assert.Equal(t, "finance", resp.Domain)
	assert.Equal(t, 2, resp.Summary.TotalDags)
	assert.Equal(t, 2, resp.Summary.TotalRuns)
	require.Len(t, resp.Dags, 2)

	// One batch fetch covers the summary and every workflow row.
	assert.Equal(t, 1, gw.manyCalls)

	// The failing workflow sorts first.
	failing := resp.Dags[0]
	assert.Equal(t, "ledger_sync", failing.DagID)
	assert.Equal(t, 1, failing.FailedCount)
	require.NotNil(t, failing.LastRunState)
	assert.Equal(t, models.RunStateFailed, *failing.LastRunState)
	require.NotNil(t, failing.LastRunDate)
	assert.Equal(t, at.Add(time.Hour), *failing.LastRunDate)

	healthy := resp.Dags[1]
	assert.Equal(t, "billing_export", healthy.DagID)
	assert.Equal(t, "Billing Export", healthy.DisplayName)
	assert.Equal(t, "https://airflow.example.com/dags/billing_export/grid", healthy.AirflowURL)
}

func TestDomainDetailUnknownDomainNotCached(t *testing.T) {
	gw := &fakeGateway{
		workflows: []models.Workflow{{DagID: "d1", Tags: []string{"domain:etl"}}},
	}
	store := cache.NewMemoryStore()
	svc := NewService(gw, store, 2*time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := svc.DomainDetail(ctx, "ghost", models.TimeRange24h, false)
	var notFound *DomainNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Domain)

	// Neither tier may hold an entry for the missing domain.
	_, ok := store.Get(ctx, "domain:ghost:24h")
	assert.False(t, ok)
	_, ok = store.Get(ctx, "fallback:domain:ghost:24h")
	assert.False(t, ok)
}

func TestDomainDetailWorkflowWithNoRuns(t *testing.T) {
	gw := &fakeGateway{
		workflows: []models.Workflow{{DagID: "idle", Tags: []string{"domain:etl"}}},
		runs:      map[string][]models.Run{},
	}
	svc := newTestService(gw)

	resp, err := svc.DomainDetail(context.Background(), "etl", models.TimeRange24h, false)
	require.NoError(t, err)
	require.Len(t, resp.Dags, 1)

	wf := resp.Dags[0]
	assert.Equal(t, 0, wf.TotalRuns)
	assert.Nil(t, wf.LastRunState)
	assert.Nil(t, wf.LastRunDate)
	assert.Equal(t, 100.0, resp.Summary.HealthScore)
}

func TestRunSummariesDefaultsMissingStateToQueued(t *testing.T) {
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		runs: map[string][]models.Run{
			"etl": {
				run("etl", "scheduled__2026-08-30", models.RunStateSuccess, at),
				run("etl", "manual__2026-08-30", "", at),
			},
		},
	}
	svc := newTestService(gw)

	summaries, err := svc.RunSummaries(context.Background(), "etl", models.TimeRange24h, 50)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, models.RunStateSuccess, summaries[0].State)
	assert.Equal(t, models.RunStateQueued, summaries[1].State)
	assert.Equal(t, "https://airflow.example.com/dags/etl/grid?dag_run_id=manual__2026-08-30", summaries[1].AirflowURL)
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		success, total int
		want           float64
	}{
		{0, 0, 100.0},
		{2, 3, 66.67},
		{1, 3, 33.33},
		{3, 3, 100.0},
		{0, 5, 0.0},
		{1, 7, 14.29},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, healthScore(tt.success, tt.total), 0.001)
	}
}

package report

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagpulse/dagpulse/internal/models"
)

type fakeHealth struct {
	resp models.DashboardResponse
	err  error
}

func (f *fakeHealth) Dashboard(context.Context, models.TimeRange, bool) (models.DashboardResponse, error) {
	return f.resp, f.err
}

type fakeAnalyzer struct {
	calls  int
	result models.FailureAnalysis
	err    error
}

func (f *fakeAnalyzer) AnalyzeFailures(context.Context, models.TimeRange) (models.FailureAnalysis, error) {
	f.calls++
	return f.result, f.err
}

type fakeSink struct {
	sends    int
	analysis *models.FailureAnalysis
	domains  []models.DomainHealth
	url      string
	err      error
}

func (f *fakeSink) SendHealthSummary(_ context.Context, domains []models.DomainHealth, _ models.TimeRange, dashboardURL string, analysis *models.FailureAnalysis) error {
	f.sends++
	f.domains = domains
	f.url = dashboardURL
	f.analysis = analysis
	return f.err
}

func (f *fakeSink) Configured() bool { return true }

func dashboardWith(failed int) models.DashboardResponse {
	return models.DashboardResponse{
		Domains: []models.DomainHealth{
			{Domain: "finance", TotalDags: 2, FailedCount: failed, SuccessCount: 5},
		},
	}
}

func TestSendIncludesAnalysisWhenFailuresExist(t *testing.T) {
	analyzer := &fakeAnalyzer{result: models.FailureAnalysis{Summary: "schema drift"}}
	sink := &fakeSink{}
	svc := NewService(&fakeHealth{resp: dashboardWith(3)}, analyzer, sink, "https://dash.example.com", zerolog.Nop())

	err := svc.Send(context.Background(), models.TimeRange24h, true)
	require.NoError(t, err)

	assert.Equal(t, 1, sink.sends)
	assert.Equal(t, "https://dash.example.com", sink.url)
	require.NotNil(t, sink.analysis)
	assert.Equal(t, "schema drift", sink.analysis.Summary)
}

func TestSendSkipsAnalysisWithoutFailures(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sink := &fakeSink{}
	svc := NewService(&fakeHealth{resp: dashboardWith(0)}, analyzer, sink, "", zerolog.Nop())

	require.NoError(t, svc.Send(context.Background(), models.TimeRange24h, true))
	assert.Equal(t, 0, analyzer.calls)
	assert.Nil(t, sink.analysis)
}

func TestSendSkipsAnalysisWhenNotRequested(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	sink := &fakeSink{}
	svc := NewService(&fakeHealth{resp: dashboardWith(3)}, analyzer, sink, "", zerolog.Nop())

	require.NoError(t, svc.Send(context.Background(), models.TimeRange24h, false))
	assert.Equal(t, 0, analyzer.calls)
	assert.Nil(t, sink.analysis)
}

func TestSendDegradesWhenAnalysisFails(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("provider down")}
	sink := &fakeSink{}
	svc := NewService(&fakeHealth{resp: dashboardWith(3)}, analyzer, sink, "", zerolog.Nop())

	// The report still goes out, just without the analysis section.
	require.NoError(t, svc.Send(context.Background(), models.TimeRange24h, true))
	assert.Equal(t, 1, sink.sends)
	assert.Nil(t, sink.analysis)
}

func TestSendFailsWithoutDomainData(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(&fakeHealth{resp: models.DashboardResponse{}}, &fakeAnalyzer{}, sink, "", zerolog.Nop())

	err := svc.Send(context.Background(), models.TimeRange24h, true)
	require.Error(t, err)
	assert.Equal(t, 0, sink.sends)
}

func TestSendPropagatesDashboardError(t *testing.T) {
	svc := NewService(&fakeHealth{err: errors.New("upstream down")}, &fakeAnalyzer{}, &fakeSink{}, "", zerolog.Nop())
	assert.Error(t, svc.Send(context.Background(), models.TimeRange24h, true))
}

func TestSendPropagatesSinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("webhook rejected")}
	svc := NewService(&fakeHealth{resp: dashboardWith(0)}, &fakeAnalyzer{}, sink, "", zerolog.Nop())

	err := svc.Send(context.Background(), models.TimeRange24h, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook rejected")
}

// Package airflow is the gateway to the orchestrator's REST API. It handles
// pagination, bounded concurrent fan-out with per-workflow failure isolation,
// and credential strategy selection with a single refresh-and-retry on
// authorization failure.
package airflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dagpulse/dagpulse/internal/config"
	"github.com/dagpulse/dagpulse/internal/models"
)

const (
	// dagPageSize is the fixed page size for DAG listings.
	dagPageSize = 100
	// runFetchLimit caps runs fetched per workflow during fan-out.
	runFetchLimit = 100
)

// Client talks to the Airflow REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
	creds   Credentials
	sem     *semaphore.Weighted
	logger  zerolog.Logger
}

// NewClient builds a gateway from configuration. An absent or ambiguous
// authentication strategy is a construction error.
func NewClient(cfg config.AirflowConfig, logger zerolog.Logger) (*Client, error) {
	creds, err := newCredentials(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "configure airflow authentication")
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}
	return &Client{
		baseURL: trimTrailingSlash(cfg.BaseURL),
		httpc: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		creds:  creds,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		logger: logger.With().Str("component", "airflow_client").Logger(),
	}, nil
}

// BaseURL returns the webserver URL used for building UI links.
func (c *Client) BaseURL() string {
	if hb, ok := c.creds.(interface{ Host() string }); ok {
		if host := hb.Host(); host != "" {
			return "https://" + host
		}
	}
	return c.baseURL
}

// Ping probes the orchestrator health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var out map[string]interface{}
	return c.getJSON(ctx, "health", nil, &out)
}

// ListWorkflows fetches every DAG, paginating until the cumulative offset
// reaches the reported total. A failed page fails the whole listing, since
// grouping needs the complete set.
func (c *Client) ListWorkflows(ctx context.Context) ([]models.Workflow, error) {
	var all []models.Workflow
	offset := 0
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(dagPageSize)},
			"offset": {strconv.Itoa(offset)},
		}
		var page struct {
			Dags []struct {
				DagID       string `json:"dag_id"`
				DisplayName string `json:"dag_display_name"`
				Description string `json:"description"`
				IsPaused    bool   `json:"is_paused"`
				Tags        []tag  `json:"tags"`
			} `json:"dags"`
			TotalEntries int `json:"total_entries"`
		}
		if err := c.getJSON(ctx, "dags", params, &page); err != nil {
			return nil, errors.Wrapf(err, "list dags at offset %d", offset)
		}
		for _, d := range page.Dags {
			all = append(all, models.Workflow{
				DagID:       d.DagID,
				DisplayName: d.DisplayName,
				Description: d.Description,
				IsPaused:    d.IsPaused,
				Tags:        tagNames(d.Tags),
			})
		}
		offset += dagPageSize
		if offset >= page.TotalEntries {
			break
		}
	}
	c.logger.Info().Int("count", len(all)).Msg("fetched dags")
	return all, nil
}

// ListRuns fetches runs for one DAG within the lookback window, ordered
// descending by execution date and capped at limit.
func (c *Client) ListRuns(ctx context.Context, dagID string, timeRange models.TimeRange, limit int) ([]models.Run, error) {
	params := url.Values{
		"limit":          {strconv.Itoa(limit)},
		"start_date_gte": {startDateFor(timeRange, time.Now().UTC()).Format(time.RFC3339)},
		"order_by":       {"-execution_date"},
	}
	var out struct {
		DagRuns []runPayload `json:"dag_runs"`
	}
	path := "dags/" + url.PathEscape(dagID) + "/dagRuns"
	if err := c.getJSON(ctx, path, params, &out); err != nil {
		return nil, errors.Wrapf(err, "list runs for %s", dagID)
	}
	runs := make([]models.Run, 0, len(out.DagRuns))
	for _, r := range out.DagRuns {
		runs = append(runs, r.toRun(dagID))
	}
	return runs, nil
}

// ListRunsForMany fetches runs for every DAG concurrently, bounded by the
// configured in-flight limit. A DAG whose request fails contributes an empty
// list and a warning; the aggregate call itself never fails.
func (c *Client) ListRunsForMany(ctx context.Context, dagIDs []string, timeRange models.TimeRange) map[string][]models.Run {
	results := make(map[string][]models.Run, len(dagIDs))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, dagID := range dagIDs {
		wg.Add(1)
		go func(dagID string) {
			defer wg.Done()

			runs := []models.Run{}
			if err := c.sem.Acquire(ctx, 1); err != nil {
				c.logger.Warn().Err(err).Str("dag_id", dagID).Msg("skipping run fetch")
			} else {
				fetched, err := c.ListRuns(ctx, dagID, timeRange, runFetchLimit)
				c.sem.Release(1)
				if err != nil {
					c.logger.Warn().Err(err).Str("dag_id", dagID).Msg("failed to fetch runs")
				} else {
					runs = fetched
				}
			}

			mu.Lock()
			results[dagID] = runs
			mu.Unlock()
		}(dagID)
	}
	wg.Wait()
	return results
}

// ListTaskInstances fetches task instances for one run.
func (c *Client) ListTaskInstances(ctx context.Context, dagID, runID string) ([]models.TaskInstance, error) {
	var out struct {
		TaskInstances []struct {
			TaskID    string          `json:"task_id"`
			State     models.RunState `json:"state"`
			TryNumber int             `json:"try_number"`
		} `json:"task_instances"`
	}
	path := "dags/" + url.PathEscape(dagID) + "/dagRuns/" + url.PathEscape(runID) + "/taskInstances"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, errors.Wrapf(err, "list task instances for %s/%s", dagID, runID)
	}
	tis := make([]models.TaskInstance, 0, len(out.TaskInstances))
	for _, ti := range out.TaskInstances {
		tis = append(tis, models.TaskInstance{TaskID: ti.TaskID, State: ti.State, TryNumber: ti.TryNumber})
	}
	return tis, nil
}

// GetTaskLog fetches the log text of one task attempt.
func (c *Client) GetTaskLog(ctx context.Context, dagID, runID, taskID string, tryNumber int) (string, error) {
	path := fmt.Sprintf("dags/%s/dagRuns/%s/taskInstances/%s/logs/%d",
		url.PathEscape(dagID), url.PathEscape(runID), url.PathEscape(taskID), tryNumber)
	params := url.Values{"full_content": {"true"}}

	resp, err := c.do(ctx, path, params)
	if err != nil {
		return "", errors.Wrapf(err, "fetch log for %s/%s/%s", dagID, runID, taskID)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read log body")
	}
	return string(body), nil
}

type runPayload struct {
	DagRunID      string     `json:"dag_run_id"`
	State         *string    `json:"state"`
	ExecutionDate time.Time  `json:"execution_date"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

// toRun converts a wire run. A null state stays empty here; callers decide
// whether to skip it (aggregation) or default it (display records).
func (r runPayload) toRun(dagID string) models.Run {
	state := models.RunState("")
	if r.State != nil {
		state = models.RunState(*r.State)
	}
	return models.Run{
		DagID:         dagID,
		RunID:         r.DagRunID,
		State:         state,
		ExecutionDate: r.ExecutionDate,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
	}
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	resp, err := c.do(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// do issues an authenticated request. On an authorization failure with a
// refreshable strategy it refreshes and retries exactly once; a second
// authorization failure propagates.
func (c *Client) do(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	resp, err := c.send(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if isAuthFailure(resp.StatusCode) && c.creds.Refreshable() {
		resp.Body.Close()
		c.logger.Info().Str("path", path).Msg("session expired, refreshing credentials")
		if err := c.creds.Refresh(ctx); err != nil {
			return nil, errors.Wrap(err, "refresh credentials")
		}
		resp, err = c.send(ctx, path, params)
		if err != nil {
			return nil, err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("airflow api returned %d for %s: %s", resp.StatusCode, path, string(body))
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	u := c.BaseURL() + "/api/v1/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := c.creds.Apply(req); err != nil {
		return nil, errors.Wrap(err, "apply credentials")
	}
	return c.httpc.Do(req)
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func startDateFor(timeRange models.TimeRange, now time.Time) time.Time {
	return now.Add(-timeRange.Duration())
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

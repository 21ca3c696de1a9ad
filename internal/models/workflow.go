package models

import "time"

// Workflow is an orchestrator-managed DAG. Tags are normalized to plain
// strings at the gateway boundary.
type Workflow struct {
	DagID       string   `json:"dag_id"`
	DisplayName string   `json:"dag_display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	IsPaused    bool     `json:"is_paused"`
	Tags        []string `json:"tags"`
}

// WorkflowHealth is the health summary for a single workflow within a domain.
type WorkflowHealth struct {
	DagID        string     `json:"dag_id"`
	DisplayName  string     `json:"dag_display_name,omitempty"`
	Description  string     `json:"description,omitempty"`
	IsPaused     bool       `json:"is_paused"`
	Tags         []string   `json:"tags"`
	TotalRuns    int        `json:"total_runs"`
	FailedCount  int        `json:"failed_count"`
	SuccessCount int        `json:"success_count"`
	RunningCount int        `json:"running_count"`
	QueuedCount  int        `json:"queued_count"`
	LastRunState *RunState  `json:"last_run_state,omitempty"`
	LastRunDate  *time.Time `json:"last_run_date,omitempty"`
	AirflowURL   string     `json:"airflow_dag_url"`
}

// DomainHealth is the aggregated health summary for a business domain.
type DomainHealth struct {
	Domain       string    `json:"domain"`
	TotalDags    int       `json:"total_dags"`
	TotalRuns    int       `json:"total_runs"`
	FailedCount  int       `json:"failed_count"`
	SuccessCount int       `json:"success_count"`
	RunningCount int       `json:"running_count"`
	QueuedCount  int       `json:"queued_count"`
	HasFailures  bool      `json:"has_failures"`
	HealthScore  float64   `json:"health_score"`
	LastUpdated  time.Time `json:"last_updated"`
}

// DashboardResponse is the top-level dashboard payload.
type DashboardResponse struct {
	TimeRange    TimeRange      `json:"time_range"`
	Domains      []DomainHealth `json:"domains"`
	TotalDomains int            `json:"total_domains"`
	TotalDags    int            `json:"total_dags"`
	LastUpdated  time.Time      `json:"last_updated"`
}

// DomainDetailResponse is the per-domain drill-down payload.
type DomainDetailResponse struct {
	Domain      string           `json:"domain"`
	TimeRange   TimeRange        `json:"time_range"`
	Summary     DomainHealth     `json:"summary"`
	Dags        []WorkflowHealth `json:"dags"`
	LastUpdated time.Time        `json:"last_updated"`
}

// HealthCheckResponse reports service and dependency status.
type HealthCheckResponse struct {
	Status            string    `json:"status"`
	Version           string    `json:"version"`
	AirflowConnection string    `json:"airflow_connection"`
	CacheStatus       string    `json:"cache_status"`
	Timestamp         time.Time `json:"timestamp"`
}

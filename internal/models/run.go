package models

import "time"

// RunState is a DAG run state as reported by the Airflow API.
type RunState string

const (
	RunStateSuccess RunState = "success"
	RunStateFailed  RunState = "failed"
	RunStateRunning RunState = "running"
	RunStateQueued  RunState = "queued"
)

// Valid reports whether the state is one Airflow is known to emit. Upstream
// payloads occasionally carry a null or unexpected state.
func (s RunState) Valid() bool {
	switch s {
	case RunStateSuccess, RunStateFailed, RunStateRunning, RunStateQueued:
		return true
	}
	return false
}

// Run is a single execution of a workflow, as fetched from the orchestrator.
// State is empty when the upstream payload carried no state.
type Run struct {
	DagID         string     `json:"dag_id"`
	RunID         string     `json:"dag_run_id"`
	State         RunState   `json:"state"`
	ExecutionDate time.Time  `json:"execution_date"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
}

// RunSummary is the display record for a single run, with a direct link into
// the Airflow UI. Unlike Run, an absent state is defaulted to queued here.
type RunSummary struct {
	DagID         string     `json:"dag_id"`
	RunID         string     `json:"dag_run_id"`
	State         RunState   `json:"state"`
	ExecutionDate time.Time  `json:"execution_date"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	AirflowURL    string     `json:"airflow_url"`
}

// TaskInstance is one task attempt within a run, used by failure analysis.
type TaskInstance struct {
	TaskID    string   `json:"task_id"`
	State     RunState `json:"state"`
	TryNumber int      `json:"try_number"`
}

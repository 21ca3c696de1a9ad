package models

import "time"

// FailureCategory groups similar failures identified by the analysis provider.
type FailureCategory struct {
	Name        string   `json:"name"`
	Count       int      `json:"count"`
	DagIDs      []string `json:"dag_ids"`
	Description string   `json:"description"`
}

// ActionItem is a recommended remediation step.
type ActionItem struct {
	Priority     string   `json:"priority"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	AffectedDags []string `json:"affected_dags"`
}

// FailureAnalysis is the analysis bundle for failing workflows in a window.
// Degraded is set when the provider was unavailable and only a locally
// synthesized counts summary is present.
type FailureAnalysis struct {
	Summary     string            `json:"summary"`
	Categories  []FailureCategory `json:"categories"`
	ActionItems []ActionItem      `json:"action_items"`
	TimeRange   TimeRange         `json:"time_range"`
	Degraded    bool              `json:"degraded,omitempty"`
	Error       string            `json:"error,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

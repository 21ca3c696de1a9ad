package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/dagpulse/dagpulse/internal/airflow"
	"github.com/dagpulse/dagpulse/internal/models"
)

const (
	// maxAnalyzedWorkflows caps how many failing workflows get log collection.
	maxAnalyzedWorkflows = 10
	// maxRunsPerWorkflow caps runs inspected per failing workflow.
	maxRunsPerWorkflow = 2
	// maxLogChars truncates each collected task log.
	maxLogChars = 5000
	// recentFailuresShown limits the failure timestamps listed per workflow.
	recentFailuresShown = 3
)

type taskLog struct {
	RunID   string
	TaskID  string
	Excerpt string
}

type failingWorkflow struct {
	Workflow   models.Workflow
	Domain     string
	FailedRuns []models.Run
	Logs       []taskLog
}

type failureReport struct {
	TimeRange             models.TimeRange
	TotalFailingWorkflows int
	TotalFailedRuns       int
	// Workflows holds the capped selection that received log collection,
	// most-failing first.
	Workflows []failingWorkflow
}

// collect walks all workflows and their runs in the window, selects failing
// workflows, and fetches logs for a bounded subset: at most
// maxAnalyzedWorkflows workflows, maxRunsPerWorkflow runs each, one failed
// task log per run. Individual log-collection failures are tolerated.
func (s *Service) collect(ctx context.Context, timeRange models.TimeRange) (failureReport, error) {
	report := failureReport{TimeRange: timeRange}

	workflows, err := s.gw.ListWorkflows(ctx)
	if err != nil {
		return report, errors.Wrap(err, "list workflows")
	}

	ids := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		ids = append(ids, wf.DagID)
	}
	runsByID := s.gw.ListRunsForMany(ctx, ids, timeRange)

	var failing []failingWorkflow
	for _, wf := range workflows {
		var failedRuns []models.Run
		for _, run := range runsByID[wf.DagID] {
			if run.State == models.RunStateFailed {
				failedRuns = append(failedRuns, run)
			}
		}
		if len(failedRuns) == 0 {
			continue
		}
		report.TotalFailingWorkflows++
		report.TotalFailedRuns += len(failedRuns)
		failing = append(failing, failingWorkflow{
			Workflow:   wf,
			Domain:     airflow.DomainOf(wf.Tags),
			FailedRuns: failedRuns,
		})
	}

	// Most-failing workflows first so the cap keeps the worst offenders.
	sort.Slice(failing, func(i, j int) bool {
		if len(failing[i].FailedRuns) != len(failing[j].FailedRuns) {
			return len(failing[i].FailedRuns) > len(failing[j].FailedRuns)
		}
		return failing[i].Workflow.DagID < failing[j].Workflow.DagID
	})
	if len(failing) > maxAnalyzedWorkflows {
		failing = failing[:maxAnalyzedWorkflows]
	}

	for i := range failing {
		failing[i].Logs = s.collectLogs(ctx, failing[i])
	}
	report.Workflows = failing
	return report, nil
}

// collectLogs fetches the log of at most one failed task for each of at most
// maxRunsPerWorkflow failed runs.
func (s *Service) collectLogs(ctx context.Context, fw failingWorkflow) []taskLog {
	runs := fw.FailedRuns
	if len(runs) > maxRunsPerWorkflow {
		runs = runs[:maxRunsPerWorkflow]
	}

	var logs []taskLog
	for _, run := range runs {
		instances, err := s.gw.ListTaskInstances(ctx, fw.Workflow.DagID, run.RunID)
		if err != nil {
			s.logger.Warn().Err(err).Str("dag_id", fw.Workflow.DagID).Str("run_id", run.RunID).
				Msg("failed to list task instances")
			continue
		}
		var failedTask *models.TaskInstance
		for i := range instances {
			if instances[i].State == models.RunStateFailed {
				failedTask = &instances[i]
				break
			}
		}
		if failedTask == nil {
			continue
		}
		logText, err := s.gw.GetTaskLog(ctx, fw.Workflow.DagID, run.RunID, failedTask.TaskID, failedTask.TryNumber)
		if err != nil {
			s.logger.Warn().Err(err).Str("dag_id", fw.Workflow.DagID).Str("task_id", failedTask.TaskID).
				Msg("failed to fetch task log")
			continue
		}
		if len(logText) > maxLogChars {
			logText = logText[:maxLogChars]
		}
		logs = append(logs, taskLog{RunID: run.RunID, TaskID: failedTask.TaskID, Excerpt: logText})
	}
	return logs
}

// buildPrompt renders the structured failure context handed to the provider.
func buildPrompt(report failureReport) string {
	var b strings.Builder
	b.WriteString("# Workflow Failure Analysis Request\n\n")
	fmt.Fprintf(&b, "Time range: %s\n", report.TimeRange)
	fmt.Fprintf(&b, "Total failing workflows: %d\n", report.TotalFailingWorkflows)
	fmt.Fprintf(&b, "Total failed runs: %d\n\n", report.TotalFailedRuns)

	b.WriteString("## Failing Workflows:\n")
	for _, fw := range report.Workflows {
		fmt.Fprintf(&b, "\n### %s\n", fw.Workflow.DagID)
		fmt.Fprintf(&b, "- Domain: %s\n", fw.Domain)
		fmt.Fprintf(&b, "- Failed runs: %d\n", len(fw.FailedRuns))
		if fw.Workflow.Description != "" {
			fmt.Fprintf(&b, "- Description: %s\n", fw.Workflow.Description)
		}
		b.WriteString("- Recent failures:\n")
		shown := fw.FailedRuns
		if len(shown) > recentFailuresShown {
			shown = shown[:recentFailuresShown]
		}
		for _, run := range shown {
			fmt.Fprintf(&b, "  * %s: %s\n", run.ExecutionDate.Format("2006-01-02T15:04:05Z07:00"), run.State)
		}
		for _, lg := range fw.Logs {
			fmt.Fprintf(&b, "- Log excerpt (run %s, task %s):\n```\n%s\n```\n", lg.RunID, lg.TaskID, lg.Excerpt)
		}
	}
	return b.String()
}

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/models"
	"github.com/dagpulse/dagpulse/internal/scheduler"
)

// ReportSender dispatches a health report on demand.
type ReportSender interface {
	Send(ctx context.Context, timeRange models.TimeRange, includeAnalysis bool) error
}

// ScheduleSource exposes the configured report slots.
type ScheduleSource interface {
	Schedule() []scheduler.SlotStatus
}

// SinkTester sends a connectivity-check message to the messaging sink.
type SinkTester interface {
	SendTest(ctx context.Context) error
}

type ReportHandler struct {
	reports  ReportSender
	schedule ScheduleSource
	sink     SinkTester
	logger   zerolog.Logger
}

func NewReportHandler(reports ReportSender, schedule ScheduleSource, sink SinkTester, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, schedule: schedule, sink: sink, logger: logger}
}

// SendReport dispatches a report immediately. Sink failure is reported as a
// boolean, not an error status.
func (h *ReportHandler) SendReport(w http.ResponseWriter, r *http.Request) {
	timeRange := models.ParseTimeRange(r.URL.Query().Get("time_range"))
	includeAnalysis := true
	if v := r.URL.Query().Get("include_ai_analysis"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			includeAnalysis = parsed
		}
	}

	if err := h.reports.Send(r.Context(), timeRange, includeAnalysis); err != nil {
		h.logger.Error().Err(err).Msg("report dispatch failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Report sent",
	})
}

// GetSchedule returns the configured report slots and last-fired dates.
func (h *ReportHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots": h.schedule.Schedule(),
	})
}

// SlackTest sends a test message to the webhook.
func (h *ReportHandler) SlackTest(w http.ResponseWriter, r *http.Request) {
	if err := h.sink.SendTest(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("slack test failed")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Test message sent",
	})
}

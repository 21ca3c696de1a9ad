// Package scheduler runs the two background loops: periodic failure-analysis
// precomputation and twice-daily report dispatch. Both loops stop promptly
// on context cancellation.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dagpulse/dagpulse/internal/models"
)

// reportTick is how often the report loop compares the clock against the
// configured slots. Slots match within a ±1 minute window, so the loop must
// not tick slower than this.
const reportTick = 60 * time.Second

// Reporter dispatches one health report.
type Reporter interface {
	Send(ctx context.Context, timeRange models.TimeRange, includeAnalysis bool) error
}

// Precomputer warms the failure-analysis cache.
type Precomputer interface {
	AnalyzeFailures(ctx context.Context, timeRange models.TimeRange) (models.FailureAnalysis, error)
}

// slot is a configured time-of-day with a once-per-calendar-day guard.
type slot struct {
	hour, minute  int
	lastFiredDate string // "2006-01-02", empty until first fire
}

// SlotStatus is the schedule view exposed over the API.
type SlotStatus struct {
	Time          string `json:"time"`
	LastFiredDate string `json:"last_fired_date,omitempty"`
}

type Scheduler struct {
	reports         Reporter
	analysis        Precomputer
	refreshInterval time.Duration
	logger          zerolog.Logger
	now             func() time.Time

	mu    sync.Mutex
	slots []*slot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New parses the "HH:MM" report slots and assembles the scheduler.
func New(reports Reporter, analysis Precomputer, refreshInterval time.Duration, slotTimes []string, logger zerolog.Logger) (*Scheduler, error) {
	slots := make([]*slot, 0, len(slotTimes))
	for _, st := range slotTimes {
		parsed, err := parseSlot(st)
		if err != nil {
			return nil, err
		}
		slots = append(slots, parsed)
	}
	return &Scheduler{
		reports:         reports,
		analysis:        analysis,
		refreshInterval: refreshInterval,
		logger:          logger.With().Str("component", "scheduler").Logger(),
		now:             time.Now,
		slots:           slots,
	}, nil
}

// Start launches both loops. Stop cancels them and waits for exit.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.precomputeLoop(ctx)
	go s.reportLoop(ctx)
	s.logger.Info().
		Dur("refresh_interval", s.refreshInterval).
		Int("report_slots", len(s.slots)).
		Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// Schedule returns the configured slots and their last-fired dates.
func (s *Scheduler) Schedule() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]SlotStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		statuses = append(statuses, SlotStatus{
			Time:          fmt.Sprintf("%02d:%02d", sl.hour, sl.minute),
			LastFiredDate: sl.lastFiredDate,
		})
	}
	return statuses
}

// precomputeLoop warms the analysis cache for every supported time range,
// then sleeps the refresh interval.
func (s *Scheduler) precomputeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		for _, timeRange := range models.TimeRanges() {
			if ctx.Err() != nil {
				return
			}
			if _, err := s.analysis.AnalyzeFailures(ctx, timeRange); err != nil {
				s.logger.Error().Err(err).Str("time_range", string(timeRange)).
					Msg("failure analysis precompute failed")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.refreshInterval):
		}
	}
}

// reportLoop checks the clock against the slots once per tick.
func (s *Scheduler) reportLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(reportTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkSlots(ctx, s.now())
		}
	}
}

// checkSlots fires every slot matching now within ±1 minute that has not
// already fired today. The date is recorded after the attempt whether or not
// generation succeeded, so a failing report is not retried until tomorrow.
func (s *Scheduler) checkSlots(ctx context.Context, now time.Time) {
	today := now.Format("2006-01-02")

	s.mu.Lock()
	var due []*slot
	for _, sl := range s.slots {
		if sl.lastFiredDate != today && withinWindow(now, sl.hour, sl.minute) {
			due = append(due, sl)
		}
	}
	s.mu.Unlock()

	for _, sl := range due {
		s.logger.Info().Str("slot", fmt.Sprintf("%02d:%02d", sl.hour, sl.minute)).Msg("firing scheduled report")
		if err := s.reports.Send(ctx, models.TimeRange24h, true); err != nil {
			s.logger.Error().Err(err).Msg("scheduled report failed")
		}
		s.mu.Lock()
		sl.lastFiredDate = today
		s.mu.Unlock()
	}
}

// withinWindow reports whether now is within one minute of the slot time.
func withinWindow(now time.Time, hour, minute int) bool {
	nowMinutes := now.Hour()*60 + now.Minute()
	slotMinutes := hour*60 + minute
	diff := nowMinutes - slotMinutes
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

func parseSlot(s string) (*slot, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil, errors.Errorf("invalid report slot %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return nil, errors.Errorf("invalid report slot hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return nil, errors.Errorf("invalid report slot minute in %q", s)
	}
	return &slot{hour: hour, minute: minute}, nil
}

// Package reminder implements the scheduled reminder scanner for
// meetings and monthly report deadlines.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/notify"
	"github.com/example/staffops/pkg/store"
)

// DefaultInterval is the scan period. The trigger windows are ten-minute
// bands, so a few missed ticks cannot miss a reminder as long as the
// process is running somewhere inside the window.
const DefaultInterval = 30 * time.Second

// reportWindow is how long before the monthly report deadline the
// reminder starts firing
const reportWindow = 72 * time.Hour

// Window is one trigger band before a meeting's start
type Window struct {
	Tag   string
	Label string
	// Near and Far bound the band: the window matches when the time
	// until start lies in [Near, Far).
	Near time.Duration
	Far  time.Duration
}

// Contains reports whether the remaining time until start falls in the band
func (w Window) Contains(until time.Duration) bool {
	return until >= w.Near && until < w.Far
}

// MeetingWindows are the reminder bands. The bands are disjoint, so at
// most one matches any scan; a meeting first observed between bands
// simply waits for the next one.
var MeetingWindows = []Window{
	{Tag: "min30", Label: "30 minutes", Near: 25 * time.Minute, Far: 35 * time.Minute},
	{Tag: "min15", Label: "15 minutes", Near: 10 * time.Minute, Far: 20 * time.Minute},
}

// Scanner polls meetings and the report calendar, flagging and
// dispatching reminders. Dedup is layered: the per-meeting
// remindersSent flag stops rescans, and the deterministic notification
// id makes the dispatch itself an idempotent write when two clients
// race inside the same window.
type Scanner struct {
	doc        store.DocumentStore
	dispatcher *notify.Dispatcher
	interval   time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	// dispatched guards report reminders, which have no entity to flag;
	// only the scanner goroutine touches it
	dispatched map[string]bool
}

// NewScanner creates a reminder scanner
func NewScanner(doc store.DocumentStore, dispatcher *notify.Dispatcher, logger zerolog.Logger) *Scanner {
	return &Scanner{
		doc:        doc,
		dispatcher: dispatcher,
		interval:   DefaultInterval,
		now:        time.Now,
		logger:     logger.With().Str("component", "reminder").Logger(),
		dispatched: make(map[string]bool),
	}
}

// WithClock overrides the clock, for tests
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// WithInterval overrides the poll interval, for tests
func (s *Scanner) WithInterval(d time.Duration) *Scanner {
	s.interval = d
	return s
}

// Run scans once immediately, then on every tick until the context is
// cancelled
func (s *Scanner) Run(ctx context.Context) {
	s.Scan(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs a single pass over meetings and the report deadline.
// Failures are logged and swallowed; the next tick retries whatever is
// still inside its window.
func (s *Scanner) Scan(ctx context.Context) {
	now := s.now()

	meetings, err := s.doc.ListMeetings(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list meetings")
	} else {
		for _, meeting := range meetings {
			s.scanMeeting(ctx, meeting, now)
		}
	}

	s.scanReportDeadline(ctx, now)
}

func (s *Scanner) scanMeeting(ctx context.Context, meeting *models.Meeting, now time.Time) {
	until := meeting.StartsAt.Sub(now)
	if until <= 0 {
		return
	}
	for _, window := range MeetingWindows {
		if !window.Contains(until) || meeting.ReminderSent(window.Tag) {
			continue
		}

		// Flag first, dispatch second: if the flag write fails the
		// deterministic id still makes the dispatch a no-op on the next
		// pass, so the worst case is an extra upsert, never an extra
		// record.
		if err := s.doc.MarkReminderSent(ctx, meeting.ID, window.Tag); err != nil {
			s.logger.Warn().Err(err).Str("meeting", meeting.ID.String()).
				Str("window", window.Tag).Msg("failed to flag reminder")
		}

		id, err := models.ParseNotificationID(fmt.Sprintf("REMIND-%s-%s", meeting.ID, window.Tag))
		if err != nil {
			s.logger.Warn().Err(err).Str("meeting", meeting.ID.String()).Msg("failed to build reminder id")
			continue
		}
		_, err = s.dispatcher.Dispatch(ctx, models.Notification{
			ID:      id,
			Title:   fmt.Sprintf("%s starts in %s", meeting.Title, window.Label),
			Message: meeting.Room,
			Kind:    models.NotificationInfo,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("meeting", meeting.ID.String()).
				Str("window", window.Tag).Msg("failed to dispatch reminder")
		}
	}
}

// scanReportDeadline fires the monthly report reminder inside the last
// three days of the month. There is no entity to flag, so cross-client
// dedup rides entirely on the deterministic id; the dispatched map only
// keeps this process from re-toasting every tick.
func (s *Scanner) scanReportDeadline(ctx context.Context, now time.Time) {
	deadline := endOfMonth(now)
	if deadline.Sub(now) > reportWindow {
		return
	}

	month := now.Format("2006-01")
	key := "REMIND-report-" + month
	if s.dispatched[key] {
		return
	}

	id, err := models.ParseNotificationID(key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to build report reminder id")
		return
	}
	_, err = s.dispatcher.Dispatch(ctx, models.Notification{
		ID:    id,
		Title: fmt.Sprintf("Monthly report for %s is due %s", month, deadline.Format("Jan 2")),
		Kind:  models.NotificationWarning,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("month", month).Msg("failed to dispatch report reminder")
		return
	}
	s.dispatched[key] = true
}

// endOfMonth returns the last instant of now's month
func endOfMonth(now time.Time) time.Time {
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Nanosecond)
}

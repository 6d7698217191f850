package reminder_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/notify"
	"github.com/example/staffops/pkg/reminder"
	"github.com/example/staffops/pkg/store/storetest"
)

// midMonth keeps meeting tests clear of the report deadline window.
var midMonth = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

func newScanner(doc *storetest.Doc, now time.Time) *reminder.Scanner {
	toasts := notify.NewToastCenter().WithClock(func() time.Time { return now })
	dispatcher := notify.NewDispatcher(doc, toasts, zerolog.Nop()).
		WithClock(func() time.Time { return now })
	return reminder.NewScanner(doc, dispatcher, zerolog.Nop()).
		WithClock(func() time.Time { return now })
}

func createMeeting(t *testing.T, doc *storetest.Doc, id string, startsAt time.Time) models.MeetingID {
	t.Helper()
	meetingID, err := models.ParseMeetingID(id)
	require.NoError(t, err)
	require.NoError(t, doc.CreateMeeting(context.Background(), &models.Meeting{
		ID:       meetingID,
		Title:    "Standup",
		Room:     "Room 3",
		StartsAt: startsAt,
	}))
	return meetingID
}

func TestScanner_MeetingWindows(t *testing.T) {
	ctx := context.Background()

	t.Run("ThirtyMinuteWindowFires", func(t *testing.T) {
		doc := storetest.NewDoc()
		meetingID := createMeeting(t, doc, "m1", midMonth.Add(28*time.Minute))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		notification := doc.Notification("REMIND-m1-min30")
		require.NotNil(t, notification, "a meeting 28 minutes out sits inside the 25-35 window")
		assert.Equal(t, "Standup starts in 30 minutes", notification.Title)
		assert.Equal(t, "Room 3", notification.Message)
		assert.Equal(t, models.NotificationInfo, notification.Kind)

		meeting := doc.Meeting(meetingID)
		assert.True(t, meeting.ReminderSent("min30"), "the flag must be set so other clients skip the window")
		assert.False(t, meeting.ReminderSent("min15"))
	})

	t.Run("RescanInsideWindowAddsNoRecord", func(t *testing.T) {
		doc := storetest.NewDoc()
		createMeeting(t, doc, "m1", midMonth.Add(28*time.Minute))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)
		require.Equal(t, 1, doc.NotificationCount())

		rescans := newScanner(doc, midMonth.Add(10*time.Second))
		rescans.Scan(ctx)

		assert.Equal(t, 1, doc.NotificationCount(), "the flag plus the deterministic id keep the rescan a no-op")
	})

	t.Run("FifteenMinuteWindowFires", func(t *testing.T) {
		doc := storetest.NewDoc()
		createMeeting(t, doc, "m1", midMonth.Add(15*time.Minute))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		assert.NotNil(t, doc.Notification("REMIND-m1-min15"))
		assert.Nil(t, doc.Notification("REMIND-m1-min30"), "a meeting 15 minutes out is past the 30-minute window")
	})

	t.Run("OutsideAnyWindowNothingFires", func(t *testing.T) {
		doc := storetest.NewDoc()
		createMeeting(t, doc, "m1", midMonth.Add(2*time.Hour))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		assert.Equal(t, 0, doc.NotificationCount())
	})

	t.Run("StartedMeetingIgnored", func(t *testing.T) {
		doc := storetest.NewDoc()
		createMeeting(t, doc, "m1", midMonth.Add(-time.Minute))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		assert.Equal(t, 0, doc.NotificationCount())
	})

	t.Run("AlreadyFlaggedWindowSkipped", func(t *testing.T) {
		doc := storetest.NewDoc()
		meetingID, err := models.ParseMeetingID("m1")
		require.NoError(t, err)
		require.NoError(t, doc.CreateMeeting(ctx, &models.Meeting{
			ID:            meetingID,
			Title:         "Standup",
			StartsAt:      midMonth.Add(28 * time.Minute),
			RemindersSent: map[string]bool{"min30": true},
		}))
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		assert.Equal(t, 0, doc.NotificationCount(), "a flag set by another client must suppress the dispatch")
	})
}

func TestScanner_ReportDeadline(t *testing.T) {
	ctx := context.Background()
	// Jan 29 10:00, within 72h of the Jan 31 month end.
	nearDeadline := time.Date(2026, 1, 29, 10, 0, 0, 0, time.UTC)

	t.Run("FiresInsideWindow", func(t *testing.T) {
		doc := storetest.NewDoc()
		scanner := newScanner(doc, nearDeadline)

		scanner.Scan(ctx)

		notification := doc.Notification("REMIND-report-2026-01")
		require.NotNil(t, notification)
		assert.Equal(t, models.NotificationWarning, notification.Kind)
		assert.Contains(t, notification.Title, "2026-01")
		assert.Contains(t, notification.Title, "Jan 31")
	})

	t.Run("SilentOutsideWindow", func(t *testing.T) {
		doc := storetest.NewDoc()
		scanner := newScanner(doc, midMonth)

		scanner.Scan(ctx)

		assert.Equal(t, 0, doc.NotificationCount())
	})

	t.Run("SecondTickDoesNotRedispatch", func(t *testing.T) {
		doc := storetest.NewDoc()
		scanner := newScanner(doc, nearDeadline)

		scanner.Scan(ctx)
		puts := doc.Puts
		scanner.Scan(ctx)

		assert.Equal(t, 1, doc.NotificationCount())
		assert.Equal(t, puts, doc.Puts, "the process-local guard should skip even the upsert")
	})

	t.Run("ConcurrentClientCollapsesIntoOneRecord", func(t *testing.T) {
		doc := storetest.NewDoc()

		newScanner(doc, nearDeadline).Scan(ctx)
		newScanner(doc, nearDeadline).Scan(ctx)

		assert.Equal(t, 1, doc.NotificationCount(), "two processes racing the same month produce one record")
	})
}

func TestScanner_FlagFailureStillDispatches(t *testing.T) {
	ctx := context.Background()

	doc := storetest.NewDoc()
	createMeeting(t, doc, "m1", midMonth.Add(28*time.Minute))

	// Writes fail during the scan: the flag write and the notification
	// persist both fail, but the dispatch itself must still be attempted.
	doc.Err = assert.AnError
	scanner := newScanner(doc, midMonth)
	assert.NotPanics(t, func() { scanner.Scan(ctx) })

	// Once the store recovers the next pass converges: the flag is
	// written and the deterministic id yields exactly one record.
	doc.Err = nil
	scanner.Scan(ctx)

	assert.Equal(t, 1, doc.NotificationCount())
	meetingID, err := models.ParseMeetingID("m1")
	require.NoError(t, err)
	assert.True(t, doc.Meeting(meetingID).ReminderSent("min30"))
}

package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/notify"
	"github.com/example/staffops/pkg/store/storetest"
)

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	newDispatcher := func(doc *storetest.Doc) (*notify.Dispatcher, *notify.ToastCenter) {
		toasts := notify.NewToastCenter().WithClock(func() time.Time { return now })
		dispatcher := notify.NewDispatcher(doc, toasts, zerolog.Nop()).
			WithClock(func() time.Time { return now })
		return dispatcher, toasts
	}

	t.Run("CallerIDPassesThrough", func(t *testing.T) {
		doc := storetest.NewDoc()
		dispatcher, _ := newDispatcher(doc)

		id, err := models.ParseNotificationID("REMIND-m1-min30")
		require.NoError(t, err)

		dispatched, err := dispatcher.Dispatch(ctx, models.Notification{ID: id, Title: "Standup"})
		require.NoError(t, err)

		assert.Equal(t, "REMIND-m1-min30", dispatched.ID.String())
		require.NotNil(t, doc.Notification("REMIND-m1-min30"))
	})

	t.Run("AbsentIDGetsFreshOne", func(t *testing.T) {
		doc := storetest.NewDoc()
		dispatcher, _ := newDispatcher(doc)

		dispatched, err := dispatcher.Dispatch(ctx, models.Notification{Title: "Hello"})
		require.NoError(t, err)

		assert.False(t, dispatched.ID.IsZero())
	})

	t.Run("StampsReadAndTimestamp", func(t *testing.T) {
		doc := storetest.NewDoc()
		dispatcher, _ := newDispatcher(doc)

		stale := now.Add(-time.Hour)
		dispatched, err := dispatcher.Dispatch(ctx, models.Notification{
			Title:     "Hello",
			Read:      true,
			CreatedAt: stale,
		})
		require.NoError(t, err)

		assert.False(t, dispatched.Read, "read always starts false whatever the caller set")
		assert.Equal(t, now, dispatched.CreatedAt)
	})

	t.Run("EmptyKindDefaultsToInfo", func(t *testing.T) {
		doc := storetest.NewDoc()
		dispatcher, _ := newDispatcher(doc)

		dispatched, err := dispatcher.Dispatch(ctx, models.Notification{Title: "Hello"})
		require.NoError(t, err)

		assert.Equal(t, models.NotificationInfo, dispatched.Kind)
	})

	t.Run("DuplicateIDIsNoOp", func(t *testing.T) {
		doc := storetest.NewDoc()
		dispatcher, _ := newDispatcher(doc)

		id, err := models.ParseNotificationID("REMIND-m1-min30")
		require.NoError(t, err)

		_, err = dispatcher.Dispatch(ctx, models.Notification{ID: id, Title: "First"})
		require.NoError(t, err)
		_, err = dispatcher.Dispatch(ctx, models.Notification{ID: id, Title: "Second"})
		require.NoError(t, err)

		assert.Equal(t, 1, doc.NotificationCount(), "the second write must collapse into the first record")
		assert.Equal(t, "First", doc.Notification("REMIND-m1-min30").Title, "the existing record wins")
	})

	t.Run("ToastDeliveredEvenWhenPersistFails", func(t *testing.T) {
		doc := storetest.NewDoc()
		doc.Err = assert.AnError
		dispatcher, toasts := newDispatcher(doc)

		ch, cancel := toasts.Subscribe()
		defer cancel()

		_, err := dispatcher.Dispatch(ctx, models.Notification{Title: "Hello"})
		assert.Error(t, err, "the persist failure surfaces to the caller")

		select {
		case toast := <-ch:
			assert.Equal(t, "Hello", toast.Notification.Title)
		default:
			t.Fatal("toast should be delivered regardless of the persist outcome")
		}
	})
}

func TestToastCenter(t *testing.T) {
	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

	t.Run("FansOutToAllSubscribers", func(t *testing.T) {
		center := notify.NewToastCenter().WithClock(func() time.Time { return now })

		a, cancelA := center.Subscribe()
		defer cancelA()
		b, cancelB := center.Subscribe()
		defer cancelB()

		center.Push(models.Notification{Title: "Hello"})

		for _, ch := range []<-chan notify.Toast{a, b} {
			select {
			case toast := <-ch:
				assert.Equal(t, "Hello", toast.Notification.Title)
				assert.Equal(t, now.Add(notify.ToastDuration), toast.ExpiresAt)
			default:
				t.Fatal("every subscriber should receive the toast")
			}
		}
	})

	t.Run("SlowSubscriberDoesNotBlock", func(t *testing.T) {
		center := notify.NewToastCenter()

		_, cancel := center.Subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			// Overrun the subscriber buffer without draining it.
			for i := 0; i < 100; i++ {
				center.Push(models.Notification{Title: "Flood"})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("push must drop toasts rather than block on a full subscriber")
		}
	})

	t.Run("CancelIsIdempotent", func(t *testing.T) {
		center := notify.NewToastCenter()

		_, cancel := center.Subscribe()
		cancel()
		assert.NotPanics(t, cancel)
		assert.Equal(t, 0, center.Subscribers())
	})

	t.Run("PushAfterCancelDropsQuietly", func(t *testing.T) {
		center := notify.NewToastCenter()

		_, cancel := center.Subscribe()
		cancel()

		assert.NotPanics(t, func() {
			center.Push(models.Notification{Title: "Hello"})
		})
	})
}

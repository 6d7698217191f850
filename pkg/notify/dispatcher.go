// Package notify implements the notification dispatcher and the
// transient toast fan-out.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

// Dispatcher persists notifications and fans out their toasts.
type Dispatcher struct {
	doc    store.DocumentStore
	toasts *ToastCenter
	now    func() time.Time
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher writing to doc and pushing to toasts
func NewDispatcher(doc store.DocumentStore, toasts *ToastCenter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		doc:    doc,
		toasts: toasts,
		now:    time.Now,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// WithClock overrides the clock, for tests
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch persists the notification and pushes its toast. A caller
// supplied id passes through untouched, which is how deterministic
// reminder ids collapse concurrent writers into one record; an absent id
// gets a fresh UUID. The read flag and timestamp are always stamped
// here, whatever the caller set. The toast is pushed regardless of the
// persist outcome since toast delivery is independent of the record.
func (d *Dispatcher) Dispatch(ctx context.Context, notification models.Notification) (*models.Notification, error) {
	if notification.ID.IsZero() {
		notification.ID = models.NewNotificationID()
	}
	if notification.Kind == "" {
		notification.Kind = models.NotificationInfo
	}
	notification.Read = false
	notification.CreatedAt = d.now()

	err := d.doc.PutNotification(ctx, &notification)
	if err != nil {
		d.logger.Warn().Err(err).Str("id", notification.ID.String()).
			Msg("failed to persist notification")
	}
	d.toasts.Push(notification)
	return &notification, err
}

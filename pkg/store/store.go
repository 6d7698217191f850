// Package store defines the interfaces for the two persistence backends
// the sync core bridges: the document store (SurrealDB) and the
// relational store (PostgreSQL). Both implementations return nil without
// an error when a requested record does not exist.
package store

import (
	"context"
	"time"

	"github.com/example/staffops/pkg/models"
)

// ChangeKind classifies a document-store change event
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// PersonChange is one event from the document store's live feed. For
// ChangeRemoved only the Person.ID is populated.
type PersonChange struct {
	Kind   ChangeKind
	Person *models.Person
}

// RowEventKind classifies a relational change event
type RowEventKind string

const (
	RowInsert RowEventKind = "insert"
	RowUpdate RowEventKind = "update"
	RowDelete RowEventKind = "delete"
)

// RowEvent is one event from the relational change feed. New carries the
// post-image for inserts and updates, Old the pre-image when the change
// log recorded one.
type RowEvent struct {
	Kind RowEventKind
	New  *models.PersonRow
	Old  *models.PersonRow
}

// UnsubscribeFunc stops a change subscription. Calling it more than once
// is safe.
type UnsubscribeFunc func()

// DocumentStore is the SurrealDB side of the sync pair.
type DocumentStore interface {
	// CreatePerson creates a new person record. A zero ID gets a fresh one.
	CreatePerson(ctx context.Context, person *models.Person) error
	// GetPerson returns nil if the person does not exist
	GetPerson(ctx context.Context, id models.PersonID) (*models.Person, error)
	// ListPeople returns all person records
	ListPeople(ctx context.Context) ([]*models.Person, error)
	// MergePerson applies a partial update; fields absent from the patch
	// are left untouched on the record.
	MergePerson(ctx context.Context, id models.PersonID, patch models.JSONMap) error
	// DeletePerson removes the person record
	DeletePerson(ctx context.Context, id models.PersonID) error
	// SubscribePeople starts a live subscription on the people table.
	// onChange is invoked from a dedicated goroutine, one event at a time.
	SubscribePeople(ctx context.Context, onChange func(PersonChange)) (UnsubscribeFunc, error)

	// PutNotification is an idempotent upsert keyed by the notification id
	PutNotification(ctx context.Context, notification *models.Notification) error
	// ListNotifications returns all notifications, newest first
	ListNotifications(ctx context.Context) ([]*models.Notification, error)
	// MarkNotificationRead sets the read flag
	MarkNotificationRead(ctx context.Context, id models.NotificationID) error
	// ClearNotifications removes all notification records
	ClearNotifications(ctx context.Context) error

	// CreateMeeting creates a new meeting record. A zero ID gets a fresh one.
	CreateMeeting(ctx context.Context, meeting *models.Meeting) error
	// ListMeetings returns all meeting records
	ListMeetings(ctx context.Context) ([]*models.Meeting, error)
	// MarkReminderSent sets remindersSent.{tag} on the meeting. The flag
	// is never reset.
	MarkReminderSent(ctx context.Context, id models.MeetingID, tag string) error

	// Close releases the underlying connection
	Close(ctx context.Context) error
}

// RelationalStore is the PostgreSQL side of the sync pair. Every write
// appends to the change_log table in the same transaction so that
// SubscribeChanges observes it.
type RelationalStore interface {
	// Migrate creates or updates the schema
	Migrate(ctx context.Context) error
	// UpsertPersonRow writes the mapped columns keyed by id, leaving
	// last_seen untouched on conflict.
	UpsertPersonRow(ctx context.Context, row *models.PersonRow) error
	// GetPersonRow returns nil if the row does not exist
	GetPersonRow(ctx context.Context, id models.PersonID) (*models.PersonRow, error)
	// ListPersonRows returns all person rows
	ListPersonRows(ctx context.Context) ([]*models.PersonRow, error)
	// DeletePersonRow removes the row; deleting a missing row is not an error
	DeletePersonRow(ctx context.Context, id models.PersonID) error
	// Heartbeat writes only the last_seen column. The row is created if
	// the mirror has not delivered it yet.
	Heartbeat(ctx context.Context, id models.PersonID, at time.Time) error
	// SubscribeChanges tails the change feed. onEvent is invoked from a
	// dedicated goroutine, one event at a time, in log order.
	SubscribeChanges(ctx context.Context, onEvent func(RowEvent)) (UnsubscribeFunc, error)

	// Close releases the underlying connection
	Close() error
}

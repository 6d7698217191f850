// Package surreal implements the document-store side of the sync pair on
// SurrealDB, using the surrealcbor codec so typed ids and time.Time
// values round-trip in the format SurrealDB expects. All queries are
// parameterized; user-provided values never reach a query string.
package surreal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

// Store implements store.DocumentStore on a SurrealDB connection.
type Store struct {
	db     *surrealdb.DB
	logger zerolog.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// New connects to SurrealDB over WebSocket. The connection is configured
// manually rather than through FromEndpointURLString so the surrealcbor
// codec handles marshaling; without it time.Time values come out in a
// format SurrealDB rejects.
func New(ctx context.Context, wsURL, namespace, database, username, password string, logger zerolog.Logger) (*Store, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)

	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	conn := gorillaws.New(conf)

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "surreal").Logger(),
	}, nil
}

// Close closes the database connection
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// handleNotFound maps the SDK's not-found error shapes to nil
func handleNotFound(err error) error {
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "Expected a single or multiple results but got 0") ||
			strings.Contains(errStr, "cannot unmarshal array into Go value") {
			return nil
		}
	}
	return err
}

// Person operations

func (s *Store) CreatePerson(ctx context.Context, person *models.Person) error {
	if person.ID.IsZero() {
		person.ID = models.NewPersonID()
	}

	_, err := surrealdb.Create[models.Person](ctx, s.db, person.ID.RecordID(), person)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id models.PersonID) (*models.Person, error) {
	rid := id.RecordID()
	person, err := surrealdb.Select[models.Person](ctx, s.db, rid)
	if err != nil {
		if handleNotFound(err) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}

func (s *Store) ListPeople(ctx context.Context) ([]*models.Person, error) {
	query := "SELECT * FROM people ORDER BY name"
	result, err := surrealdb.Query[[]models.Person](ctx, s.db, query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}

	var people []*models.Person
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			people = append(people, &(*result)[0].Result[i])
		}
	}
	return people, nil
}

func (s *Store) MergePerson(ctx context.Context, id models.PersonID, patch models.JSONMap) error {
	rid := id.RecordID()
	_, err := surrealdb.Merge[models.Person](ctx, s.db, rid, map[string]any(patch))
	if err != nil {
		return fmt.Errorf("failed to merge person: %w", err)
	}
	return nil
}

func (s *Store) DeletePerson(ctx context.Context, id models.PersonID) error {
	rid := id.RecordID()
	_, err := surrealdb.Delete[models.Person](ctx, s.db, rid)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return nil
}

// SubscribePeople starts a live query on the people table and pumps its
// notifications through onChange from a dedicated goroutine. Events that
// cannot be decoded are logged and dropped; they never stop the pump.
func (s *Store) SubscribePeople(ctx context.Context, onChange func(store.PersonChange)) (store.UnsubscribeFunc, error) {
	live, err := surrealdb.Live(ctx, s.db, "people", false)
	if err != nil {
		return nil, fmt.Errorf("failed to start live query: %w", err)
	}

	notifications, err := s.db.LiveNotifications(live.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get live notifications channel: %w", err)
	}

	go func() {
		for notification := range notifications {
			change, err := decodePersonChange(notification)
			if err != nil {
				s.logger.Warn().Err(err).Msg("dropping undecodable live notification")
				continue
			}
			onChange(*change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Kill closes the notification channel, which ends the pump
			if err := surrealdb.Kill(context.Background(), s.db, live.String()); err != nil {
				s.logger.Warn().Err(err).Msg("failed to kill live query")
			}
		})
	}, nil
}

// decodePersonChange converts one live-query notification into a person
// change. Live queries without diff deliver the full record as
// map[string]any with the id as a models.RecordID.
func decodePersonChange(notification connection.Notification) (*store.PersonChange, error) {
	var kind store.ChangeKind
	switch notification.Action {
	case connection.CreateAction:
		kind = store.ChangeAdded
	case connection.UpdateAction:
		kind = store.ChangeModified
	case connection.DeleteAction:
		kind = store.ChangeRemoved
	default:
		return nil, fmt.Errorf("unknown live query action %q", notification.Action)
	}

	record, ok := notification.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map result, got %T", notification.Result)
	}

	rid, ok := record["id"].(surrealdb_models.RecordID)
	if !ok {
		return nil, fmt.Errorf("expected RecordID id, got %T", record["id"])
	}
	id, err := models.ParsePersonID(fmt.Sprintf("%v", rid.ID))
	if err != nil {
		return nil, err
	}

	if kind == store.ChangeRemoved {
		return &store.PersonChange{Kind: kind, Person: &models.Person{ID: id}}, nil
	}

	// Replace the RecordID with the bare id so the round-trip below
	// lands in PersonID.
	record["id"] = id.String()
	person, err := decodePerson(record)
	if err != nil {
		return nil, err
	}
	person.Leaves.Normalize()
	return &store.PersonChange{Kind: kind, Person: person}, nil
}

func decodePerson(record map[string]any) (*models.Person, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode live record: %w", err)
	}
	var person models.Person
	if err := json.Unmarshal(b, &person); err != nil {
		return nil, fmt.Errorf("failed to decode live record: %w", err)
	}
	return &person, nil
}

// Notification operations

// PutNotification writes the notification keyed by its id. INSERT IGNORE
// keeps an existing record untouched, so two clients racing on the same
// deterministic reminder id produce exactly one record and the loser's
// write is a true no-op.
func (s *Store) PutNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID.IsZero() {
		notification.ID = models.NewNotificationID()
	}

	query := "INSERT IGNORE INTO notifications $notification"
	params := map[string]any{
		"notification": notification,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, query, params); err != nil {
		return fmt.Errorf("failed to put notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context) ([]*models.Notification, error) {
	query := "SELECT * FROM notifications ORDER BY createdAt DESC"
	result, err := surrealdb.Query[[]models.Notification](ctx, s.db, query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	var notifications []*models.Notification
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			notifications = append(notifications, &(*result)[0].Result[i])
		}
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id models.NotificationID) error {
	rid := id.RecordID()
	_, err := surrealdb.Merge[models.Notification](ctx, s.db, rid, map[string]any{
		"read": true,
	})
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (s *Store) ClearNotifications(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE notifications", map[string]any{}); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}

// Meeting operations

func (s *Store) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID.IsZero() {
		meeting.ID = models.NewMeetingID()
	}

	_, err := surrealdb.Create[models.Meeting](ctx, s.db, meeting.ID.RecordID(), meeting)
	if err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	return nil
}

func (s *Store) ListMeetings(ctx context.Context) ([]*models.Meeting, error) {
	query := "SELECT * FROM meetings ORDER BY startsAt"
	result, err := surrealdb.Query[[]models.Meeting](ctx, s.db, query, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}

	var meetings []*models.Meeting
	if result != nil && len(*result) > 0 {
		for i := range (*result)[0].Result {
			meetings = append(meetings, &(*result)[0].Result[i])
		}
	}
	return meetings, nil
}

// MarkReminderSent sets remindersSent.{tag} via a merge, which deep-merges
// objects and so preserves flags for the other windows.
func (s *Store) MarkReminderSent(ctx context.Context, id models.MeetingID, tag string) error {
	rid := id.RecordID()
	_, err := surrealdb.Merge[models.Meeting](ctx, s.db, rid, map[string]any{
		"remindersSent": map[string]bool{tag: true},
	})
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

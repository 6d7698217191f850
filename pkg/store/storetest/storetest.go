// Package storetest provides in-memory implementations of the store
// interfaces so the sync core, presence, and reminder logic are testable
// without either database. Writes never emit change events on their own;
// tests drive the feeds explicitly through EmitChange and EmitEvent so
// event ordering stays deterministic.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

// MergeCall records one MergePerson invocation
type MergeCall struct {
	ID    models.PersonID
	Patch models.JSONMap
}

// Doc is an in-memory store.DocumentStore
type Doc struct {
	mu            sync.Mutex
	people        map[string]*models.Person
	notifications map[string]*models.Notification
	meetings      map[string]*models.Meeting
	subs          map[int]func(store.PersonChange)
	nextSub       int

	// Err, when set, is returned by every write operation
	Err error
	// Merges records every MergePerson call, loop-suppression tests
	// assert on it
	Merges  []MergeCall
	Deletes []models.PersonID
	// Puts counts PutNotification calls, including no-op upserts
	Puts int
}

var _ store.DocumentStore = (*Doc)(nil)

// NewDoc creates an empty in-memory document store
func NewDoc() *Doc {
	return &Doc{
		people:        make(map[string]*models.Person),
		notifications: make(map[string]*models.Notification),
		meetings:      make(map[string]*models.Meeting),
		subs:          make(map[int]func(store.PersonChange)),
	}
}

func (d *Doc) CreatePerson(_ context.Context, person *models.Person) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	if person.ID.IsZero() {
		person.ID = models.NewPersonID()
	}
	d.people[person.ID.String()] = clone(person)
	return nil
}

func (d *Doc) GetPerson(_ context.Context, id models.PersonID) (*models.Person, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.people[id.String()]
	if !ok {
		return nil, nil
	}
	return clone(p), nil
}

func (d *Doc) ListPeople(_ context.Context) ([]*models.Person, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var people []*models.Person
	for _, p := range d.people {
		people = append(people, clone(p))
	}
	return people, nil
}

func (d *Doc) MergePerson(_ context.Context, id models.PersonID, patch models.JSONMap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Merges = append(d.Merges, MergeCall{ID: id, Patch: patch})

	current := d.people[id.String()]
	doc := models.JSONMap{}
	if current != nil {
		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
	}
	for k, v := range patch {
		doc[k] = v
	}
	doc["id"] = id.String()
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var merged models.Person
	if err := json.Unmarshal(data, &merged); err != nil {
		return err
	}
	d.people[id.String()] = &merged
	return nil
}

func (d *Doc) DeletePerson(_ context.Context, id models.PersonID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Deletes = append(d.Deletes, id)
	delete(d.people, id.String())
	return nil
}

func (d *Doc) SubscribePeople(_ context.Context, onChange func(store.PersonChange)) (store.UnsubscribeFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := d.nextSub
	d.nextSub++
	d.subs[key] = onChange
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, key)
		})
	}, nil
}

// EmitChange delivers one change event to every subscriber, synchronously
func (d *Doc) EmitChange(change store.PersonChange) {
	d.mu.Lock()
	subs := make([]func(store.PersonChange), 0, len(d.subs))
	for _, fn := range d.subs {
		subs = append(subs, fn)
	}
	d.mu.Unlock()
	for _, fn := range subs {
		fn(change)
	}
}

func (d *Doc) PutNotification(_ context.Context, notification *models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Puts++
	if notification.ID.IsZero() {
		notification.ID = models.NewNotificationID()
	}
	// INSERT IGNORE semantics: an existing record wins
	if _, ok := d.notifications[notification.ID.String()]; ok {
		return nil
	}
	n := *notification
	d.notifications[n.ID.String()] = &n
	return nil
}

func (d *Doc) ListNotifications(_ context.Context) ([]*models.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var notifications []*models.Notification
	for _, n := range d.notifications {
		c := *n
		notifications = append(notifications, &c)
	}
	return notifications, nil
}

func (d *Doc) MarkNotificationRead(_ context.Context, id models.NotificationID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.notifications[id.String()]; ok {
		n.Read = true
	}
	return nil
}

func (d *Doc) ClearNotifications(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = make(map[string]*models.Notification)
	return nil
}

func (d *Doc) CreateMeeting(_ context.Context, meeting *models.Meeting) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	if meeting.ID.IsZero() {
		meeting.ID = models.NewMeetingID()
	}
	m := *meeting
	d.meetings[m.ID.String()] = &m
	return nil
}

func (d *Doc) ListMeetings(_ context.Context) ([]*models.Meeting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var meetings []*models.Meeting
	for _, m := range d.meetings {
		c := *m
		if m.RemindersSent != nil {
			c.RemindersSent = make(map[string]bool, len(m.RemindersSent))
			for k, v := range m.RemindersSent {
				c.RemindersSent[k] = v
			}
		}
		meetings = append(meetings, &c)
	}
	return meetings, nil
}

func (d *Doc) MarkReminderSent(_ context.Context, id models.MeetingID, tag string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	m, ok := d.meetings[id.String()]
	if !ok {
		return nil
	}
	if m.RemindersSent == nil {
		m.RemindersSent = make(map[string]bool)
	}
	m.RemindersSent[tag] = true
	return nil
}

func (d *Doc) Close(context.Context) error { return nil }

// Meeting returns the stored meeting, for assertions
func (d *Doc) Meeting(id models.MeetingID) *models.Meeting {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meetings[id.String()]
}

// Notification returns the stored notification, for assertions
func (d *Doc) Notification(id string) *models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notifications[id]
}

// NotificationCount returns the number of stored notification records
func (d *Doc) NotificationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notifications)
}

func clone(p *models.Person) *models.Person {
	c := *p
	if p.Leaves != nil {
		c.Leaves = append(models.AbsenceList(nil), p.Leaves...)
	}
	if p.LastSeen != nil {
		t := *p.LastSeen
		c.LastSeen = &t
	}
	return &c
}

// Rel is an in-memory store.RelationalStore
type Rel struct {
	mu      sync.Mutex
	rows    map[string]*models.PersonRow
	subs    map[int]func(store.RowEvent)
	nextSub int

	// Err, when set, is returned by every write operation
	Err error
	// Upserts counts UpsertPersonRow calls
	Upserts int
	// Heartbeats records every Heartbeat timestamp by person id
	Heartbeats map[string][]time.Time
}

var _ store.RelationalStore = (*Rel)(nil)

// NewRel creates an empty in-memory relational store
func NewRel() *Rel {
	return &Rel{
		rows:       make(map[string]*models.PersonRow),
		subs:       make(map[int]func(store.RowEvent)),
		Heartbeats: make(map[string][]time.Time),
	}
}

func (r *Rel) Migrate(context.Context) error { return nil }

// UpsertPersonRow mirrors the real store's conflict behavior: on an
// existing row the last_seen value is preserved.
func (r *Rel) UpsertPersonRow(_ context.Context, row *models.PersonRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Upserts++
	stored := cloneRow(row)
	if old, ok := r.rows[row.ID.String()]; ok {
		stored.LastSeen = old.LastSeen
	}
	r.rows[row.ID.String()] = stored
	return nil
}

func (r *Rel) GetPersonRow(_ context.Context, id models.PersonID) (*models.PersonRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id.String()]
	if !ok {
		return nil, nil
	}
	return cloneRow(row), nil
}

func (r *Rel) ListPersonRows(_ context.Context) ([]*models.PersonRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []*models.PersonRow
	for _, row := range r.rows {
		rows = append(rows, cloneRow(row))
	}
	return rows, nil
}

func (r *Rel) DeletePersonRow(_ context.Context, id models.PersonID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.rows, id.String())
	return nil
}

func (r *Rel) Heartbeat(_ context.Context, id models.PersonID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Heartbeats[id.String()] = append(r.Heartbeats[id.String()], at)
	row, ok := r.rows[id.String()]
	if !ok {
		row = &models.PersonRow{ID: id}
		r.rows[id.String()] = row
	}
	t := at
	row.LastSeen = &t
	return nil
}

func (r *Rel) SubscribeChanges(_ context.Context, onEvent func(store.RowEvent)) (store.UnsubscribeFunc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = onEvent
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, key)
		})
	}, nil
}

// EmitEvent delivers one row event to every subscriber, synchronously
func (r *Rel) EmitEvent(event store.RowEvent) {
	r.mu.Lock()
	subs := make([]func(store.RowEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn(event)
	}
}

func (r *Rel) Close() error { return nil }

// HeartbeatCount returns how many heartbeats the id has received, for
// assertions that race with a running beat loop
func (r *Rel) HeartbeatCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Heartbeats[id])
}

// Row returns the stored row, for assertions
func (r *Rel) Row(id string) *models.PersonRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

// RowCount returns the number of stored rows
func (r *Rel) RowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func cloneRow(row *models.PersonRow) *models.PersonRow {
	c := *row
	if row.Leaves != nil {
		c.Leaves = append(models.AbsenceList(nil), row.Leaves...)
	}
	if row.LastSeen != nil {
		t := *row.LastSeen
		c.LastSeen = &t
	}
	return &c
}

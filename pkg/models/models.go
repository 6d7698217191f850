package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AbsenceKind classifies an absence entry
type AbsenceKind string

const (
	AbsenceKindLeave   AbsenceKind = "leave"
	AbsenceKindAbsence AbsenceKind = "absence"
	AbsenceKindOnline  AbsenceKind = "online"
)

// Session is the half-day qualifier on an absence entry
type Session string

const (
	SessionFull      Session = "full"
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
)

// NotificationKind classifies a notification for UI styling
type NotificationKind string

const (
	NotificationInfo    NotificationKind = "info"
	NotificationSuccess NotificationKind = "success"
	NotificationWarning NotificationKind = "warning"
	NotificationError   NotificationKind = "error"
)

// JSONMap is a flexible key-value map for structured data that adapts to
// each database's native format: PostgreSQL's JSONB and SurrealDB's
// object type. Merge-write patches and change_log payloads travel as
// JSONMap so absent fields stay absent instead of becoming explicit nulls.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// AbsenceEntry is one element of a person's leaves array. Entries are
// append-only. The canonical representation is a date range plus an
// optional time-of-day range and half-day session qualifier; the source
// system's habit of storing full timestamps for some kinds is folded
// into this shape by Normalize.
type AbsenceEntry struct {
	Kind      AbsenceKind `json:"kind"`
	Session   Session     `json:"session,omitempty"`
	StartDate string      `json:"startDate"`
	EndDate   string      `json:"endDate,omitempty"`
	StartTime string      `json:"startTime,omitempty"`
	EndTime   string      `json:"endTime,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// Normalize rewrites legacy boundary values in place: RFC3339 timestamps
// split into a plain date and a time-of-day, and entries with neither a
// session nor times are marked full-day.
func (a *AbsenceEntry) Normalize() {
	a.StartDate, a.StartTime = splitLegacyTimestamp(a.StartDate, a.StartTime)
	a.EndDate, a.EndTime = splitLegacyTimestamp(a.EndDate, a.EndTime)
	if a.Session == "" && a.StartTime == "" && a.EndTime == "" {
		a.Session = SessionFull
	}
}

func splitLegacyTimestamp(date, tod string) (string, string) {
	if date == "" {
		return date, tod
	}
	if _, err := time.Parse(dateLayout, date); err == nil {
		return date, tod
	}
	ts, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return date, tod
	}
	if tod == "" {
		tod = ts.Format(timeLayout)
	}
	return ts.Format(dateLayout), tod
}

// FullDay reports whether the entry blocks whole days rather than a
// session or a clock interval.
func (a AbsenceEntry) FullDay() bool {
	return (a.Session == "" || a.Session == SessionFull) &&
		a.StartTime == "" && a.EndTime == ""
}

// Covers reports whether the entry covers the given instant. Full-day
// entries cover every instant of their date range; session entries cover
// their half of each day; timed entries cover the clock interval.
func (a AbsenceEntry) Covers(now time.Time) bool {
	start, err := time.ParseInLocation(dateLayout, a.StartDate, now.Location())
	if err != nil {
		return false
	}
	end := start
	if a.EndDate != "" {
		if e, err := time.ParseInLocation(dateLayout, a.EndDate, now.Location()); err == nil {
			end = e
		}
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if day.Before(start) || day.After(end) {
		return false
	}
	if a.StartTime != "" || a.EndTime != "" {
		// zero-padded HH:MM compares correctly as strings
		hm := now.Format(timeLayout)
		if a.StartTime != "" && hm < a.StartTime {
			return false
		}
		if a.EndTime != "" && hm >= a.EndTime {
			return false
		}
		return true
	}
	switch a.Session {
	case SessionMorning:
		return now.Hour() < 12
	case SessionAfternoon:
		return now.Hour() >= 12
	}
	return true
}

// AbsenceList is stored relationally as a JSON array, byte-compatible
// with the document store's leaves field.
type AbsenceList []AbsenceEntry

// Value implements the driver.Valuer interface for database storage
func (l AbsenceList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface for database retrieval
func (l *AbsenceList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot scan type %T into AbsenceList", value)
		}
		bytes = []byte(s)
	}
	return json.Unmarshal(bytes, l)
}

// Normalize normalizes every entry in place
func (l AbsenceList) Normalize() {
	for i := range l {
		l[i].Normalize()
	}
}

// Person is the document-store representation of a staff member. The
// struct tags carry the document store's camelCase keys; the relational
// column names live on PersonRow and the two are tied together by
// PersonFields. LastSeen is relational-authoritative and is excluded
// from both sync directions.
type Person struct {
	ID           PersonID    `json:"id,omitempty"`
	Name         string      `json:"name,omitempty"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	BankAcc      string      `json:"bankAcc,omitempty"`
	BankName     string      `json:"bankName,omitempty"`
	IsAdmin      bool        `json:"isAdmin,omitempty"`
	EmployeeCode string      `json:"employeeCode,omitempty"`
	DeviceToken  string      `json:"deviceToken,omitempty"`
	Leaves       AbsenceList `json:"leaves,omitempty"`
	LastSeen     *time.Time  `json:"lastSeen,omitempty"`
}

// PersonRow is the relational projection of a Person. The last_seen
// column is owned by the presence heartbeat and is never written by the
// Change Mirror.
type PersonRow struct {
	ID           PersonID    `gorm:"primaryKey" json:"id"`
	Name         string      `json:"name,omitempty"`
	Email        string      `json:"email,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	BankAcc      string      `gorm:"column:bank_acc" json:"bank_acc,omitempty"`
	BankName     string      `gorm:"column:bank_name" json:"bank_name,omitempty"`
	IsAdmin      bool        `gorm:"column:is_admin" json:"is_admin,omitempty"`
	EmployeeCode string      `gorm:"column:employee_code" json:"employee_code,omitempty"`
	DeviceToken  string      `gorm:"column:device_token" json:"device_token,omitempty"`
	Leaves       AbsenceList `gorm:"type:jsonb" json:"leaves,omitempty"`
	LastSeen     *time.Time  `gorm:"column:last_seen" json:"last_seen,omitempty"`
	UpdatedAt    time.Time   `json:"-"`
}

// TableName returns the table name for the person row model
func (PersonRow) TableName() string { return "people" }

// Notification is a persisted notification record. Deterministic ids
// make the write an idempotent upsert; random ids come from the
// dispatcher.
type Notification struct {
	ID        NotificationID   `json:"id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message,omitempty"`
	Kind      NotificationKind `json:"kind,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Meeting is a schedulable entity watched by the reminder scanner.
// RemindersSent flags are set once per window tag and never reset.
type Meeting struct {
	ID            MeetingID       `json:"id,omitempty"`
	Title         string          `json:"title"`
	Room          string          `json:"room,omitempty"`
	StartsAt      time.Time       `json:"startsAt"`
	RemindersSent map[string]bool `json:"remindersSent,omitempty"`
}

// ReminderSent reports whether the window tag has already fired
func (m *Meeting) ReminderSent(tag string) bool {
	return m.RemindersSent[tag]
}

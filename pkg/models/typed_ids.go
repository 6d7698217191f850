package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
)

// PersonID is a typed ID for people. The underlying value is an opaque
// string rather than a UUID: ids imported from the source system are short
// numeric strings and must survive round-trips through both stores
// unchanged, while freshly created people get UUID strings.
type PersonID struct {
	id string
}

func NewPersonID() PersonID {
	return PersonID{id: uuid.New().String()}
}

func ParsePersonID(s string) (PersonID, error) {
	if s == "" {
		return PersonID{}, fmt.Errorf("invalid person ID: empty")
	}
	return PersonID{id: s}, nil
}

func (p PersonID) String() string { return p.id }
func (p PersonID) IsZero() bool   { return p.id == "" }

func (p PersonID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "people",
		ID:    p.id,
	}
}

func (p PersonID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.id)
}

func (p *PersonID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.id)
}

func (p PersonID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{"people", p.id},
	})
}

func (p *PersonID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "people", &p.id)
}

func (p PersonID) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.id, nil
}

func (p *PersonID) Scan(value any) error {
	return scanStringID(value, &p.id)
}

func (PersonID) GormDataType() string { return "text" }

// MeetingID is a typed ID for meetings
type MeetingID struct {
	id string
}

func NewMeetingID() MeetingID {
	return MeetingID{id: uuid.New().String()}
}

func ParseMeetingID(s string) (MeetingID, error) {
	if s == "" {
		return MeetingID{}, fmt.Errorf("invalid meeting ID: empty")
	}
	return MeetingID{id: s}, nil
}

func (m MeetingID) String() string { return m.id }
func (m MeetingID) IsZero() bool   { return m.id == "" }

func (m MeetingID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "meetings",
		ID:    m.id,
	}
}

func (m MeetingID) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.id)
}

func (m *MeetingID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &m.id)
}

func (m MeetingID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{"meetings", m.id},
	})
}

func (m *MeetingID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "meetings", &m.id)
}

func (m MeetingID) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.id, nil
}

func (m *MeetingID) Scan(value any) error {
	return scanStringID(value, &m.id)
}

func (MeetingID) GormDataType() string { return "text" }

// NotificationID is a typed ID for notifications. Reminder ids are
// deterministic (REMIND-{entity}-{tag}) so concurrent writers collapse
// into a single record; everything else gets a UUID.
type NotificationID struct {
	id string
}

func NewNotificationID() NotificationID {
	return NotificationID{id: uuid.New().String()}
}

func ParseNotificationID(s string) (NotificationID, error) {
	if s == "" {
		return NotificationID{}, fmt.Errorf("invalid notification ID: empty")
	}
	return NotificationID{id: s}, nil
}

func (n NotificationID) String() string { return n.id }
func (n NotificationID) IsZero() bool   { return n.id == "" }

func (n NotificationID) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: "notifications",
		ID:    n.id,
	}
}

func (n NotificationID) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.id)
}

func (n *NotificationID) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &n.id)
}

func (n NotificationID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  8,
		Content: []any{"notifications", n.id},
	})
}

func (n *NotificationID) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, "notifications", &n.id)
}

func (n NotificationID) Value() (driver.Value, error) {
	if n.IsZero() {
		return nil, nil
	}
	return n.id, nil
}

func (n *NotificationID) Scan(value any) error {
	return scanStringID(value, &n.id)
}

func (NotificationID) GormDataType() string { return "text" }

// Helper functions

// scanStringID is a helper for implementing sql.Scanner for PostgreSQL/GORM
func scanStringID(value any, target *string) error {
	if value == nil {
		*target = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*target = v
	case []byte:
		*target = string(v)
	default:
		return fmt.Errorf("cannot scan type %T into ID", value)
	}
	return nil
}

// unmarshalCBORID is a helper for unmarshaling SurrealDB RecordID from CBOR.
// SurrealDB uses CBOR tag 8 to identify RecordID types in its binary
// protocol; the RecordID is encoded as [table_name, id] within the tag.
// A plain string is accepted as well since query results sometimes carry
// the bare id.
func unmarshalCBORID(data []byte, expectedTable string, target *string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	majorType := data[0] >> 5
	if majorType != 6 {
		return cbor.Unmarshal(data, target)
	}

	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal CBOR tag: %w", err)
	}

	if tag.Number != 8 {
		return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
	}

	arr, ok := tag.Content.([]any)
	if !ok || len(arr) != 2 {
		return fmt.Errorf("invalid RecordID format: expected [table, id] array")
	}

	table, ok := arr[0].(string)
	if !ok {
		return fmt.Errorf("invalid RecordID format: table name must be string")
	}

	if table != expectedTable {
		return fmt.Errorf("expected table %s, got %s", expectedTable, table)
	}

	switch id := arr[1].(type) {
	case string:
		*target = id
	case uint64:
		*target = fmt.Sprintf("%d", id)
	case int64:
		*target = fmt.Sprintf("%d", id)
	default:
		return fmt.Errorf("invalid RecordID format: unsupported id type %T", arr[1])
	}
	return nil
}

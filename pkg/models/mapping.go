package models

import (
	"encoding/json"
	"reflect"
)

// FieldMapping ties one document-store field name to its relational
// column. Both sync directions derive their payloads from PersonFields,
// so the rename contract cannot drift between the Change Mirror and the
// Reverse Sync Listener.
type FieldMapping struct {
	DocField string
	Column   string
	// Zero is the field's canonical zero value. The sync payload always
	// carries every mapped field, absent ones as Zero, so a merge patch
	// can express a cleared field; without it a relational edit that
	// empties a column could never propagate back.
	Zero any
	// Heartbeat marks columns owned by the presence heartbeat. They are
	// excluded from both sync directions so a heartbeat write on the
	// relational side never echoes into the document store.
	Heartbeat bool
}

// PersonFields is the bit-exact field-name contract between the two
// stores. The id is the join key and is handled outside the table.
var PersonFields = []FieldMapping{
	{DocField: "name", Column: "name", Zero: ""},
	{DocField: "email", Column: "email", Zero: ""},
	{DocField: "phone", Column: "phone", Zero: ""},
	{DocField: "bankAcc", Column: "bank_acc", Zero: ""},
	{DocField: "bankName", Column: "bank_name", Zero: ""},
	{DocField: "isAdmin", Column: "is_admin", Zero: false},
	{DocField: "employeeCode", Column: "employee_code", Zero: ""},
	{DocField: "deviceToken", Column: "device_token", Zero: ""},
	{DocField: "leaves", Column: "leaves", Zero: []any{}},
	{DocField: "lastSeen", Column: "last_seen", Heartbeat: true},
}

// MirrorColumns returns the relational columns the Change Mirror may
// assign on upsert: the mapped non-heartbeat columns plus updated_at.
// Omitting last_seen here is what keeps the mirror from clobbering a
// concurrent heartbeat.
func MirrorColumns() []string {
	cols := make([]string, 0, len(PersonFields)+1)
	for _, f := range PersonFields {
		if f.Heartbeat {
			continue
		}
		cols = append(cols, f.Column)
	}
	return append(cols, "updated_at")
}

// DocToRowPayload renames document fields to relational columns per
// PersonFields. Keys outside the table and heartbeat fields are dropped,
// as are explicit nulls, so the payload that reaches the relational
// store contains only set columns the mirror owns. The id passes
// through unchanged.
func DocToRowPayload(doc JSONMap) JSONMap {
	out := JSONMap{}
	if id, ok := doc["id"]; ok {
		out["id"] = id
	}
	for _, f := range PersonFields {
		if f.Heartbeat {
			continue
		}
		if v, ok := doc[f.DocField]; ok && v != nil {
			out[f.Column] = v
		}
	}
	return out
}

// RowToDocPayload is the inverse rename. Heartbeat columns never map
// back, so a last_seen-only update yields a payload identical to the
// one before the heartbeat.
func RowToDocPayload(row JSONMap) JSONMap {
	out := JSONMap{}
	if id, ok := row["id"]; ok {
		out["id"] = id
	}
	for _, f := range PersonFields {
		if f.Heartbeat {
			continue
		}
		if v, ok := row[f.Column]; ok && v != nil {
			out[f.DocField] = v
		}
	}
	return out
}

// PersonToRow builds the relational row for the outbound mirror. The
// conversion runs through a canonical JSON round-trip: renames come from
// PersonFields and absent optional fields stay absent instead of
// arriving at the store as explicit nulls.
func PersonToRow(p *Person) (*PersonRow, error) {
	doc, err := toJSONMap(p)
	if err != nil {
		return nil, err
	}
	var row PersonRow
	if err := fromJSONMap(DocToRowPayload(doc), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// RowToPerson maps a relational row back to document field names.
// last_seen does not survive the trip.
func RowToPerson(r *PersonRow) (*Person, error) {
	row, err := toJSONMap(r)
	if err != nil {
		return nil, err
	}
	var p Person
	if err := fromJSONMap(RowToDocPayload(row), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SyncPayload is the canonical comparable form of a person: document
// field names, id and heartbeat fields stripped, produced by a JSON
// round-trip. Every mapped field is present, absent or null ones as
// their Zero, so the payload can express a cleared field and zero
// compares equal to absent. It doubles as the merge-patch body for
// document-store writes and as the operand of the loop-suppression
// equality check.
func SyncPayload(p *Person) (JSONMap, error) {
	m, err := toJSONMap(p)
	if err != nil {
		return nil, err
	}
	out := JSONMap{}
	for _, f := range PersonFields {
		if f.Heartbeat {
			continue
		}
		if v, ok := m[f.DocField]; ok && v != nil {
			out[f.DocField] = v
		} else {
			out[f.DocField] = f.Zero
		}
	}
	return out, nil
}

// EqualSyncPayload reports whether two people carry the same mirrored
// content. Both sides pass through the canonical round-trip, so zero
// and absent optional fields compare equal and heartbeat fields never
// participate.
func EqualSyncPayload(a, b *Person) (bool, error) {
	am, err := SyncPayload(a)
	if err != nil {
		return false, err
	}
	bm, err := SyncPayload(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(am, bm), nil
}

func toJSONMap(v any) (JSONMap, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromJSONMap(m JSONMap, target any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

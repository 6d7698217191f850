package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/staffops/pkg/models"
)

func TestDocToRowPayload(t *testing.T) {
	t.Run("RenamesMappedFields", func(t *testing.T) {
		doc := models.JSONMap{
			"id":       "5",
			"bankAcc":  "123",
			"bankName": "MB",
		}

		row := models.DocToRowPayload(doc)

		assert.Equal(t, models.JSONMap{
			"id":        "5",
			"bank_acc":  "123",
			"bank_name": "MB",
		}, row, "document field names should rename to relational columns")
	})

	t.Run("DropsHeartbeatFields", func(t *testing.T) {
		doc := models.JSONMap{
			"id":       "5",
			"name":     "Alice",
			"lastSeen": "2026-01-10T09:00:00Z",
		}

		row := models.DocToRowPayload(doc)

		assert.NotContains(t, row, "last_seen", "heartbeat fields should never cross to the relational side")
		assert.Equal(t, "Alice", row["name"])
	})

	t.Run("DropsUnknownKeysAndNulls", func(t *testing.T) {
		doc := models.JSONMap{
			"id":      "5",
			"name":    "Alice",
			"phone":   nil,
			"unknown": "x",
		}

		row := models.DocToRowPayload(doc)

		assert.NotContains(t, row, "phone", "explicit nulls should stay absent")
		assert.NotContains(t, row, "unknown")
	})
}

func TestRowToDocPayload(t *testing.T) {
	t.Run("InverseRename", func(t *testing.T) {
		row := models.JSONMap{
			"id":            "5",
			"bank_acc":      "123",
			"employee_code": "E01",
		}

		doc := models.RowToDocPayload(row)

		assert.Equal(t, models.JSONMap{
			"id":           "5",
			"bankAcc":      "123",
			"employeeCode": "E01",
		}, doc)
	})

	t.Run("HeartbeatColumnNeverMapsBack", func(t *testing.T) {
		row := models.JSONMap{
			"id":        "5",
			"name":      "Alice",
			"last_seen": "2026-01-10T09:00:00Z",
		}

		doc := models.RowToDocPayload(row)

		assert.NotContains(t, doc, "lastSeen")
		assert.NotContains(t, doc, "last_seen")
	})
}

func TestPersonToRow(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	lastSeen := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	person := &models.Person{
		ID:       id,
		Name:     "Alice",
		BankAcc:  "123",
		BankName: "MB",
		LastSeen: &lastSeen,
	}

	row, err := models.PersonToRow(person)
	require.NoError(t, err)

	assert.Equal(t, "5", row.ID.String(), "id is the join key and must survive unchanged")
	assert.Equal(t, "Alice", row.Name)
	assert.Equal(t, "123", row.BankAcc)
	assert.Equal(t, "MB", row.BankName)
	assert.Nil(t, row.LastSeen, "lastSeen is relational-authoritative and must not be mirrored")
}

func TestRowToPerson(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	lastSeen := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	row := &models.PersonRow{
		ID:       id,
		Name:     "Alice",
		BankAcc:  "123",
		LastSeen: &lastSeen,
	}

	person, err := models.RowToPerson(row)
	require.NoError(t, err)

	assert.Equal(t, "5", person.ID.String())
	assert.Equal(t, "123", person.BankAcc)
	assert.Nil(t, person.LastSeen, "last_seen must not map back to the document side")
}

func TestRoundTripAllMappedFields(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	person := &models.Person{
		ID:           id,
		Name:         "Alice",
		Email:        "alice@example.com",
		Phone:        "0123",
		BankAcc:      "123",
		BankName:     "MB",
		IsAdmin:      true,
		EmployeeCode: "E01",
		DeviceToken:  "tok",
		Leaves: models.AbsenceList{
			{Kind: models.AbsenceKindLeave, Session: models.SessionFull, StartDate: "2026-01-10"},
		},
	}

	row, err := models.PersonToRow(person)
	require.NoError(t, err)
	back, err := models.RowToPerson(row)
	require.NoError(t, err)

	assert.Equal(t, person, back, "a full round trip through the rename table should be lossless")
}

func TestEqualSyncPayload(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	t.Run("AbsentEqualsZero", func(t *testing.T) {
		a := &models.Person{ID: id, Name: "Alice", Phone: ""}
		b := &models.Person{ID: id, Name: "Alice"}

		equal, err := models.EqualSyncPayload(a, b)
		require.NoError(t, err)
		assert.True(t, equal, "a zero optional field should compare equal to an absent one")
	})

	t.Run("LastSeenIgnored", func(t *testing.T) {
		seen := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
		a := &models.Person{ID: id, Name: "Alice", LastSeen: &seen}
		b := &models.Person{ID: id, Name: "Alice"}

		equal, err := models.EqualSyncPayload(a, b)
		require.NoError(t, err)
		assert.True(t, equal, "heartbeat fields must not participate in the equality check")
	})

	t.Run("ContentDifferenceDetected", func(t *testing.T) {
		a := &models.Person{ID: id, Name: "Alice"}
		b := &models.Person{ID: id, Name: "Bob"}

		equal, err := models.EqualSyncPayload(a, b)
		require.NoError(t, err)
		assert.False(t, equal)
	})
}

func TestSyncPayloadCarriesClearedFields(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	payload, err := models.SyncPayload(&models.Person{ID: id, Name: "Alice"})
	require.NoError(t, err)

	assert.Equal(t, "", payload["phone"], "an unset field must appear as its zero so a merge patch can clear it")
	assert.Equal(t, false, payload["isAdmin"])
	assert.Equal(t, []any{}, payload["leaves"])
}

func TestSyncPayloadExcludesID(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	payload, err := models.SyncPayload(&models.Person{ID: id, Name: "Alice"})
	require.NoError(t, err)

	assert.NotContains(t, payload, "id", "the merge patch must not rewrite the record id")
	assert.Equal(t, "Alice", payload["name"])
}

func TestMirrorColumns(t *testing.T) {
	cols := models.MirrorColumns()

	assert.NotContains(t, cols, "last_seen", "the mirror upsert must not assign the heartbeat column")
	assert.Contains(t, cols, "bank_acc")
	assert.Contains(t, cols, "updated_at")
}

package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

func TestRowEventFromLog(t *testing.T) {
	t.Run("UpdateCarriesBothImages", func(t *testing.T) {
		entry := &models.ChangeLog{
			ID:         7,
			EntityType: personEntityType,
			EntityID:   "5",
			Op:         models.ChangeOpUpdate,
			ChangedAt:  time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC),
			NewPayload: models.JSONMap{"id": "5", "name": "Alice", "bank_acc": "123"},
			OldPayload: models.JSONMap{"id": "5", "name": "Alice"},
		}

		event, err := rowEventFromLog(entry)
		require.NoError(t, err)

		assert.Equal(t, store.RowUpdate, event.Kind)
		require.NotNil(t, event.New)
		assert.Equal(t, "5", event.New.ID.String())
		assert.Equal(t, "123", event.New.BankAcc)
		require.NotNil(t, event.Old)
		assert.Empty(t, event.Old.BankAcc)
	})

	t.Run("InsertHasNoPreImage", func(t *testing.T) {
		entry := &models.ChangeLog{
			Op:         models.ChangeOpInsert,
			NewPayload: models.JSONMap{"id": "5", "name": "Alice"},
		}

		event, err := rowEventFromLog(entry)
		require.NoError(t, err)

		assert.Equal(t, store.RowInsert, event.Kind)
		assert.Nil(t, event.Old)
	})

	t.Run("DeleteCarriesPreImageOnly", func(t *testing.T) {
		entry := &models.ChangeLog{
			Op:         models.ChangeOpDelete,
			OldPayload: models.JSONMap{"id": "5", "name": "Alice"},
		}

		event, err := rowEventFromLog(entry)
		require.NoError(t, err)

		assert.Equal(t, store.RowDelete, event.Kind)
		assert.Nil(t, event.New)
		require.NotNil(t, event.Old)
		assert.Equal(t, "5", event.Old.ID.String())
	})

	t.Run("LastSeenSurvivesThePayload", func(t *testing.T) {
		entry := &models.ChangeLog{
			Op: models.ChangeOpUpdate,
			NewPayload: models.JSONMap{
				"id":        "5",
				"name":      "Alice",
				"last_seen": "2026-01-10T10:00:00Z",
			},
		}

		event, err := rowEventFromLog(entry)
		require.NoError(t, err)

		require.NotNil(t, event.New.LastSeen)
		assert.Equal(t, time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC), event.New.LastSeen.UTC())
	})

	t.Run("UnknownOpRejected", func(t *testing.T) {
		entry := &models.ChangeLog{Op: models.ChangeOp("TRUNCATE")}

		_, err := rowEventFromLog(entry)
		assert.Error(t, err)
	})
}

func TestRowPayloadRoundTrip(t *testing.T) {
	id, err := models.ParsePersonID("5")
	require.NoError(t, err)

	seen := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	row := &models.PersonRow{
		ID:       id,
		Name:     "Alice",
		BankAcc:  "123",
		LastSeen: &seen,
		Leaves: models.AbsenceList{
			{Kind: models.AbsenceKindLeave, Session: models.SessionFull, StartDate: "2026-01-10"},
		},
	}

	payload, err := rowPayload(row)
	require.NoError(t, err)
	back, err := payloadRow(payload)
	require.NoError(t, err)

	assert.Equal(t, row.ID, back.ID)
	assert.Equal(t, row.BankAcc, back.BankAcc)
	assert.Equal(t, row.Leaves, back.Leaves)
	require.NotNil(t, back.LastSeen)
	assert.True(t, row.LastSeen.Equal(*back.LastSeen))
}

// Package postgres implements the relational side of the sync pair using
// GORM. Every person-table write appends a change_log row in the same
// transaction, which is what the feed poller in feed.go tails; see the
// ChangeLog model for why the log carries full pre- and post-images.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

const personEntityType = "person"

// Store implements store.RelationalStore using PostgreSQL with GORM.
type Store struct {
	db           *gorm.DB
	logger       zerolog.Logger
	pollInterval time.Duration
}

var _ store.RelationalStore = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithPollInterval overrides the change-feed poll interval, mainly so
// tests do not wait a full second per event.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// New creates a new PostgreSQL store
func New(dsn string, logger zerolog.Logger, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{
		db:           db,
		logger:       logger.With().Str("component", "postgres").Logger(),
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Migrate creates or updates the schema. Safe to run repeatedly;
// AutoMigrate only adds missing schema elements.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.PersonRow{},
		&models.ChangeLog{},
	)
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertPersonRow writes the mirrored columns keyed by id. On conflict
// only MirrorColumns are assigned, so a concurrent heartbeat's last_seen
// is never clobbered. The change_log row is appended in the same
// transaction with the pre- and post-image.
func (s *Store) UpsertPersonRow(ctx context.Context, row *models.PersonRow) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.PersonRow
		op := models.ChangeOpInsert
		var oldPayload models.JSONMap
		err := tx.First(&old, "id = ?", row.ID.String()).Error
		switch {
		case err == nil:
			op = models.ChangeOpUpdate
			if oldPayload, err = rowPayload(&old); err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(models.MirrorColumns()),
		}).Create(row).Error; err != nil {
			return err
		}

		// Re-read for the post-image so the log reflects what actually
		// landed, preserved last_seen included.
		var fresh models.PersonRow
		if err := tx.First(&fresh, "id = ?", row.ID.String()).Error; err != nil {
			return err
		}
		newPayload, err := rowPayload(&fresh)
		if err != nil {
			return err
		}
		return s.recordChange(tx, row.ID.String(), op, newPayload, oldPayload)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert person row: %w", err)
	}
	return nil
}

func (s *Store) GetPersonRow(ctx context.Context, id models.PersonID) (*models.PersonRow, error) {
	var row models.PersonRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get person row: %w", err)
	}
	return &row, nil
}

func (s *Store) ListPersonRows(ctx context.Context) ([]*models.PersonRow, error) {
	var rows []*models.PersonRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list person rows: %w", err)
	}
	return rows, nil
}

func (s *Store) DeletePersonRow(ctx context.Context, id models.PersonID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.PersonRow
		if err := tx.First(&old, "id = ?", id.String()).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		oldPayload, err := rowPayload(&old)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.PersonRow{}, "id = ?", id.String()).Error; err != nil {
			return err
		}
		return s.recordChange(tx, id.String(), models.ChangeOpDelete, nil, oldPayload)
	})
	if err != nil {
		return fmt.Errorf("failed to delete person row: %w", err)
	}
	return nil
}

// Heartbeat writes only the last_seen column, creating a minimal row if
// the mirror has not delivered the person yet. UpdateColumn skips the
// updated_at hook so a heartbeat never looks like a content change.
func (s *Store) Heartbeat(ctx context.Context, id models.PersonID, at time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old models.PersonRow
		err := tx.First(&old, "id = ?", id.String()).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := &models.PersonRow{ID: id, LastSeen: &at}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			newPayload, err := rowPayload(row)
			if err != nil {
				return err
			}
			return s.recordChange(tx, id.String(), models.ChangeOpInsert, newPayload, nil)
		}
		if err != nil {
			return err
		}

		oldPayload, err := rowPayload(&old)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.PersonRow{}).Where("id = ?", id.String()).
			UpdateColumn("last_seen", at).Error; err != nil {
			return err
		}
		updated := old
		updated.LastSeen = &at
		newPayload, err := rowPayload(&updated)
		if err != nil {
			return err
		}
		return s.recordChange(tx, id.String(), models.ChangeOpUpdate, newPayload, oldPayload)
	})
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// recordChange appends a change_log row. Must be called within the same
// transaction as the write it describes.
func (s *Store) recordChange(tx *gorm.DB, entityID string, op models.ChangeOp, newPayload, oldPayload models.JSONMap) error {
	change := &models.ChangeLog{
		EntityType: personEntityType,
		EntityID:   entityID,
		Op:         op,
		ChangedAt:  time.Now(),
		NewPayload: newPayload,
		OldPayload: oldPayload,
	}
	return tx.Create(change).Error
}

// rowPayload converts a row to its JSON image for the change log
func rowPayload(row *models.PersonRow) (models.JSONMap, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal person row: %w", err)
	}
	var payload models.JSONMap
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal person row payload: %w", err)
	}
	return payload, nil
}

// payloadRow converts a change-log JSON image back into a row
func payloadRow(payload models.JSONMap) (*models.PersonRow, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change payload: %w", err)
	}
	var row models.PersonRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change payload: %w", err)
	}
	return &row, nil
}

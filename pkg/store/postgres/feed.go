package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

const feedBatchSize = 200

// SubscribeChanges tails the change_log table by cursor and invokes
// onEvent for every person change, in log order, from a dedicated
// goroutine. The cursor starts at the current tail so only changes made
// after subscribing are observed; catch-up after downtime is the sync
// command's job, not the feed's.
func (s *Store) SubscribeChanges(ctx context.Context, onEvent func(store.RowEvent)) (store.UnsubscribeFunc, error) {
	cursor, err := s.changeLogTail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read change log tail: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
			}
			cursor = s.drainChanges(ctx, cursor, onEvent)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}, nil
}

func (s *Store) changeLogTail(ctx context.Context) (uint64, error) {
	var last models.ChangeLog
	err := s.db.WithContext(ctx).Order("id DESC").First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return last.ID, nil
}

// drainChanges emits everything past the cursor and returns the new
// cursor. Poll errors keep the old cursor so nothing is skipped; entries
// that cannot be decoded are logged and dropped.
func (s *Store) drainChanges(ctx context.Context, cursor uint64, onEvent func(store.RowEvent)) uint64 {
	for {
		var entries []models.ChangeLog
		err := s.db.WithContext(ctx).
			Where("id > ? AND entity_type = ?", cursor, personEntityType).
			Order("id ASC").
			Limit(feedBatchSize).
			Find(&entries).Error
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to poll change log")
			return cursor
		}
		for i := range entries {
			cursor = entries[i].ID
			event, err := rowEventFromLog(&entries[i])
			if err != nil {
				s.logger.Warn().Err(err).Uint64("change_id", entries[i].ID).
					Msg("dropping undecodable change log entry")
				continue
			}
			onEvent(*event)
		}
		if len(entries) < feedBatchSize {
			return cursor
		}
	}
}

func rowEventFromLog(entry *models.ChangeLog) (*store.RowEvent, error) {
	newRow, err := payloadRow(entry.NewPayload)
	if err != nil {
		return nil, err
	}
	oldRow, err := payloadRow(entry.OldPayload)
	if err != nil {
		return nil, err
	}

	var kind store.RowEventKind
	switch entry.Op {
	case models.ChangeOpInsert:
		kind = store.RowInsert
	case models.ChangeOpUpdate:
		kind = store.RowUpdate
	case models.ChangeOpDelete:
		kind = store.RowDelete
	default:
		return nil, fmt.Errorf("unknown change operation %q", entry.Op)
	}
	return &store.RowEvent{Kind: kind, New: newRow, Old: oldRow}, nil
}

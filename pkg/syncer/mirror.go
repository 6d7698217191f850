package syncer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

// Mirror propagates document-store person changes into the relational
// store. Every failure is logged and swallowed: a bad event must not
// block the rest of the batch, and the next change for the same id will
// converge the row anyway.
type Mirror struct {
	rel      store.RelationalStore
	snapshot *Snapshot
	logger   zerolog.Logger
}

// NewMirror creates a mirror writing to rel and tracking state in snapshot
func NewMirror(rel store.RelationalStore, snapshot *Snapshot, logger zerolog.Logger) *Mirror {
	return &Mirror{
		rel:      rel,
		snapshot: snapshot,
		logger:   logger.With().Str("component", "mirror").Logger(),
	}
}

// Apply processes one change event. Added and modified update the
// snapshot first, then upsert the mapped row; the upsert assigns only
// the mirrored columns so last_seen survives. Removed deletes the row
// and drops the snapshot entry.
func (m *Mirror) Apply(ctx context.Context, change store.PersonChange) {
	if change.Person == nil || change.Person.ID.IsZero() {
		m.logger.Warn().Str("kind", string(change.Kind)).Msg("dropping change without person id")
		return
	}
	id := change.Person.ID

	switch change.Kind {
	case store.ChangeAdded, store.ChangeModified:
		m.snapshot.Put(change.Person)
		row, err := models.PersonToRow(change.Person)
		if err != nil {
			m.logger.Warn().Err(err).Str("person", id.String()).Msg("failed to map person to row")
			return
		}
		if err := m.rel.UpsertPersonRow(ctx, row); err != nil {
			m.logger.Warn().Err(err).Str("person", id.String()).Msg("failed to mirror person")
			return
		}
	case store.ChangeRemoved:
		m.snapshot.Delete(id)
		if err := m.rel.DeletePersonRow(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("person", id.String()).Msg("failed to delete mirrored row")
			return
		}
	default:
		m.logger.Warn().Str("kind", string(change.Kind)).Msg("dropping change of unknown kind")
	}
}

package syncer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

// ReverseSyncer propagates relational row events back into the document
// store. Its equality check against the Snapshot is the only thing
// standing between the two mirrors and an infinite write loop: the
// outbound mirror's relational write comes straight back through the
// change feed, maps to a person deep-equal to the snapshot entry, and
// dies here.
type ReverseSyncer struct {
	doc      store.DocumentStore
	snapshot *Snapshot
	logger   zerolog.Logger
}

// NewReverseSyncer creates a reverse syncer writing to doc
func NewReverseSyncer(doc store.DocumentStore, snapshot *Snapshot, logger zerolog.Logger) *ReverseSyncer {
	return &ReverseSyncer{
		doc:      doc,
		snapshot: snapshot,
		logger:   logger.With().Str("component", "reverse-sync").Logger(),
	}
}

// Apply processes one row event. Inserts and updates map the row back to
// document field names (last_seen never maps back, so a heartbeat-only
// update compares equal and is suppressed) and merge-write only when the
// content differs from the snapshot or the id has never been seen.
// Deletes are propagated unconditionally. Failures are logged and
// swallowed.
func (r *ReverseSyncer) Apply(ctx context.Context, event store.RowEvent) {
	switch event.Kind {
	case store.RowInsert, store.RowUpdate:
		if event.New == nil {
			return
		}
		person, err := models.RowToPerson(event.New)
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to map row to person")
			return
		}
		if person.ID.IsZero() {
			return
		}
		if known, ok := r.snapshot.Get(person.ID); ok {
			equal, err := models.EqualSyncPayload(known, person)
			if err != nil {
				r.logger.Warn().Err(err).Str("person", person.ID.String()).
					Msg("failed to compare sync payloads")
				return
			}
			if equal {
				return
			}
		}
		patch, err := models.SyncPayload(person)
		if err != nil {
			r.logger.Warn().Err(err).Str("person", person.ID.String()).
				Msg("failed to build merge patch")
			return
		}
		if err := r.doc.MergePerson(ctx, person.ID, patch); err != nil {
			r.logger.Warn().Err(err).Str("person", person.ID.String()).
				Msg("failed to write person back to document store")
			return
		}
	case store.RowDelete:
		row := event.Old
		if row == nil {
			row = event.New
		}
		if row == nil || row.ID.IsZero() {
			return
		}
		if err := r.doc.DeletePerson(ctx, row.ID); err != nil {
			r.logger.Warn().Err(err).Str("person", row.ID.String()).
				Msg("failed to delete person from document store")
			return
		}
	default:
		r.logger.Warn().Str("kind", string(event.Kind)).Msg("dropping row event of unknown kind")
	}
}

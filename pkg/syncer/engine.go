package syncer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/store"
)

// Engine owns the two subscriptions that glue the stores together: the
// document live feed into the Mirror and the relational change feed into
// the ReverseSyncer, sharing one Snapshot. No ordering is guaranteed
// between the two feeds; the equality check absorbs the echo race.
type Engine struct {
	doc      store.DocumentStore
	rel      store.RelationalStore
	snapshot *Snapshot
	mirror   *Mirror
	reverse  *ReverseSyncer
	logger   zerolog.Logger

	unsubDoc store.UnsubscribeFunc
	unsubRel store.UnsubscribeFunc
}

// NewEngine wires a mirror and a reverse syncer over a fresh snapshot
func NewEngine(doc store.DocumentStore, rel store.RelationalStore, logger zerolog.Logger) *Engine {
	snapshot := NewSnapshot()
	return &Engine{
		doc:      doc,
		rel:      rel,
		snapshot: snapshot,
		mirror:   NewMirror(rel, snapshot, logger),
		reverse:  NewReverseSyncer(doc, snapshot, logger),
		logger:   logger.With().Str("component", "sync-engine").Logger(),
	}
}

// Start subscribes to both feeds. The subscriptions live until Stop or
// context cancellation; in-flight writes are never cancelled, they
// complete or fail on their own.
func (e *Engine) Start(ctx context.Context) error {
	unsubDoc, err := e.doc.SubscribePeople(ctx, func(change store.PersonChange) {
		e.mirror.Apply(ctx, change)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to document changes: %w", err)
	}
	e.unsubDoc = unsubDoc

	// The live query only delivers changes made after it started, so the
	// snapshot is primed from a full listing before the relational feed
	// opens. Without this every person's first relational event after a
	// restart would hit the unseen-id branch and echo a merge-write.
	people, err := e.doc.ListPeople(ctx)
	if err != nil {
		e.unsubDoc()
		return fmt.Errorf("failed to prime sync snapshot: %w", err)
	}
	for _, person := range people {
		e.snapshot.Put(person)
	}

	unsubRel, err := e.rel.SubscribeChanges(ctx, func(event store.RowEvent) {
		e.reverse.Apply(ctx, event)
	})
	if err != nil {
		e.unsubDoc()
		return fmt.Errorf("failed to subscribe to relational changes: %w", err)
	}
	e.unsubRel = unsubRel

	e.logger.Info().Int("people", len(people)).Msg("sync engine started")
	return nil
}

// Stop tears down both subscriptions
func (e *Engine) Stop() {
	if e.unsubDoc != nil {
		e.unsubDoc()
	}
	if e.unsubRel != nil {
		e.unsubRel()
	}
	e.logger.Info().Msg("sync engine stopped")
}

// Reconcile is the one-shot catch-up for recovery after downtime: every
// document-store person is replayed through the mirror, so rows converge
// without waiting for live events. Heartbeat columns stay untouched.
func (e *Engine) Reconcile(ctx context.Context) error {
	people, err := e.doc.ListPeople(ctx)
	if err != nil {
		return fmt.Errorf("failed to list people for reconciliation: %w", err)
	}
	for _, person := range people {
		e.mirror.Apply(ctx, store.PersonChange{Kind: store.ChangeAdded, Person: person})
	}
	e.logger.Info().Int("people", len(people)).Msg("reconciliation complete")
	return nil
}

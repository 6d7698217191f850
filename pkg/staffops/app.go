package staffops

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/notify"
	"github.com/example/staffops/pkg/store"
	"github.com/example/staffops/pkg/store/postgres"
	"github.com/example/staffops/pkg/store/surreal"
	"github.com/example/staffops/pkg/syncer"
)

// App holds the application state: both stores, the sync engine and the
// notification fan-out shared by the HTTP handlers and the background loops.
type App struct {
	doc        store.DocumentStore
	rel        store.RelationalStore
	engine     *syncer.Engine
	toasts     *notify.ToastCenter
	dispatcher *notify.Dispatcher
	config     *Config
	logger     zerolog.Logger

	// saveTimeout bounds a user-initiated save before the handler
	// answers 202 and lets the write finish in the background
	saveTimeout time.Duration
}

// New connects to both stores and wires the sync engine and dispatcher.
func New(ctx context.Context, config *Config, logger zerolog.Logger) (*App, error) {
	doc, err := surreal.New(ctx,
		config.SurrealDBURL,
		config.SurrealDBNS,
		config.SurrealDBDB,
		config.SurrealDBUser,
		config.SurrealDBPass,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}
	logger.Info().Str("url", config.SurrealDBURL).Msg("connected to SurrealDB")

	rel, err := postgres.New(config.PostgresDSN, logger)
	if err != nil {
		_ = doc.Close(ctx)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info().Msg("connected to PostgreSQL")

	toasts := notify.NewToastCenter()

	return &App{
		doc:         doc,
		rel:         rel,
		engine:      syncer.NewEngine(doc, rel, logger),
		toasts:      toasts,
		dispatcher:  notify.NewDispatcher(doc, toasts, logger),
		config:      config,
		logger:      logger,
		saveTimeout: saveTimeout,
	}, nil
}

// Close releases both store connections.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if err := a.doc.Close(ctx); err != nil {
		firstErr = err
	}
	if err := a.rel.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Migrate creates or updates the relational schema.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if err := a.rel.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate relational schema: %w", err)
	}
	a.logger.Info().Msg("relational schema migrated")
	return nil
}

// Sync performs a one-shot catch-up reconciliation: every document-store
// person is replayed through the mirror so the relational side converges
// after the change feed has been down.
func (a *App) Sync(ctx context.Context, cmd *SyncCommand) error {
	if err := a.engine.Reconcile(ctx); err != nil {
		return fmt.Errorf("failed to reconcile stores: %w", err)
	}
	a.logger.Info().Msg("catch-up reconciliation complete")
	return nil
}

package staffops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/presence"
	"github.com/example/staffops/pkg/reminder"
)

// Run starts the HTTP server together with the background loops: the
// bidirectional sync engine, the presence heartbeat (when a person id
// is configured) and the reminder scanner. It blocks until the context
// is cancelled or a fatal server error occurs; on cancellation active
// requests get up to 5 seconds to complete.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}
	defer a.engine.Stop()

	if a.config.PersonID != "" {
		personID, err := models.ParsePersonID(a.config.PersonID)
		if err != nil {
			return fmt.Errorf("invalid person id %q: %w", a.config.PersonID, err)
		}
		heartbeat := presence.NewHeartbeat(a.rel, personID, a.logger)
		go heartbeat.Run(ctx)
	}

	scanner := reminder.NewScanner(a.doc, a.dispatcher, a.logger)
	go scanner.Run(ctx)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	api.HandleFunc("/people", a.handleCreatePerson).Methods("POST")
	api.HandleFunc("/people", a.handleListPeople).Methods("GET")
	api.HandleFunc("/people/{id}", a.handleGetPerson).Methods("GET")
	api.HandleFunc("/people/{id}", a.handleUpdatePerson).Methods("PUT")
	api.HandleFunc("/people/{id}", a.handleDeletePerson).Methods("DELETE")
	api.HandleFunc("/people/{id}/absences", a.handleAddAbsence).Methods("POST")
	api.HandleFunc("/people/{id}/device", a.handleSetDeviceToken).Methods("PUT")

	api.HandleFunc("/presence", a.handlePresence).Methods("GET")

	api.HandleFunc("/notifications", a.handleDispatchNotification).Methods("POST")
	api.HandleFunc("/notifications", a.handleListNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}/read", a.handleMarkNotificationRead).Methods("PUT")
	api.HandleFunc("/notifications", a.handleClearNotifications).Methods("DELETE")

	api.HandleFunc("/meetings", a.handleCreateMeeting).Methods("POST")
	api.HandleFunc("/meetings", a.handleListMeetings).Methods("GET")

	api.HandleFunc("/toasts", a.handleToastStream).Methods("GET")

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.logger.Info().Str("addr", addr).Msg("starting staffops server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

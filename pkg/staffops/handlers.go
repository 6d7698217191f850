package staffops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/presence"
)

// saveTimeout bounds a user-initiated save before the handler answers
// 202 and lets the write finish in the background.
const saveTimeout = 3 * time.Second

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *App) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var person models.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if person.ID.IsZero() {
		person.ID = models.NewPersonID()
	}
	person.Leaves.Normalize()

	if err := a.doc.CreatePerson(r.Context(), &person); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, person)
}

func (a *App) handleListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := a.doc.ListPeople(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, people)
}

func (a *App) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePersonID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid person ID")
		return
	}

	person, err := a.doc.GetPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, "Person not found")
		return
	}
	respondJSON(w, http.StatusOK, person)
}

// handleUpdatePerson saves the person with a short deadline. When the
// write is still in flight at the deadline it keeps running on a
// detached context and the client gets 202 instead of an error, so a
// slow network never looks like a lost save.
func (a *App) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePersonID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid person ID")
		return
	}

	var person models.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	person.ID = id
	person.Leaves.Normalize()

	patch, err := models.SyncPayload(&person)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make(chan error, 1)
	detached := context.WithoutCancel(r.Context())
	go func() {
		result <- a.doc.MergePerson(detached, id, patch)
	}()

	select {
	case err := <-result:
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, person)
	case <-time.After(a.saveTimeout):
		go func() {
			if err := <-result; err != nil {
				a.logger.Warn().Err(err).Str("person_id", id.String()).
					Msg("background save failed")
			}
		}()
		respondJSON(w, http.StatusAccepted, map[string]string{
			"status": "slow network, continuing in background",
		})
	}
}

func (a *App) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePersonID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid person ID")
		return
	}

	if err := a.doc.DeletePerson(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleAddAbsence appends one absence entry to the person's list.
// Entries are append-only; there is no removal endpoint.
func (a *App) handleAddAbsence(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePersonID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid person ID")
		return
	}

	var entry models.AbsenceEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	entry.Normalize()

	person, err := a.doc.GetPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if person == nil {
		respondError(w, http.StatusNotFound, "Person not found")
		return
	}

	leaves := append(person.Leaves, entry)
	patch := models.JSONMap{"leaves": leaves}
	if err := a.doc.MergePerson(r.Context(), id, patch); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, leaves)
}

func (a *App) handleSetDeviceToken(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePersonID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid person ID")
		return
	}

	var payload struct {
		DeviceToken string `json:"deviceToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.DeviceToken == "" {
		respondError(w, http.StatusBadRequest, "Device token required")
		return
	}

	patch := models.JSONMap{"deviceToken": payload.DeviceToken}
	if err := a.doc.MergePerson(r.Context(), id, patch); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deviceToken": payload.DeviceToken})
}

// PresenceEntry is one person's resolved status in the presence listing.
type PresenceEntry struct {
	ID       models.PersonID `json:"id"`
	Name     string          `json:"name"`
	Status   presence.Status `json:"status"`
	LastSeen *time.Time      `json:"lastSeen,omitempty"`
}

// handlePresence resolves every person's status from the relational
// mirror, where the heartbeat column lives.
func (a *App) handlePresence(w http.ResponseWriter, r *http.Request) {
	rows, err := a.rel.ListPersonRows(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	entries := make([]PresenceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, PresenceEntry{
			ID:       row.ID,
			Name:     row.Name,
			Status:   presence.Resolve(row.Leaves, row.LastSeen, now),
			LastSeen: row.LastSeen,
		})
	}
	respondJSON(w, http.StatusOK, entries)
}

func (a *App) handleDispatchNotification(w http.ResponseWriter, r *http.Request) {
	var notification models.Notification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	dispatched, err := a.dispatcher.Dispatch(r.Context(), notification)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, dispatched)
}

func (a *App) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := a.doc.ListNotifications(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, notifications)
}

func (a *App) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseNotificationID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := a.doc.MarkNotificationRead(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (a *App) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := a.doc.ClearNotifications(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var meeting models.Meeting
	if err := json.NewDecoder(r.Body).Decode(&meeting); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if meeting.ID.IsZero() {
		meeting.ID = models.NewMeetingID()
	}

	if err := a.doc.CreateMeeting(r.Context(), &meeting); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, meeting)
}

func (a *App) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := a.doc.ListMeetings(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, meetings)
}

// handleToastStream streams transient toasts as server-sent events until
// the client disconnects.
func (a *App) handleToastStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	toasts, cancel := a.toasts.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case toast, ok := <-toasts:
			if !ok {
				return
			}
			payload, err := json.Marshal(toast)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

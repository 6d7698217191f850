// Package presence implements the heartbeat loop and online-status
// resolution. The heartbeat writes only the last_seen column, which the
// field-mapping table marks as heartbeat-owned; that exclusion is what
// keeps the 60-second beat from echoing into the document store.
package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/staffops/pkg/models"
	"github.com/example/staffops/pkg/store"
)

const (
	// DefaultInterval is how often the heartbeat fires
	DefaultInterval = 60 * time.Second
	// OnlineWindow is how recent a heartbeat must be for online status
	OnlineWindow = 5 * time.Minute
)

// Heartbeat periodically stamps the session person's last_seen column
type Heartbeat struct {
	rel      store.RelationalStore
	personID models.PersonID
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHeartbeat creates a heartbeat for the given person id
func NewHeartbeat(rel store.RelationalStore, personID models.PersonID, logger zerolog.Logger) *Heartbeat {
	return &Heartbeat{
		rel:      rel,
		personID: personID,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}

// WithClock overrides the clock, for tests
func (h *Heartbeat) WithClock(now func() time.Time) *Heartbeat {
	h.now = now
	return h
}

// WithInterval overrides the beat interval, for tests
func (h *Heartbeat) WithInterval(d time.Duration) *Heartbeat {
	h.interval = d
	return h
}

// Run beats once immediately, then on every tick until the context is
// cancelled. A failed beat is logged and swallowed; the next tick
// self-heals.
func (h *Heartbeat) Run(ctx context.Context) {
	h.Beat(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}

// Beat writes a single heartbeat
func (h *Heartbeat) Beat(ctx context.Context) {
	if err := h.rel.Heartbeat(ctx, h.personID, h.now()); err != nil {
		h.logger.Warn().Err(err).Str("person", h.personID.String()).Msg("failed to write heartbeat")
	}
}

// Status is a person's resolved presence
type Status string

const (
	StatusLeave   Status = "leave"
	StatusAbsence Status = "absence"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Resolve determines presence with fixed precedence leave > absence >
// online > offline. A covering leave entry wins over everything,
// including a heartbeat from moments ago; online requires a heartbeat
// within OnlineWindow.
func Resolve(leaves models.AbsenceList, lastSeen *time.Time, now time.Time) Status {
	absent := false
	for _, entry := range leaves {
		entry.Normalize()
		if !entry.Covers(now) {
			continue
		}
		switch entry.Kind {
		case models.AbsenceKindLeave:
			return StatusLeave
		case models.AbsenceKindAbsence:
			absent = true
		}
	}
	if absent {
		return StatusAbsence
	}
	if lastSeen != nil && now.Sub(*lastSeen) < OnlineWindow {
		return StatusOnline
	}
	return StatusOffline
}

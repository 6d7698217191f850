package syncer

import (
	"sync"

	"github.com/example/staffops/pkg/models"
)

// Snapshot is the in-memory copy of the document store's people table.
// It is written only by the document subscription path and read by the
// Reverse Sync Listener, which compares incoming relational events
// against it to suppress echo writes. The snapshot is never persisted
// and lags a concurrent remote write by at most one delivered event.
type Snapshot struct {
	mu     sync.RWMutex
	people map[string]*models.Person
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{people: make(map[string]*models.Person)}
}

// Put records the last delivered state for the person's id
func (s *Snapshot) Put(person *models.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.people[person.ID.String()] = person
}

// Delete drops the snapshot entry for the id
func (s *Snapshot) Delete(id models.PersonID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.people, id.String())
}

// Get returns the last delivered state and whether the id has been seen
func (s *Snapshot) Get(id models.PersonID) (*models.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id.String()]
	return p, ok
}

// Len returns the number of tracked people
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.people)
}

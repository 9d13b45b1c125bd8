package chat

import (
	"sort"
	"sync"

	"github.com/placehive/placehive-backend/internal/models"
)

// PatchFields names the scalar columns a realtime update may touch. A nil
// field means "leave it alone"; a partial push payload must never clear
// relational data the store already holds.
type PatchFields struct {
	IsRead   *bool
	Content  *string
	ImageURL *string
	AudioURL *string
}

// Store is the authoritative client-side collection of messages for one
// session. All writers (send pipeline, read tracker, reconciler) go through
// Merge/Append, Patch and Remove; there is no full-object replacement.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*models.Message
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*models.Message)}
}

// Append inserts a single message. Idempotent by id: appending a message
// whose id is already present is a no-op, which makes the realtime echo of
// an optimistic send harmless regardless of arrival order.
func (s *Store) Append(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(m)
}

// Merge inserts every incoming message not already present.
func (s *Store) Merge(incoming []models.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, m := range incoming {
		if s.insertLocked(m) {
			added++
		}
	}
	return added
}

func (s *Store) insertLocked(m models.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, exists := s.byID[m.ID]; exists {
		return false
	}
	cp := m
	s.byID[m.ID] = &cp
	return true
}

// Patch applies the non-nil fields to the message with the given id.
// Reports whether a message was found.
func (s *Store) Patch(id string, fields PatchFields) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return false
	}
	if fields.IsRead != nil {
		m.IsRead = *fields.IsRead
	}
	if fields.Content != nil {
		m.Content = fields.Content
	}
	if fields.ImageURL != nil {
		m.ImageURL = fields.ImageURL
	}
	if fields.AudioURL != nil {
		m.AudioURL = fields.AudioURL
	}
	return true
}

// Remove deletes the message. Only invoked for explicit remote delete events.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return models.Message{}, false
	}
	return *m, true
}

// All returns a snapshot of every message sorted ascending by creation time,
// with id as tiebreaker so the order is stable.
func (s *Store) All() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

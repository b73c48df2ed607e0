package session

import (
	"context"
	"sync"
)

// memoryStore keeps sessions in a mutex-guarded map. It is the default
// backend when no Redis address is configured.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[int64]*Session)}
}

func (m *memoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *memoryStore) Put(_ context.Context, userID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[userID] = s.clone()
	return nil
}

func (m *memoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// clone deep-copies the session, including the flow data bags and their
// slices. Both Get and Put clone, so callers never alias the stored record:
// a handler that mutates its copy and bails out before Put leaves the store
// untouched.
func (s *Session) clone() *Session {
	c := *s
	if s.Registration != nil {
		r := *s.Registration
		c.Registration = &r
	}
	if s.Search != nil {
		sd := *s.Search
		sd.PlaceIDs = append([]int64(nil), s.Search.PlaceIDs...)
		c.Search = &sd
	}
	if s.Review != nil {
		r := *s.Review
		r.PlaceOptions = append([]PlaceOption(nil), s.Review.PlaceOptions...)
		r.CategoryOptions = append([]CategoryOption(nil), s.Review.CategoryOptions...)
		r.Photos = append([]string(nil), s.Review.Photos...)
		c.Review = &r
	}
	if s.Guides != nil {
		g := *s.Guides
		g.Topics = append([]GuideTopicOption(nil), s.Guides.Topics...)
		c.Guides = &g
	}
	if s.Assistant != nil {
		a := *s.Assistant
		c.Assistant = &a
	}
	return &c
}

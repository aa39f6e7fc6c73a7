package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	sessions    map[string][]Checkpoint
	order       []string // creation order, oldest first
	maxSessions int
	now         func() time.Time
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]Checkpoint),
		now:      time.Now,
	}
}

// WithMaxSessions caps retained sessions; creating one past the cap evicts the oldest.
// Zero keeps every session.
func (s *MemoryStore) WithMaxSessions(n int) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSessions = n
	s.evict()
	return s
}

// Create registers a fresh session
func (s *MemoryStore) Create(ctx context.Context, sessionID string) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	s.sessions[sessionID] = []Checkpoint{}
	s.order = append(s.order, sessionID)
	s.evict()
	return nil
}

// evict drops the oldest sessions beyond the cap. Callers hold the write lock.
func (s *MemoryStore) evict() {
	if s.maxSessions <= 0 {
		return
	}
	for len(s.order) > s.maxSessions {
		delete(s.sessions, s.order[0])
		s.order = s.order[1:]
	}
}

// Save appends a checkpoint
func (s *MemoryStore) Save(ctx context.Context, cp Checkpoint) error {
	cp, err := prepare(cp, s.now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, exists := s.sessions[cp.SessionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, cp.SessionID)
	}
	s.sessions[cp.SessionID] = append(history, cp)
	return nil
}

// Latest returns the most recent checkpoint
func (s *MemoryStore) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1].Clone()
	return &latest, nil
}

// History returns all checkpoints in save order
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]Checkpoint, len(history))
	for i, cp := range history {
		out[i] = cp.Clone()
	}
	return out, nil
}

// Delete removes a session
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sessionID]; !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	s.order = lo.Without(s.order, sessionID)
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}

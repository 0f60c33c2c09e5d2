package session

import (
	"context"
	"sync"
	"time"
)

// defaultTTL is how long an idle session's history is retained before the
// eviction loop discards it.
const defaultTTL = 24 * time.Hour

// entry holds one session's thread and the last time it was touched, used to
// evict stale sessions from the map.
type entry struct {
	// messages is the session's thread, oldest-first.
	messages []Message
	// lastSeen is updated on every read or write for eviction.
	lastSeen time.Time
}

// MemoryStore is an in-memory Store. Idle sessions are evicted periodically
// to bound memory usage.
type MemoryStore struct {
	// mu protects the sessions map.
	mu sync.Mutex
	// sessions maps session ID to its thread.
	sessions map[string]*entry
	// ttl is how long an idle session is retained.
	ttl time.Duration
	// stop terminates the eviction goroutine.
	stop func()
}

// NewMemoryStore constructs a MemoryStore and starts the background eviction
// goroutine. ttl is how long idle sessions are retained; zero means
// defaultTTL. The goroutine exits when Close is called.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
	}

	stopCh := make(chan struct{})
	go s.evictLoop(stopCh)
	s.stop = func() { close(stopCh) }

	return s
}

// History returns all messages for the session, oldest-first.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	e.lastSeen = time.Now()

	msgs := make([]Message, len(e.messages))
	copy(msgs, e.messages)
	return msgs, nil
}

// AppendTurn persists a question/answer pair under one lock acquisition, so
// concurrent readers see either both messages or neither.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID, question, answer string) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{}
		s.sessions[sessionID] = e
	}
	e.messages = append(e.messages,
		Message{Role: RoleUser, Content: question, CreatedAt: now},
		Message{Role: RoleAssistant, Content: answer, CreatedAt: now},
	)
	e.lastSeen = now
	return nil
}

// Reset discards the session's history.
func (s *MemoryStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Close stops the eviction goroutine.
func (s *MemoryStore) Close() error {
	s.stop()
	return nil
}

// evictLoop removes idle sessions every minute. It runs in a background
// goroutine and exits when stopCh is closed.
func (s *MemoryStore) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.evict()
		}
	}
}

// evict removes sessions idle for longer than the TTL.
func (s *MemoryStore) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

package idempotency

import (
	"context"
	"sync"
	"time"

	"registrar/internal/event/models"
)

type entry struct {
	result    models.StoredResult
	expiresAt time.Time
}

// InMemoryStore keeps results in process. Expired entries are dropped lazily.
type InMemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

type MemoryOption func(*InMemoryStore)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(ttl time.Duration, opts ...MemoryOption) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, eventID, key string) (*models.StoredResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(eventID, key)
	e, ok := s.entries[k]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, k)
		return nil, false, nil
	}
	result := e.result
	return &result, true, nil
}

// Put stores result unless a live entry already exists for the key; the first
// result wins.
func (s *InMemoryStore) Put(_ context.Context, eventID, key string, result models.StoredResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(eventID, key)
	if e, ok := s.entries[k]; ok && s.now().Before(e.expiresAt) {
		return nil
	}
	s.entries[k] = entry{result: result, expiresAt: s.now().Add(s.ttl)}
	return nil
}

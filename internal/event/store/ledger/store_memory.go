package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"registrar/internal/event/models"
	"registrar/pkg/platform/sentinel"
)

// numShards spreads per-event write locks so appends to different events do not
// contend.
const numShards = 64

// InMemoryStore keeps the ledger in process. Appends to one event are
// serialized by that event's shard lock.
type InMemoryStore struct {
	shards [numShards]sync.Mutex

	mu     sync.RWMutex
	events map[string]*models.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]*models.Event)}
}

func (s *InMemoryStore) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("event %s: %w", event.ID, sentinel.ErrConflict)
	}
	stored := cloneEvent(event)
	stamp(nil, stored.Actions)
	s.events[event.ID] = stored
	copy(event.Actions, stored.Actions)
	return nil
}

func (s *InMemoryStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, sentinel.ErrNotFound)
	}
	return cloneEvent(e), nil
}

// ListActions returns actions in insertion order.
func (s *InMemoryStore) ListActions(ctx context.Context, id string) ([]models.Action, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Actions, nil
}

func (s *InMemoryStore) EventIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) Append(ctx context.Context, eventID string, guard Guard, actions ...models.Action) ([]models.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := &s.shards[shardFor(eventID)]
	shard.Lock()
	defer shard.Unlock()

	current, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(current); err != nil {
			return nil, err
		}
	}
	seen := make(map[string]bool, len(current.Actions))
	for _, a := range current.Actions {
		seen[a.ID] = true
	}
	written := cloneActions(actions)
	for i := range written {
		if seen[written[i].ID] {
			return nil, fmt.Errorf("action %s: %w", written[i].ID, sentinel.ErrConflict)
		}
		seen[written[i].ID] = true
		written[i].EventID = eventID
	}
	stamp(current.Actions, written)

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.events[eventID]
	stored.Actions = append(stored.Actions, cloneActions(written)...)
	return written, nil
}

// shardFor hashes an event id with FNV-1a.
func shardFor(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % numShards)
}

// Package index maintains the searchable projection of folded event states and
// publishes it to downstream consumers.
package index

import (
	"context"
	"sort"
	"sync"

	"registrar/internal/event/dedup"
	"registrar/internal/event/models"
)

// MemoryIndex is the in-process read model. It answers searches and serves as
// the duplicate detector's candidate source.
type MemoryIndex struct {
	mu     sync.RWMutex
	events map[string]models.IndexedEvent
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{events: make(map[string]models.IndexedEvent)}
}

// Index replaces the stored projection for the event.
func (m *MemoryIndex) Index(_ context.Context, event models.IndexedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = cloneIndexed(event)
	return nil
}

// Search returns matching events ordered by id.
func (m *MemoryIndex) Search(_ context.Context, q models.SearchQuery) ([]models.IndexedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.IndexedEvent{}
	for _, e := range m.events {
		if q.Matches(e) {
			out = append(out, cloneIndexed(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Candidates lists other events of eventType for duplicate evaluation.
// Archived events are not candidates.
func (m *MemoryIndex) Candidates(_ context.Context, eventType, excludeID string) ([]dedup.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []dedup.Candidate
	for id, e := range m.events {
		if id == excludeID || e.Type != eventType || e.State.Status == models.EventArchived {
			continue
		}
		out = append(out, dedup.Candidate{ID: id, Type: e.Type, Data: e.State.Data.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneIndexed(e models.IndexedEvent) models.IndexedEvent {
	e.State.Flags = e.State.Flags.Clone()
	e.State.Data = e.State.Data.Clone()
	e.State.Duplicates = append([]string{}, e.State.Duplicates...)
	if e.State.DismissedDuplicates != nil {
		dismissed := make(map[string]string, len(e.State.DismissedDuplicates))
		for k, v := range e.State.DismissedDuplicates {
			dismissed[k] = v
		}
		e.State.DismissedDuplicates = dismissed
	}
	return e
}

package models

import (
	"encoding/json"
	"time"
)

// EventStatus is the lifecycle status derived by the fold.
type EventStatus string

const (
	EventCreated    EventStatus = "CREATED"
	EventNotified   EventStatus = "NOTIFIED"
	EventDeclared   EventStatus = "DECLARED"
	EventValidated  EventStatus = "VALIDATED"
	EventRegistered EventStatus = "REGISTERED"
	EventCertified  EventStatus = "CERTIFIED"
	EventRejected   EventStatus = "REJECTED"
	EventArchived   EventStatus = "ARCHIVED"
)

// Event is one registrable life-event declaration. Only Actions grows.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	Actions   []Action  `json:"actions"`
}

// EventState is the fold's output. It is never persisted.
type EventState struct {
	Status     EventStatus `json:"status"`
	Flags      FlagSet     `json:"flags"`
	Data       Fields      `json:"data"`
	Duplicates []string    `json:"duplicates"`

	AssignedTo          string            `json:"assignedTo,omitempty"`
	PendingCorrectionID string            `json:"pendingCorrectionId,omitempty"`
	CanonicalID         string            `json:"canonicalId,omitempty"`
	DismissedDuplicates map[string]string `json:"dismissedDuplicates,omitempty"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// NewEventState returns the fold's initial state.
func NewEventState() EventState {
	return EventState{
		Status:     EventCreated,
		Flags:      FlagSet{},
		Data:       Fields{},
		Duplicates: []string{},
	}
}

// HasFlag reports whether f is currently set.
func (s EventState) HasFlag(f Flag) bool {
	return s.Flags.Has(f)
}

// EventView pairs an event's identity with its freshly folded state.
type EventView struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	State     EventState `json:"state"`
}

// IndexedEvent is the only payload pushed to the downstream index.
type IndexedEvent struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	State EventState `json:"state"`
}

// SearchQuery filters indexed events. Empty fields match everything.
type SearchQuery struct {
	Type   string      `json:"type,omitempty"`
	Status EventStatus `json:"status,omitempty"`
	Flags  []Flag      `json:"flags,omitempty"`
}

// Matches reports whether an indexed event satisfies the query.
func (q SearchQuery) Matches(e IndexedEvent) bool {
	if q.Type != "" && q.Type != e.Type {
		return false
	}
	if q.Status != "" && q.Status != e.State.Status {
		return false
	}
	for _, f := range q.Flags {
		if !e.State.HasFlag(f) {
			return false
		}
	}
	return true
}

func marshalSorted(flags []Flag) ([]byte, error) {
	return json.Marshal(flags)
}

func unmarshalFlags(b []byte, flags *[]Flag) error {
	return json.Unmarshal(b, flags)
}

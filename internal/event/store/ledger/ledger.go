// Package ledger stores events and their append-only action history.
//
// Append is the only write path for actions. It runs a caller-supplied guard
// against the event's current history while holding the event's write lock and
// writes every given action or none. Guard errors are returned unchanged and
// leave the ledger untouched.
package ledger

import (
	"time"

	"registrar/internal/event/models"
)

// Guard inspects the event as it is at append time. A non-nil error aborts the
// append.
type Guard func(event *models.Event) error

// stamp makes createdAt strictly increasing within an event so replay order
// equals append order. Timestamps are truncated to microseconds, the precision
// Postgres keeps.
func stamp(existing []models.Action, actions []models.Action) {
	var last time.Time
	for _, a := range existing {
		if a.CreatedAt.After(last) {
			last = a.CreatedAt
		}
	}
	for i := range actions {
		at := actions[i].CreatedAt.UTC().Truncate(time.Microsecond)
		if !at.After(last) {
			at = last.Add(time.Microsecond)
		}
		actions[i].CreatedAt = at
		last = at
	}
}

func cloneAction(a models.Action) models.Action {
	a.Declaration = a.Declaration.Clone()
	a.Annotation = a.Annotation.Clone()
	if a.Duplicates != nil {
		a.Duplicates = append([]string(nil), a.Duplicates...)
	}
	if a.Dismissed != nil {
		dismissed := make(map[string]string, len(a.Dismissed))
		for k, v := range a.Dismissed {
			dismissed[k] = v
		}
		a.Dismissed = dismissed
	}
	return a
}

func cloneActions(actions []models.Action) []models.Action {
	out := make([]models.Action, len(actions))
	for i, a := range actions {
		out[i] = cloneAction(a)
	}
	return out
}

func cloneEvent(e *models.Event) *models.Event {
	c := *e
	c.Actions = cloneActions(e.Actions)
	return &c
}

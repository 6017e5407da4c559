package service

import (
	"context"
	"errors"

	"registrar/internal/event/fold"
	"registrar/internal/event/models"
	dErrors "registrar/pkg/domain-errors"
)

var errAlreadyHeld = errors.New("assignment already held by caller")

// Assign acquires the event's assignment lock for the caller.
func (s *Service) Assign(ctx context.Context, eventID string) (*models.ActionResult, error) {
	return s.RequestAction(ctx, models.ActionRequest{EventID: eventID, Type: models.ActionAssign})
}

// Unassign releases the caller's assignment lock.
func (s *Service) Unassign(ctx context.Context, eventID string) (*models.ActionResult, error) {
	return s.RequestAction(ctx, models.ActionRequest{EventID: eventID, Type: models.ActionUnassign})
}

// assign is a no-op when the caller already holds the lock.
func (s *Service) assign(ctx context.Context, event *models.Event, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, models.ActionAssign, user)
	action.AssignedTo = user

	_, err := s.append(ctx, event.ID, func(e *models.Event) error {
		holder := fold.Fold(e.Actions).AssignedTo
		switch holder {
		case "":
			return nil
		case user:
			return errAlreadyHeld
		default:
			return dErrors.New(dErrors.CodeAssignmentConflict, "event is assigned to another user")
		}
	}, action)
	if err != nil && !errors.Is(err, errAlreadyHeld) {
		return nil, err
	}
	actionID := action.ID
	if err != nil {
		actionID = ""
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{ActionID: actionID, Outcome: models.OutcomeNotRequired, Event: view}, nil
}

func (s *Service) unassign(ctx context.Context, event *models.Event, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, models.ActionUnassign, user)
	_, err := s.append(ctx, event.ID, func(e *models.Event) error {
		return requireHolder(fold.Fold(e.Actions), user)
	}, action)
	if err != nil {
		return nil, err
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{ActionID: action.ID, Outcome: models.OutcomeNotRequired, Event: view}, nil
}

// read records an audit READ. It needs no lock and has no fold effect.
func (s *Service) read(ctx context.Context, event *models.Event, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, models.ActionRead, user)
	if _, err := s.append(ctx, event.ID, nil, action); err != nil {
		return nil, err
	}
	event.Actions = append(event.Actions, action)
	return &models.ActionResult{ActionID: action.ID, Outcome: models.OutcomeNotRequired, Event: viewOf(event)}, nil
}

// releaseAction unlocks the event as part of a multi-action append.
func (s *Service) releaseAction(ctx context.Context, user string) models.Action {
	return s.newAction(ctx, models.ActionUnassign, user)
}

package service

import (
	"context"

	"registrar/internal/event/eventconfig"
	"registrar/internal/event/fold"
	"registrar/internal/event/models"
	dErrors "registrar/pkg/domain-errors"
)

// requestCorrection records the requested field changes without applying them.
// Unless keepAssignment is set the caller's lock is released in the same
// append.
func (s *Service) requestCorrection(ctx context.Context, event *models.Event, actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, models.ActionRequestCorrection, user)
	action.Declaration = req.Declaration.Clone()
	action.Annotation = req.Annotation.Clone()
	action.Reason = req.Reason
	action.KeepAssignment = req.KeepAssignment

	actions := []models.Action{action}
	if !req.KeepAssignment {
		actions = append(actions, s.releaseAction(ctx, user))
	}
	if _, err := s.append(ctx, event.ID, s.holderGuard(actionCfg, req, user), actions...); err != nil {
		return nil, err
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{ActionID: action.ID, Outcome: models.OutcomeNotRequired, Event: view}, nil
}

// resolveCorrection approves or rejects the pending correction request and
// releases the lock. Approval applies the request's fields through the fold.
func (s *Service) resolveCorrection(ctx context.Context, event *models.Event, actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, req.Type, user)
	action.OriginalActionID = req.OriginalActionID
	action.Annotation = req.Annotation.Clone()
	action.Reason = req.Reason

	_, err := s.append(ctx, event.ID, s.holderGuard(actionCfg, req, user), action, s.releaseAction(ctx, user))
	if err != nil {
		return nil, err
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{ActionID: action.ID, Outcome: models.OutcomeNotRequired, Event: view}, nil
}

// GetCorrectionPreview shows the state a correction request was raised against,
// obtained by replaying the ledger up to the request, next to the changes it
// asks for.
func (s *Service) GetCorrectionPreview(ctx context.Context, eventID, requestActionID string) (*models.CorrectionPreview, error) {
	actions, err := s.ledger.ListActions(ctx, eventID)
	if err != nil {
		return nil, translate(err, "failed to list actions")
	}
	request, ok := fold.FindAction(actions, requestActionID)
	if !ok || request.Type != models.ActionRequestCorrection {
		return nil, dErrors.New(dErrors.CodeNotFound, "correction request not found")
	}
	before, _ := fold.Before(actions, requestActionID)
	current := fold.Fold(actions)
	return &models.CorrectionPreview{
		RequestActionID: requestActionID,
		Before:          before,
		Requested:       mergeFields(request.Declaration, request.Annotation),
		Pending:         current.PendingCorrectionID == requestActionID,
	}, nil
}

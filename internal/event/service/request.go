package service

import (
	"context"

	"registrar/internal/event/eventconfig"
	"registrar/internal/event/fold"
	"registrar/internal/event/models"
	"registrar/internal/event/store/ledger"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/requestcontext"
)

// systemOnly actions are appended by the service itself.
var systemOnly = map[models.ActionType]bool{
	models.ActionCreate:            true,
	models.ActionDuplicateDetected: true,
}

// RequestAction validates and appends one action on behalf of the caller.
// Validation and assignment errors leave the ledger untouched.
func (s *Service) RequestAction(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	user, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := models.ParseActionType(string(req.Type))
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown action type: "+string(req.Type))
	}
	req.Type = t
	if systemOnly[t] {
		return nil, dErrors.New(dErrors.CodeValidation, string(t)+" cannot be requested")
	}
	if req.EventID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event id is required")
	}

	event, err := s.ledger.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, translate(err, "failed to load event")
	}
	if cached, ok, err := s.replay(ctx, event, req, user); err != nil || ok {
		return cached, err
	}
	cfg, ok := s.configs.Get(event.Type)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is not configured: "+event.Type)
	}
	actionCfg, ok := cfg.Action(t)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, string(t)+" is not enabled for "+event.Type)
	}

	var result *models.ActionResult
	switch {
	case t == models.ActionRead:
		result, err = s.read(ctx, event, user)
	case t == models.ActionAssign:
		result, err = s.assign(ctx, event, user)
	case t == models.ActionUnassign:
		result, err = s.unassign(ctx, event, user)
	case actionCfg.RequiresConfirmation:
		result, err = s.confirm(ctx, event, actionCfg, req, user)
	case t == models.ActionRequestCorrection:
		result, err = s.requestCorrection(ctx, event, actionCfg, req, user)
	case t == models.ActionApproveCorrection, t == models.ActionRejectCorrection:
		result, err = s.resolveCorrection(ctx, event, actionCfg, req, user)
	case t == models.ActionMarkAsNotDuplicate:
		result, err = s.dismissDuplicates(ctx, event, actionCfg, req, user)
	default:
		result, err = s.perform(ctx, event, cfg, actionCfg, req, user)
	}
	if err != nil {
		s.logger.InfoContext(ctx, "action refused",
			"event_id", req.EventID,
			"action_type", t,
			"user_id", user,
			"code", dErrors.CodeOf(err),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}
	s.remember(ctx, req, user, *result)
	return result, nil
}

// perform appends a directly accepted action and runs duplicate detection when
// the action type asks for it.
func (s *Service) perform(ctx context.Context, event *models.Event, cfg eventconfig.EventConfig, actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) (*models.ActionResult, error) {
	action := s.newAction(ctx, req.Type, user)
	action.Declaration = req.Declaration.Clone()
	action.Annotation = req.Annotation.Clone()
	action.Reason = req.Reason
	action.CanonicalID = req.CanonicalID
	action.OriginalActionID = req.OriginalActionID

	if _, err := s.append(ctx, event.ID, s.holderGuard(actionCfg, req, user), action); err != nil {
		return nil, err
	}

	var duplicates []string
	if actionCfg.Deduplicate {
		duplicates = s.detectDuplicates(ctx, event.ID, cfg, action.ID)
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{
		ActionID:     action.ID,
		Outcome:      models.OutcomeNotRequired,
		Event:        view,
		DuplicatesOf: duplicates,
	}, nil
}

// holderGuard checks the lock, then the transition, against the state at
// append time.
func (s *Service) holderGuard(actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) ledger.Guard {
	return func(e *models.Event) error {
		state := fold.Fold(e.Actions)
		if err := requireHolder(state, user); err != nil {
			return err
		}
		if err := checkPendingDrafts(fold.PendingDrafts(e.Actions), req); err != nil {
			return err
		}
		return checkTransition(state, actionCfg, req)
	}
}

// replay returns the stored result for a reused idempotency key. The key must
// have answered the same action type for the same caller, and a lock-bound
// action is not replayed once another user holds the event.
func (s *Service) replay(ctx context.Context, event *models.Event, req models.ActionRequest, user string) (*models.ActionResult, bool, error) {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return nil, false, nil
	}
	stored, ok, err := s.idempotency.Get(ctx, req.EventID, req.IdempotencyKey)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency lookup failed",
			"event_id", req.EventID,
			"error", err,
		)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if stored.ActionType != req.Type || stored.RequestedBy != user {
		return nil, false, dErrors.New(dErrors.CodeConflict, "idempotency key was already used for a different request")
	}
	if req.Type != models.ActionRead && req.Type != models.ActionAssign {
		holder := fold.Fold(event.Actions).AssignedTo
		if holder != "" && holder != user {
			return nil, false, dErrors.New(dErrors.CodeAssignmentRequired, "event is assigned to another user")
		}
	}
	s.metrics.IncrementIdempotentReplay()
	result := stored.Result
	result.Replayed = true
	return &result, true, nil
}

// remember stores terminal results. Pending confirmations are not stored so a
// retry with the same key re-drives the draft.
func (s *Service) remember(ctx context.Context, req models.ActionRequest, user string, result models.ActionResult) {
	if s.idempotency == nil || req.IdempotencyKey == "" || result.Outcome == models.OutcomePending {
		return
	}
	stored := models.StoredResult{ActionType: req.Type, RequestedBy: user, Result: result}
	if err := s.idempotency.Put(ctx, req.EventID, req.IdempotencyKey, stored); err != nil {
		s.logger.WarnContext(ctx, "failed to store idempotency result",
			"event_id", req.EventID,
			"error", err,
		)
	}
}

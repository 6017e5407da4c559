package service

import (
	"context"

	"registrar/internal/event/dedup"
	"registrar/internal/event/eventconfig"
	"registrar/internal/event/fold"
	"registrar/internal/event/models"
	"registrar/pkg/requestcontext"
)

// detectDuplicates evaluates the event type's rules against the event's
// current data and flags matches. Failures are logged and counted; they never
// fail the action that triggered detection.
func (s *Service) detectDuplicates(ctx context.Context, eventID string, cfg eventconfig.EventConfig, triggeredBy string) []string {
	if s.detector == nil || len(cfg.Duplicates) == 0 {
		return nil
	}
	event, err := s.ledger.GetEvent(ctx, eventID)
	if err != nil {
		s.duplicateFailure(ctx, eventID, err)
		return nil
	}
	// The triggering action must be visible to candidates of later events.
	s.publish(ctx, event)

	state := fold.Fold(event.Actions)
	matches, err := s.detector.Detect(ctx, dedup.Subject{
		ID:        event.ID,
		Type:      event.Type,
		Data:      state.Data,
		Dismissed: state.DismissedDuplicates,
	}, cfg.Duplicates, dedup.Context{
		Form: state.Data,
		User: map[string]any{"id": requestcontext.UserID(ctx)},
		Now:  s.now(ctx),
	})
	if err != nil {
		s.duplicateFailure(ctx, eventID, err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}

	ids := dedup.IDs(matches)
	detected := s.newAction(ctx, models.ActionDuplicateDetected, SystemUser)
	detected.OriginalActionID = triggeredBy
	detected.Duplicates = ids
	if _, err := s.append(ctx, eventID, nil, detected); err != nil {
		s.duplicateFailure(ctx, eventID, err)
		return nil
	}
	s.metrics.IncrementDuplicatesDetected()
	s.logger.InfoContext(ctx, "potential duplicate detected",
		"event_id", eventID,
		"duplicates", ids,
		"rule_id", matches[0].RuleID,
	)
	return ids
}

// dismissDuplicates clears the flag and remembers each candidate's current data
// fingerprint so an unchanged candidate is not flagged again.
func (s *Service) dismissDuplicates(ctx context.Context, event *models.Event, actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) (*models.ActionResult, error) {
	state := fold.Fold(event.Actions)
	action := s.newAction(ctx, models.ActionMarkAsNotDuplicate, user)
	action.Reason = req.Reason
	action.Annotation = req.Annotation.Clone()
	action.Dismissed = s.fingerprints(ctx, event, state.Duplicates)

	if _, err := s.append(ctx, event.ID, s.holderGuard(actionCfg, req, user), action); err != nil {
		return nil, err
	}
	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	return &models.ActionResult{ActionID: action.ID, Outcome: models.OutcomeNotRequired, Event: view}, nil
}

func (s *Service) fingerprints(ctx context.Context, event *models.Event, ids []string) map[string]string {
	if len(ids) == 0 {
		return nil
	}
	dismissed := make(map[string]string, len(ids))
	for _, id := range ids {
		dismissed[id] = ""
	}
	if s.candidates == nil {
		return dismissed
	}
	candidates, err := s.candidates.Candidates(ctx, event.Type, event.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load duplicate candidates",
			"event_id", event.ID,
			"error", err,
		)
		return dismissed
	}
	for _, c := range candidates {
		if _, ok := dismissed[c.ID]; ok {
			dismissed[c.ID] = dedup.Fingerprint(c.Data)
		}
	}
	return dismissed
}

func (s *Service) duplicateFailure(ctx context.Context, eventID string, err error) {
	s.metrics.IncrementDuplicateFailures()
	s.logger.WarnContext(ctx, "duplicate evaluation failed",
		"event_id", eventID,
		"error", err,
	)
}

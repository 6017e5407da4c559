package service

import (
	"context"
	"errors"
	"reflect"
	"time"

	"registrar/internal/event/eventconfig"
	"registrar/internal/event/fold"
	"registrar/internal/event/models"
	"registrar/internal/event/trigger"
	dErrors "registrar/pkg/domain-errors"
)

var errAlreadyFinalized = errors.New("confirmation already finalized")

// confirm runs the two-step confirmation saga: a Requested draft is appended
// (or an existing pending draft of the same type is reused), the webhook is
// called, and a terminal Accepted or Rejected action is appended referencing
// the draft. Indeterminate webhook results leave the draft pending. The
// accepted action carries the draft's declaration plus the webhook's fields,
// which is exactly what the webhook was asked to confirm.
func (s *Service) confirm(ctx context.Context, event *models.Event, actionCfg eventconfig.ActionConfig, req models.ActionRequest, user string) (*models.ActionResult, error) {
	if s.trigger == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "confirmation webhook is not configured")
	}
	guard := s.holderGuard(actionCfg, req, user)

	draft, pending := fold.PendingConfirmation(event.Actions, req.Type)
	if pending {
		if err := guard(event); err != nil {
			return nil, err
		}
		if len(req.Declaration) > 0 && !reflect.DeepEqual(req.Declaration, draft.Declaration) {
			return nil, dErrors.New(dErrors.CodeConflict,
				string(req.Type)+" is awaiting confirmation with different data; retry it unchanged")
		}
		s.logger.InfoContext(ctx, "re-driving pending confirmation",
			"event_id", event.ID,
			"action_type", req.Type,
			"draft_id", draft.ID,
		)
	} else {
		draft = s.newAction(ctx, req.Type, user)
		draft.Status = models.StatusRequested
		draft.Draft = true
		draft.Declaration = req.Declaration.Clone()
		draft.Annotation = req.Annotation.Clone()
		written, err := s.append(ctx, event.ID, guard, draft)
		if err != nil {
			return nil, err
		}
		draft = written[0]
		event.Actions = append(event.Actions, draft)
	}

	resp, callErr := s.callTrigger(ctx, event, draft, user)

	var final *models.Action
	switch resp.Outcome {
	case models.OutcomeAccepted:
		a := s.finalAction(ctx, draft, models.StatusAccepted, user)
		a.Declaration = mergeFields(draft.Declaration, resp.Data)
		final = &a
	case models.OutcomeRejected:
		a := s.finalAction(ctx, draft, models.StatusRejected, user)
		a.Reason = rejectionReason(callErr)
		final = &a
	default:
		s.logger.WarnContext(ctx, "confirmation left pending",
			"event_id", event.ID,
			"action_type", req.Type,
			"draft_id", draft.ID,
			"category", trigger.CategoryOf(callErr),
			"error", callErr,
		)
	}

	result := &models.ActionResult{ActionID: draft.ID, Outcome: resp.Outcome}
	if final != nil {
		_, err := s.append(ctx, event.ID, func(e *models.Event) error {
			current, ok := fold.PendingConfirmation(e.Actions, draft.Type)
			if !ok || current.ID != draft.ID {
				return errAlreadyFinalized
			}
			return nil
		}, *final)
		switch {
		case errors.Is(err, errAlreadyFinalized):
			return nil, dErrors.New(dErrors.CodeConflict, "confirmation was finalized by a concurrent request")
		case err != nil:
			return nil, err
		}
		result.ActionID = final.ID
	}

	view, err := s.reload(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	result.Event = view
	return result, nil
}

func (s *Service) callTrigger(ctx context.Context, event *models.Event, draft models.Action, user string) (trigger.Response, error) {
	state := fold.Fold(event.Actions)
	start := time.Now()
	resp, err := s.trigger.Trigger(ctx, trigger.Request{
		EventID:     event.ID,
		EventType:   event.Type,
		ActionID:    draft.ID,
		ActionType:  draft.Type,
		Declaration: draft.Declaration,
		Annotation:  draft.Annotation,
		Data:        mergeFields(state.Data, draft.Declaration),
		RequestedBy: user,
	})
	s.metrics.ObserveTriggerLatency(string(draft.Type), time.Since(start))
	if resp.Outcome == "" {
		resp.Outcome = models.OutcomePending
	}
	s.metrics.IncrementTriggerOutcome(string(draft.Type), string(resp.Outcome))
	return resp, err
}

func (s *Service) finalAction(ctx context.Context, draft models.Action, status models.ActionStatus, user string) models.Action {
	a := s.newAction(ctx, draft.Type, user)
	a.Status = status
	a.OriginalActionID = draft.ID
	a.Annotation = draft.Annotation.Clone()
	return a
}

func rejectionReason(err error) string {
	var te *trigger.Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return "rejected by confirmation webhook"
}

// mergeFields returns base overlaid with over; neither input is modified.
func mergeFields(base, over models.Fields) models.Fields {
	out := make(models.Fields, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

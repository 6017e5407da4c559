package service

import (
	"fmt"
	"slices"
	"strings"

	"registrar/internal/event/dedup"
	"registrar/internal/event/eventconfig"
	"registrar/internal/event/models"
	dErrors "registrar/pkg/domain-errors"
)

// allowedFrom lists the statuses each lifecycle action may start from.
var allowedFrom = map[models.ActionType][]models.EventStatus{
	models.ActionNotify:   {models.EventCreated, models.EventNotified, models.EventRejected},
	models.ActionDeclare:  {models.EventCreated, models.EventNotified, models.EventRejected},
	models.ActionValidate: {models.EventDeclared},
	models.ActionRegister: {models.EventDeclared, models.EventValidated},
	models.ActionReject:   {models.EventNotified, models.EventDeclared, models.EventValidated},
	models.ActionArchive: {
		models.EventCreated, models.EventNotified, models.EventDeclared,
		models.EventValidated, models.EventRejected,
	},
	models.ActionPrintCertificate:  {models.EventRegistered, models.EventCertified},
	models.ActionRequestCorrection: {models.EventRegistered, models.EventCertified},
}

// blockedByDuplicate cannot proceed while a potential duplicate is unresolved.
var blockedByDuplicate = map[models.ActionType]bool{
	models.ActionValidate: true,
	models.ActionRegister: true,
}

// checkTransition validates req against the folded state. It never mutates.
func checkTransition(state models.EventState, cfg eventconfig.ActionConfig, req models.ActionRequest) error {
	if froms, ok := allowedFrom[req.Type]; ok && !slices.Contains(froms, state.Status) {
		return invalid("%s is not allowed while the event is %s", req.Type, state.Status)
	}
	if blockedByDuplicate[req.Type] && state.HasFlag(models.FlagPotentialDuplicate) {
		return invalid("%s is blocked until the potential duplicate is resolved", req.Type)
	}

	switch req.Type {
	case models.ActionPrintCertificate:
		if state.PendingCorrectionID != "" {
			return invalid("certificate cannot be printed while a correction is pending")
		}
	case models.ActionRequestCorrection:
		if state.PendingCorrectionID != "" {
			return invalid("a correction is already pending")
		}
		if len(req.Declaration) == 0 {
			return invalid("correction must change at least one field")
		}
	case models.ActionApproveCorrection, models.ActionRejectCorrection:
		if req.OriginalActionID == "" {
			return invalid("originalActionId is required")
		}
		if state.PendingCorrectionID != req.OriginalActionID {
			return invalid("action %s is not a pending correction request", req.OriginalActionID)
		}
	case models.ActionMarkAsDuplicate:
		if !state.HasFlag(models.FlagPotentialDuplicate) {
			return invalid("event is not flagged as a potential duplicate")
		}
		if req.CanonicalID == "" || !slices.Contains(state.Duplicates, req.CanonicalID) {
			return invalid("canonicalId must be one of the detected duplicates")
		}
	case models.ActionMarkAsNotDuplicate:
		if !state.HasFlag(models.FlagPotentialDuplicate) {
			return invalid("event is not flagged as a potential duplicate")
		}
	}

	if state.Status == models.EventArchived && req.Type != models.ActionAssign && req.Type != models.ActionUnassign {
		return invalid("event is archived")
	}
	return checkRequiredFields(state.Data, cfg, req.Declaration)
}

// checkRequiredFields requires every configured field to be present in the
// current data or the request's declaration.
func checkRequiredFields(data models.Fields, cfg eventconfig.ActionConfig, declaration models.Fields) error {
	var missing []string
	for _, field := range cfg.RequiredFields {
		if present(declaration, field) || present(data, field) {
			continue
		}
		missing = append(missing, field)
	}
	if len(missing) > 0 {
		return invalid("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func present(data models.Fields, path string) bool {
	v, ok := dedup.Lookup(data, path)
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// checkPendingDrafts refuses any mutating action other than a retry of the
// pending confirmation itself. The draft was confirmed against the data at
// request time, so nothing may change that data or the status until the
// draft is finalized.
func checkPendingDrafts(drafts []models.Action, req models.ActionRequest) error {
	for _, d := range drafts {
		if d.Type != req.Type {
			return invalid("%s is not allowed while %s awaits confirmation", req.Type, d.Type)
		}
	}
	return nil
}

// requireHolder enforces the assignment lock for mutating actions.
func requireHolder(state models.EventState, user string) error {
	if state.AssignedTo == "" {
		return dErrors.New(dErrors.CodeAssignmentRequired, "event is not assigned; assign it before acting")
	}
	if state.AssignedTo != user {
		return dErrors.New(dErrors.CodeAssignmentRequired, "event is assigned to another user")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf(format, args...))
}

package fold

import "registrar/internal/event/models"

// PendingConfirmation returns the unfinalized Requested action of type t, if any.
// An action is finalized once a later action of the same type references it via
// OriginalActionID with a terminal status.
func PendingConfirmation(actions []models.Action, t models.ActionType) (models.Action, bool) {
	finalized := make(map[string]bool)
	for _, a := range actions {
		if a.Type == t && a.OriginalActionID != "" && a.Status != models.StatusRequested {
			finalized[a.OriginalActionID] = true
		}
	}
	var pending models.Action
	found := false
	for _, a := range Sorted(actions) {
		if a.Type != t || a.Status != models.StatusRequested || finalized[a.ID] {
			continue
		}
		pending = a
		found = true
	}
	return pending, found
}

// PendingDrafts returns the unfinalized confirmation drafts of every type in
// ledger order.
func PendingDrafts(actions []models.Action) []models.Action {
	finalizedBy := make(map[string]models.ActionType)
	for _, a := range actions {
		if a.OriginalActionID != "" && a.Status != models.StatusRequested {
			finalizedBy[a.OriginalActionID] = a.Type
		}
	}
	var drafts []models.Action
	for _, a := range Sorted(actions) {
		if a.Draft && a.Status == models.StatusRequested && finalizedBy[a.ID] != a.Type {
			drafts = append(drafts, a)
		}
	}
	return drafts
}

// FindAction returns the action with the given id.
func FindAction(actions []models.Action, id string) (models.Action, bool) {
	for _, a := range actions {
		if a.ID == id {
			return a, true
		}
	}
	return models.Action{}, false
}

package fold

import (
	"sort"

	"registrar/internal/event/models"
)

// Fold replays the ledger into its current state.
func Fold(actions []models.Action) models.EventState {
	return replay(Sorted(actions), "")
}

// Before replays the ledger up to, but excluding, actionID. It is how a
// correction is undone: the state a request was raised against is exactly the
// fold of everything that preceded it. ok is false when actionID is unknown.
func Before(actions []models.Action, actionID string) (models.EventState, bool) {
	sorted := Sorted(actions)
	for _, a := range sorted {
		if a.ID == actionID {
			return replay(sorted, actionID), true
		}
	}
	return models.EventState{}, false
}

// Sorted returns a copy of actions in replay order.
func Sorted(actions []models.Action) []models.Action {
	out := make([]models.Action, len(actions))
	copy(out, actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func replay(sorted []models.Action, stopAt string) models.EventState {
	state := models.NewEventState()
	corrections := make(map[string]models.Action)
	for _, a := range sorted {
		if stopAt != "" && a.ID == stopAt {
			break
		}
		apply(&state, a, corrections)
	}
	return state
}

func apply(state *models.EventState, a models.Action, corrections map[string]models.Action) {
	if !a.Type.IsMutating() {
		return
	}
	if a.Draft {
		if a.Status == models.StatusRequested {
			applyActionFlag(state.Flags, a.Type, a.Status)
		}
		return
	}
	applyActionFlag(state.Flags, a.Type, a.Status)
	if a.Status != models.StatusAccepted {
		return
	}
	state.UpdatedAt = a.CreatedAt

	switch a.Type {
	case models.ActionCreate:
		state.Status = models.EventCreated
		state.AssignedTo = ""
	case models.ActionAssign:
		state.AssignedTo = a.AssignedTo
	case models.ActionUnassign:
		state.AssignedTo = ""
	case models.ActionNotify:
		state.Status = models.EventNotified
		state.Flags.Add(models.FlagIncomplete)
		overlay(state.Data, a.Declaration, a.Annotation)
	case models.ActionDeclare:
		state.Status = models.EventDeclared
		clearSubmissionFlags(state.Flags)
		overlay(state.Data, a.Declaration, a.Annotation)
	case models.ActionValidate:
		state.Status = models.EventValidated
		clearSubmissionFlags(state.Flags)
		overlay(state.Data, a.Declaration, a.Annotation)
	case models.ActionRegister:
		state.Status = models.EventRegistered
		clearSubmissionFlags(state.Flags)
		if state.PendingCorrectionID == "" {
			state.Flags.Add(models.FlagPendingCertification)
		}
		overlay(state.Data, a.Declaration, a.Annotation)
	case models.ActionReject:
		state.Status = models.EventRejected
		state.Flags.Add(models.FlagRejected)
	case models.ActionArchive:
		state.Status = models.EventArchived
	case models.ActionPrintCertificate:
		state.Status = models.EventCertified
		state.Flags.Remove(models.FlagPendingCertification)
		overlay(state.Data, nil, a.Annotation)
	case models.ActionRequestCorrection:
		corrections[a.ID] = a
		state.PendingCorrectionID = a.ID
		state.Flags.Remove(models.FlagPendingCertification)
		state.Flags.Add(models.FlagCorrectionRequested)
	case models.ActionApproveCorrection:
		req, ok := corrections[a.OriginalActionID]
		if !ok || state.PendingCorrectionID != req.ID {
			return
		}
		state.PendingCorrectionID = ""
		state.Flags.Remove(models.FlagCorrectionRequested)
		state.Flags.Add(models.FlagPendingCertification)
		overlay(state.Data, req.Declaration, req.Annotation)
		overlay(state.Data, nil, a.Annotation)
	case models.ActionRejectCorrection:
		if state.PendingCorrectionID == "" || state.PendingCorrectionID != a.OriginalActionID {
			return
		}
		state.PendingCorrectionID = ""
		state.Flags.Remove(models.FlagCorrectionRequested)
	case models.ActionDuplicateDetected:
		if len(a.Duplicates) == 0 {
			return
		}
		state.Duplicates = append([]string(nil), a.Duplicates...)
		state.Flags.Add(models.FlagPotentialDuplicate)
	case models.ActionMarkAsDuplicate:
		state.CanonicalID = a.CanonicalID
		state.Flags.Remove(models.FlagPotentialDuplicate)
	case models.ActionMarkAsNotDuplicate:
		if len(a.Dismissed) > 0 && state.DismissedDuplicates == nil {
			state.DismissedDuplicates = make(map[string]string, len(a.Dismissed))
		}
		for id, fingerprint := range a.Dismissed {
			state.DismissedDuplicates[id] = fingerprint
		}
		state.Duplicates = []string{}
		state.Flags.Remove(models.FlagPotentialDuplicate)
	}
}

// applyActionFlag keeps at most one "{type}:{status}" flag per action type.
// Accepted is silent.
func applyActionFlag(flags models.FlagSet, t models.ActionType, status models.ActionStatus) {
	requested := t.Flag(models.StatusRequested)
	rejected := t.Flag(models.StatusRejected)
	flags.Remove(requested)
	flags.Remove(rejected)
	switch status {
	case models.StatusRequested:
		flags.Add(requested)
	case models.StatusRejected:
		flags.Add(rejected)
	}
}

func clearSubmissionFlags(flags models.FlagSet) {
	flags.Remove(models.FlagIncomplete)
	flags.Remove(models.FlagRejected)
}

// overlay shallow-merges declaration then annotation into data. Later values win.
func overlay(data models.Fields, declaration, annotation models.Fields) {
	for k, v := range declaration {
		data[k] = v
	}
	for k, v := range annotation {
		data[k] = v
	}
}

package fold

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/event/models"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// ledger builds actions one second apart so replay order is unambiguous.
type ledger struct {
	actions []models.Action
}

func (l *ledger) add(a models.Action) models.Action {
	n := len(l.actions)
	if a.ID == "" {
		a.ID = fmt.Sprintf("a%03d", n)
	}
	if a.Status == "" {
		a.Status = models.StatusAccepted
	}
	a.EventID = "event-1"
	a.CreatedBy = "user-1"
	a.CreatedAt = baseTime.Add(time.Duration(n) * time.Second)
	l.actions = append(l.actions, a)
	return a
}

func (l *ledger) state() models.EventState {
	return Fold(l.actions)
}

func declared() *ledger {
	l := &ledger{}
	l.add(models.Action{Type: models.ActionCreate})
	l.add(models.Action{Type: models.ActionDeclare, Declaration: models.Fields{"child.name": "Ada", "child.dob": "2025-01-01"}})
	l.add(models.Action{Type: models.ActionValidate})
	return l
}

func TestFoldInitialState(t *testing.T) {
	state := Fold(nil)
	assert.Equal(t, models.EventCreated, state.Status)
	assert.Empty(t, state.Flags)
	assert.Empty(t, state.Data)
	assert.Empty(t, state.Duplicates)
}

func TestFoldRegistrationConfirmation(t *testing.T) {
	t.Run("pending trigger leaves only the requested flag", func(t *testing.T) {
		l := declared()
		l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true,
			Declaration: models.Fields{"child.name": "Changed"}})

		state := l.state()
		assert.True(t, state.HasFlag("register:requested"))
		assert.False(t, state.HasFlag("register:accepted"))
		assert.False(t, state.HasFlag("register:rejected"))
		assert.Equal(t, models.EventValidated, state.Status, "draft must not change status")
		assert.Equal(t, "Ada", state.Data["child.name"], "draft must not change data")
	})

	t.Run("accepted finalize is silent and merges returned fields", func(t *testing.T) {
		l := declared()
		draft := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
		l.add(models.Action{Type: models.ActionRegister, OriginalActionID: draft.ID,
			Declaration: models.Fields{"registrationNumber": "SOME0REG0NUM"}})

		state := l.state()
		for f := range state.Flags {
			assert.NotContains(t, string(f), "register:")
		}
		assert.Equal(t, "SOME0REG0NUM", state.Data["registrationNumber"])
		assert.Equal(t, models.EventRegistered, state.Status)
		assert.True(t, state.HasFlag(models.FlagPendingCertification))
	})

	t.Run("rejected finalize replaces requested", func(t *testing.T) {
		l := declared()
		draft := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
		l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRejected, OriginalActionID: draft.ID,
			Declaration: models.Fields{"registrationNumber": "IGNORED"}})

		state := l.state()
		assert.True(t, state.HasFlag("register:rejected"))
		assert.False(t, state.HasFlag("register:requested"))
		assert.NotContains(t, state.Data, "registrationNumber")
		assert.False(t, state.HasFlag(models.FlagPendingCertification))
	})

	t.Run("rejected flag persists until a later attempt succeeds", func(t *testing.T) {
		l := declared()
		first := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
		l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRejected, OriginalActionID: first.ID})
		l.add(models.Action{Type: models.ActionRead})
		require.True(t, l.state().HasFlag("register:rejected"))

		second := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
		l.add(models.Action{Type: models.ActionRegister, OriginalActionID: second.ID})
		state := l.state()
		assert.False(t, state.HasFlag("register:rejected"))
		assert.False(t, state.HasFlag("register:requested"))
	})
}

func TestFoldCertificationAndCorrection(t *testing.T) {
	l := declared()
	l.add(models.Action{Type: models.ActionRegister})
	require.True(t, l.state().HasFlag(models.FlagPendingCertification))

	l.add(models.Action{Type: models.ActionPrintCertificate})
	state := l.state()
	assert.False(t, state.HasFlag(models.FlagPendingCertification))
	assert.Equal(t, models.EventCertified, state.Status)

	req := l.add(models.Action{Type: models.ActionRequestCorrection,
		Declaration: models.Fields{"child.name": "Ada Lovelace"}})
	state = l.state()
	assert.True(t, state.HasFlag(models.FlagCorrectionRequested))
	assert.False(t, state.HasFlag(models.FlagPendingCertification))
	assert.Equal(t, req.ID, state.PendingCorrectionID)
	assert.Equal(t, "Ada", state.Data["child.name"], "request must not apply fields")

	t.Run("approve restores pending certification and applies fields", func(t *testing.T) {
		approved := &ledger{actions: append([]models.Action(nil), l.actions...)}
		approved.add(models.Action{Type: models.ActionApproveCorrection, OriginalActionID: req.ID})
		state := approved.state()
		assert.True(t, state.HasFlag(models.FlagPendingCertification))
		assert.False(t, state.HasFlag(models.FlagCorrectionRequested))
		assert.Equal(t, "Ada Lovelace", state.Data["child.name"])
		assert.Empty(t, state.PendingCorrectionID)
		assert.Equal(t, models.EventCertified, state.Status, "base status is untouched")
	})

	t.Run("reject removes the request without restoring certification", func(t *testing.T) {
		rejected := &ledger{actions: append([]models.Action(nil), l.actions...)}
		rejected.add(models.Action{Type: models.ActionRejectCorrection, OriginalActionID: req.ID, Reason: "no evidence"})
		state := rejected.state()
		assert.False(t, state.HasFlag(models.FlagCorrectionRequested))
		assert.False(t, state.HasFlag(models.FlagPendingCertification))
		assert.Equal(t, "Ada", state.Data["child.name"])
	})

	t.Run("before replays up to the request", func(t *testing.T) {
		before, ok := Before(l.actions, req.ID)
		require.True(t, ok)
		assert.Equal(t, models.EventCertified, before.Status)
		assert.False(t, before.HasFlag(models.FlagCorrectionRequested))
		assert.Empty(t, before.PendingCorrectionID)

		_, ok = Before(l.actions, "missing")
		assert.False(t, ok)
	})
}

func TestFoldIncompleteAndRejected(t *testing.T) {
	l := &ledger{}
	l.add(models.Action{Type: models.ActionCreate})
	l.add(models.Action{Type: models.ActionNotify, Declaration: models.Fields{"child.name": "Ada"}})
	state := l.state()
	assert.True(t, state.HasFlag(models.FlagIncomplete))
	assert.Equal(t, models.EventNotified, state.Status)

	l.add(models.Action{Type: models.ActionReject, Reason: "missing documents"})
	state = l.state()
	assert.True(t, state.HasFlag(models.FlagRejected))
	assert.Equal(t, models.EventRejected, state.Status)

	l.add(models.Action{Type: models.ActionDeclare, Declaration: models.Fields{"child.dob": "2025-01-01"}})
	state = l.state()
	assert.False(t, state.HasFlag(models.FlagIncomplete))
	assert.False(t, state.HasFlag(models.FlagRejected))
	assert.Equal(t, models.Fields{"child.name": "Ada", "child.dob": "2025-01-01"}, state.Data)
}

func TestFoldDuplicates(t *testing.T) {
	l := declared()
	l.add(models.Action{Type: models.ActionDuplicateDetected, Duplicates: []string{"event-0"}})
	state := l.state()
	assert.True(t, state.HasFlag(models.FlagPotentialDuplicate))
	assert.Equal(t, []string{"event-0"}, state.Duplicates)

	t.Run("not duplicate clears and remembers dismissal", func(t *testing.T) {
		dismissed := &ledger{actions: append([]models.Action(nil), l.actions...)}
		dismissed.add(models.Action{Type: models.ActionMarkAsNotDuplicate, Dismissed: map[string]string{"event-0": "fp"}})
		state := dismissed.state()
		assert.False(t, state.HasFlag(models.FlagPotentialDuplicate))
		assert.Empty(t, state.Duplicates)
		assert.Equal(t, map[string]string{"event-0": "fp"}, state.DismissedDuplicates)
	})

	t.Run("duplicate keeps the list and records the canonical event", func(t *testing.T) {
		marked := &ledger{actions: append([]models.Action(nil), l.actions...)}
		marked.add(models.Action{Type: models.ActionMarkAsDuplicate, CanonicalID: "event-0"})
		state := marked.state()
		assert.False(t, state.HasFlag(models.FlagPotentialDuplicate))
		assert.Equal(t, "event-0", state.CanonicalID)
		assert.Equal(t, []string{"event-0"}, state.Duplicates)
	})
}

func TestFoldAssignment(t *testing.T) {
	l := &ledger{}
	l.add(models.Action{Type: models.ActionCreate})
	l.add(models.Action{Type: models.ActionAssign, AssignedTo: "user-1"})
	assert.Equal(t, "user-1", l.state().AssignedTo)
	l.add(models.Action{Type: models.ActionUnassign})
	assert.Empty(t, l.state().AssignedTo)
}

func TestFoldOrdering(t *testing.T) {
	t.Run("replays by createdAt regardless of slice order", func(t *testing.T) {
		l := declared()
		l.add(models.Action{Type: models.ActionReject})
		reversed := make([]models.Action, len(l.actions))
		for i, a := range l.actions {
			reversed[len(l.actions)-1-i] = a
		}
		assert.Equal(t, Fold(l.actions), Fold(reversed))
		assert.Equal(t, models.EventRejected, Fold(reversed).Status)
	})

	t.Run("ties are broken by id", func(t *testing.T) {
		at := baseTime
		actions := []models.Action{
			{ID: "b", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: at, Declaration: models.Fields{"x": "b"}},
			{ID: "a", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: at, Declaration: models.Fields{"x": "a"}},
		}
		assert.Equal(t, "b", Fold(actions).Data["x"])
	})

	t.Run("does not reorder the caller's slice", func(t *testing.T) {
		actions := []models.Action{
			{ID: "2", Type: models.ActionValidate, Status: models.StatusAccepted, CreatedAt: baseTime.Add(time.Second)},
			{ID: "1", Type: models.ActionDeclare, Status: models.StatusAccepted, CreatedAt: baseTime},
		}
		Fold(actions)
		assert.Equal(t, "2", actions[0].ID)
	})
}

func TestPendingConfirmation(t *testing.T) {
	l := declared()
	_, ok := PendingConfirmation(l.actions, models.ActionRegister)
	assert.False(t, ok)

	draft := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
	pending, ok := PendingConfirmation(l.actions, models.ActionRegister)
	require.True(t, ok)
	assert.Equal(t, draft.ID, pending.ID)

	l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRejected, OriginalActionID: draft.ID})
	_, ok = PendingConfirmation(l.actions, models.ActionRegister)
	assert.False(t, ok)
}

func TestPendingDrafts(t *testing.T) {
	l := declared()
	assert.Empty(t, PendingDrafts(l.actions))

	draft := l.add(models.Action{Type: models.ActionRegister, Status: models.StatusRequested, Draft: true})
	drafts := PendingDrafts(l.actions)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	t.Run("a reference from another action type does not finalize", func(t *testing.T) {
		l.add(models.Action{Type: models.ActionDeclare, OriginalActionID: draft.ID})
		assert.Len(t, PendingDrafts(l.actions), 1)
	})

	t.Run("a terminal action of the same type finalizes", func(t *testing.T) {
		l.add(models.Action{Type: models.ActionRegister, Status: models.StatusAccepted, OriginalActionID: draft.ID})
		assert.Empty(t, PendingDrafts(l.actions))
	})
}

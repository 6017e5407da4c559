package models

import (
	"strings"
	"time"
)

// ActionType identifies what an appended action does to an event.
// Invariant: values are one of the constants below; parse external input with
// ParseActionType.
type ActionType string

const (
	ActionCreate             ActionType = "CREATE"
	ActionAssign             ActionType = "ASSIGN"
	ActionUnassign           ActionType = "UNASSIGN"
	ActionRead               ActionType = "READ"
	ActionNotify             ActionType = "NOTIFY"
	ActionDeclare            ActionType = "DECLARE"
	ActionValidate           ActionType = "VALIDATE"
	ActionRegister           ActionType = "REGISTER"
	ActionReject             ActionType = "REJECT"
	ActionArchive            ActionType = "ARCHIVE"
	ActionPrintCertificate   ActionType = "PRINT_CERTIFICATE"
	ActionRequestCorrection  ActionType = "REQUEST_CORRECTION"
	ActionApproveCorrection  ActionType = "APPROVE_CORRECTION"
	ActionRejectCorrection   ActionType = "REJECT_CORRECTION"
	ActionDuplicateDetected  ActionType = "DUPLICATE_DETECTED"
	ActionMarkAsDuplicate    ActionType = "MARK_AS_DUPLICATE"
	ActionMarkAsNotDuplicate ActionType = "MARK_AS_NOT_DUPLICATE"
)

var actionTypes = map[ActionType]bool{
	ActionCreate:             true,
	ActionAssign:             true,
	ActionUnassign:           true,
	ActionRead:               true,
	ActionNotify:             true,
	ActionDeclare:            true,
	ActionValidate:           true,
	ActionRegister:           true,
	ActionReject:             true,
	ActionArchive:            true,
	ActionPrintCertificate:   true,
	ActionRequestCorrection:  true,
	ActionApproveCorrection:  true,
	ActionRejectCorrection:   true,
	ActionDuplicateDetected:  true,
	ActionMarkAsDuplicate:    true,
	ActionMarkAsNotDuplicate: true,
}

// ParseActionType validates an action type from external input. Lower-case input
// is accepted.
func ParseActionType(s string) (ActionType, bool) {
	t := ActionType(strings.ToUpper(s))
	return t, actionTypes[t]
}

// IsMutating reports whether the action changes the event and therefore needs
// the assignment lock.
func (t ActionType) IsMutating() bool {
	return t != ActionRead
}

// Flag returns the action flag for this type in the given confirmation status,
// e.g. "register:requested".
func (t ActionType) Flag(status ActionStatus) Flag {
	return Flag(strings.ToLower(string(t)) + ":" + strings.ToLower(string(status)))
}

// ActionStatus is the confirmation status of an action.
type ActionStatus string

const (
	StatusRequested ActionStatus = "Requested"
	StatusAccepted  ActionStatus = "Accepted"
	StatusRejected  ActionStatus = "Rejected"
)

// Fields is a partial field map keyed by form field path ("child.name").
type Fields map[string]any

// Clone returns a shallow copy; nil stays nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Action is one immutable, appended record of an attempted change to an event.
type Action struct {
	ID          string       `json:"id"`
	EventID     string       `json:"eventId"`
	Type        ActionType   `json:"type"`
	Status      ActionStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	CreatedBy   string       `json:"createdBy"`
	Draft       bool         `json:"draft"`
	Declaration Fields       `json:"declaration,omitempty"`
	Annotation  Fields       `json:"annotation,omitempty"`

	// OriginalActionID links a finalizing, correction-resolving or duplicate
	// action to the action it concerns. It never replaces the original.
	OriginalActionID string `json:"originalActionId,omitempty"`

	AssignedTo     string            `json:"assignedTo,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	KeepAssignment bool              `json:"keepAssignment,omitempty"`
	CanonicalID    string            `json:"canonicalId,omitempty"`
	Duplicates     []string          `json:"duplicates,omitempty"`
	Dismissed      map[string]string `json:"dismissed,omitempty"`
}

// IsPendingMarker reports whether the action is an unfinalized confirmation request.
func (a Action) IsPendingMarker() bool {
	return a.Status == StatusRequested
}

// Before orders actions by (createdAt, id), the replay order of the fold.
func (a Action) Before(b Action) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

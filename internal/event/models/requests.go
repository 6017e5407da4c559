package models

// CreateEventRequest is the body of POST /events.
type CreateEventRequest struct {
	Type string `json:"type"`
}

// ActionRequest is a client's request to append an action to an event.
type ActionRequest struct {
	EventID          string     `json:"-"`
	Type             ActionType `json:"-"`
	Declaration      Fields     `json:"declaration,omitempty"`
	Annotation       Fields     `json:"annotation,omitempty"`
	OriginalActionID string     `json:"originalActionId,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	CanonicalID      string     `json:"canonicalId,omitempty"`
	KeepAssignment   bool       `json:"keepAssignment,omitempty"`
	IdempotencyKey   string     `json:"-"`
}

// ConfirmationOutcome describes how an external authority resolved a
// confirmable action.
type ConfirmationOutcome string

const (
	OutcomeNotRequired ConfirmationOutcome = "not_required"
	OutcomeAccepted    ConfirmationOutcome = "accepted"
	OutcomeRejected    ConfirmationOutcome = "rejected"
	OutcomePending     ConfirmationOutcome = "pending"
)

// ActionResult is returned after a request has been handled.
type ActionResult struct {
	ActionID     string              `json:"actionId"`
	Outcome      ConfirmationOutcome `json:"outcome"`
	Event        EventView           `json:"event"`
	Replayed     bool                `json:"replayed,omitempty"`
	DuplicatesOf []string            `json:"duplicatesOf,omitempty"`
}

// StoredResult is an ActionResult kept under an idempotency key together with
// the request it answered, so a reused key can be matched against the new
// request.
type StoredResult struct {
	ActionType  ActionType   `json:"actionType"`
	RequestedBy string       `json:"requestedBy"`
	Result      ActionResult `json:"result"`
}

// CorrectionPreview shows the state a correction request was raised against and
// the field values it asks to change.
type CorrectionPreview struct {
	RequestActionID string     `json:"requestActionId"`
	Before          EventState `json:"before"`
	Requested       Fields     `json:"requested"`
	Pending         bool       `json:"pending"`
}

package trigger

import (
	"errors"
	"fmt"
)

// Category normalizes why a trigger call did not produce a terminal outcome.
type Category string

const (
	// CategoryTimeout means the call exceeded its deadline.
	CategoryTimeout Category = "timeout"

	// CategoryOutage covers network failures and non-4xx error statuses.
	CategoryOutage Category = "outage"

	// CategoryCircuitOpen means the call was skipped after repeated outages.
	CategoryCircuitOpen Category = "circuit_open"

	// CategoryBadData means a success response carried an unreadable body.
	CategoryBadData Category = "bad_data"

	// CategoryRejected is a 4xx answer; the outcome is terminal.
	CategoryRejected Category = "rejected"
)

// Error describes a trigger call that ended without acceptance.
type Error struct {
	Category   Category
	ActionType string
	StatusCode int
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("trigger %s [%s]: %s: %v", e.ActionType, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("trigger %s [%s]: %s", e.ActionType, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(category Category, actionType string, status int, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		ActionType: actionType,
		StatusCode: status,
		Message:    message,
		Underlying: underlying,
		Retryable:  category != CategoryRejected,
	}
}

// IsRetryable reports whether the draft behind err may be re-driven.
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// CategoryOf extracts the category, or "" for foreign errors.
func CategoryOf(err error) Category {
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	return ""
}

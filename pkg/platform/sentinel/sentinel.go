package sentinel

import "errors"

// Sentinel errors for storage and infrastructure facts. Ledger, idempotency and
// index stores return these (optionally wrapped); the event service translates
// them into coded domain errors.
//
//   - ErrNotFound: the event or key does not exist
//   - ErrConflict: a row with the same identity already exists
//   - ErrInvalidState: the stored history rejects the write (guard failed)
//   - ErrUnavailable: backing service unreachable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)

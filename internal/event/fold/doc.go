// Package fold derives an event's current state from its action ledger.
//
// Fold is a pure function of the action list: it never reads the clock, never
// touches storage and never consults other events. The only cross-event data it
// sees is what the duplicate detector wrote into its own actions. Callers may run
// it concurrently on any snapshot of the ledger and call it on every read.
//
// Replay order is (createdAt, id). Draft actions never change status, data or
// duplicates; a draft in Requested status contributes only its
// "{type}:requested" marker until a finalizing action supersedes it.
package fold

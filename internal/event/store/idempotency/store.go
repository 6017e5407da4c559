// Package idempotency remembers the result of an action request under the
// client's idempotency key so a retried request returns the stored result
// instead of appending again.
package idempotency

import (
	"time"
)

// DefaultTTL bounds how long results are kept when no TTL is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "idem:"

// scopedKey confines a client key to one event.
func scopedKey(eventID, key string) string {
	return keyPrefix + eventID + ":" + key
}

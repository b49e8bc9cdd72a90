package domain

import "time"

type IdempotencyState string

const (
	IdempotencyPending   IdempotencyState = "pending"
	IdempotencyCompleted IdempotencyState = "completed"
)

// IdempotencyRecord memoizes the outcome of an operation keyed by a
// client-supplied key. Once completed it is never changed. ClaimedAt is when
// the current holder of a pending record took it.
type IdempotencyRecord struct {
	Key         string
	State       IdempotencyState
	Result      []byte
	CreatedAt   time.Time
	ClaimedAt   time.Time
	CompletedAt *time.Time
}

// Stale reports whether a pending claim was taken at or before cutoff.
func (r IdempotencyRecord) Stale(cutoff time.Time) bool {
	return r.State == IdempotencyPending && !r.ClaimedAt.After(cutoff)
}

package models

import "time"

// PendingAction is a queued mutation intent not yet confirmed by the
// remote booking service. Its ID doubles as the idempotency key for
// replays, so it is generated once at enqueue time and never reused.
type PendingAction struct {
	ID            string            `json:"id"`
	BookingID     string            `json:"booking_id"`
	ActionType    string            `json:"action_type"`
	Payload       map[string]string `json:"payload,omitempty"`
	Status        string            `json:"status"`
	AttemptCount  int               `json:"attempt_count"`
	LastError     *string           `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	SyncedAt      *time.Time        `json:"synced_at,omitempty"`
}

// Unsynced reports whether the action still needs a remote commit.
func (a *PendingAction) Unsynced() bool {
	return a.Status == ActionStatusPending || a.Status == ActionStatusRetry
}

// Due reports whether the action may be attempted at the given time,
// honoring the backoff schedule.
func (a *PendingAction) Due(now time.Time) bool {
	if !a.Unsynced() {
		return false
	}
	return a.NextAttemptAt == nil || !a.NextAttemptAt.After(now)
}

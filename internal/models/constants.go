package models

import "time"

// Booking statuses as reported by the remote service and mirrored in
// the local cache.
const (
	StatusPending    = "pending"
	StatusAccepted   = "accepted"
	StatusRejected   = "rejected"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Pending action types.
const (
	ActionAccept       = "accept"
	ActionReject       = "reject"
	ActionComplete     = "complete"
	ActionCancel       = "cancel"
	ActionUpdateStatus = "update_status"
)

// Pending action lifecycle states.
const (
	ActionStatusPending = "pending"
	ActionStatusRetry   = "retry"
	ActionStatusSynced  = "synced"
	ActionStatusFailed  = "failed"
)

// Per-record sync states.
const (
	SyncStateClean       = "clean"
	SyncStatePendingSync = "pending_sync"
	SyncStateConflict    = "conflict"
)

// Notification event types.
const (
	EventNewBooking       = "new_booking"
	EventBookingUpdate    = "booking_update"
	EventBookingCancelled = "booking_cancelled"
	EventChatMessage      = "chat_message"
	EventSyncFailed       = "sync_failed"
)

const (
	// DefaultNotificationCap bounds the persisted notification log.
	DefaultNotificationCap = 100

	// DefaultMaxAttempts is the retry ceiling before an action is
	// parked as failed.
	DefaultMaxAttempts = 5

	// DefaultPruneAge is how long synced queue entries are kept
	// before the retention sweep removes them.
	DefaultPruneAge = 7 * 24 * time.Hour

	// DefaultPollInterval is the connectivity probe cadence.
	DefaultPollInterval = 5 * time.Second

	// DefaultDebounceCount is how many identical consecutive probe
	// results are required before a state change is accepted.
	DefaultDebounceCount = 2
)

// StatusForAction maps a mutation intent onto the optimistic local
// status transition it implies. update_status reads the target status
// from the payload instead.
func StatusForAction(actionType string) (string, bool) {
	switch actionType {
	case ActionAccept:
		return StatusAccepted, true
	case ActionReject:
		return StatusRejected, true
	case ActionComplete:
		return StatusCompleted, true
	case ActionCancel:
		return StatusCancelled, true
	}
	return "", false
}

package models

import "time"

// NotificationEvent is a user-facing event produced by the sync engine
// or by external push triggers. Events live in a capped, newest-first
// log; only the read flag mutates after creation.
type NotificationEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	BookingID string            `json:"booking_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Read      bool              `json:"read"`
	Data      map[string]string `json:"data,omitempty"`
}

// HighPriority reports whether the event should trigger an immediate
// operator alert at publish time, independent of subscriber fan-out.
func (e *NotificationEvent) HighPriority() bool {
	switch e.Type {
	case EventNewBooking, EventBookingCancelled, EventSyncFailed:
		return true
	}
	return false
}

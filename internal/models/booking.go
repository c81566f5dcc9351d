package models

import "time"

// BookingRecord is the client's best-known view of a booking. It is
// created on first fetch or first optimistic mutation and only leaves
// the cache through eviction.
type BookingRecord struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	ServiceName     string    `json:"service_name"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	CustomerName    string    `json:"customer_name"`
	CustomerRef     string    `json:"customer_ref"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CompletionNotes string    `json:"completion_notes,omitempty"`
	SyncState       string    `json:"sync_state"`
	UpdatedAt       time.Time `json:"updated_at"`
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}

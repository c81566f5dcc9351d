package models

import "time"

// DeviceSyncState summarizes the last reconciliation outcome for a
// device, kept in a fast state store for the status surface.
type DeviceSyncState struct {
	DeviceID       string    `json:"device_id"`
	LastSyncAt     time.Time `json:"last_sync_at"`
	CommittedTotal int64     `json:"committed_total"`
	FailedTotal    int64     `json:"failed_total"`
}

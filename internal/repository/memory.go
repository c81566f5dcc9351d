package repository

import (
	"context"
	"sync"

	"booksync/internal/models"
)

// StateRepository stores per-device sync state.
type StateRepository interface {
	GetSyncState(ctx context.Context, deviceID string) (*models.DeviceSyncState, error)
	SetSyncState(ctx context.Context, state *models.DeviceSyncState) error
	ClearSyncState(ctx context.Context, deviceID string) error
}

type MemoryStateRepository struct {
	states sync.Map
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

func (r *MemoryStateRepository) GetSyncState(ctx context.Context, deviceID string) (*models.DeviceSyncState, error) {
	val, ok := r.states.Load(deviceID)
	if !ok {
		return nil, nil
	}
	return val.(*models.DeviceSyncState), nil
}

func (r *MemoryStateRepository) SetSyncState(ctx context.Context, state *models.DeviceSyncState) error {
	r.states.Store(state.DeviceID, state)
	return nil
}

func (r *MemoryStateRepository) ClearSyncState(ctx context.Context, deviceID string) error {
	r.states.Delete(deviceID)
	return nil
}

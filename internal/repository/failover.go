package repository

import (
	"context"
	"sync/atomic"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository prefers the primary store and falls back to
// the secondary when the primary errors, probing for recovery after a
// minute.
type FailoverStateRepository struct {
	primary   StateRepository
	fallback  StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) GetSyncState(ctx context.Context, deviceID string) (*models.DeviceSyncState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetSyncState(ctx, deviceID)
		if err == nil {
			return state, nil
		}
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		state, err := r.primary.GetSyncState(ctx, deviceID)
		if err == nil {
			r.isDown.Store(false)
			return state, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetSyncState(ctx, deviceID)
}

func (r *FailoverStateRepository) SetSyncState(ctx context.Context, state *models.DeviceSyncState) error {
	if !r.isDown.Load() {
		err := r.primary.SetSyncState(ctx, state)
		if err == nil {
			return r.fallback.SetSyncState(ctx, state)
		}
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SetSyncState(ctx, state)
}

func (r *FailoverStateRepository) ClearSyncState(ctx context.Context, deviceID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSyncState(ctx, deviceID)
		if err == nil {
			return r.fallback.ClearSyncState(ctx, deviceID)
		}
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.ClearSyncState(ctx, deviceID)
}

package repository

import (
	"context"
	"testing"
	"time"

	"booksync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(deviceID string) *models.DeviceSyncState {
	return &models.DeviceSyncState{
		DeviceID:       deviceID,
		LastSyncAt:     time.Now().Truncate(time.Second),
		CommittedTotal: 10,
		FailedTotal:    1,
	}
}

func TestMemoryStateRepository(t *testing.T) {
	repo := NewMemoryStateRepository()
	ctx := context.Background()

	got, err := repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.SetSyncState(ctx, testState("dev-1")))

	got, err = repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.CommittedTotal)

	require.NoError(t, repo.ClearSyncState(ctx, "dev-1"))
	got, _ = repo.GetSyncState(ctx, "dev-1")
	assert.Nil(t, got)
}

func TestRedisStateRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()

	got, err := repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	state := testState("dev-1")
	require.NoError(t, repo.SetSyncState(ctx, state))

	got, err = repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.LastSyncAt.Unix(), got.LastSyncAt.Unix())
	assert.Equal(t, int64(1), got.FailedTotal)

	require.NoError(t, repo.ClearSyncState(ctx, "dev-1"))
	got, _ = repo.GetSyncState(ctx, "dev-1")
	assert.Nil(t, got)
}

func TestRedisStateRepositoryNilClient(t *testing.T) {
	repo := NewRedisStateRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetSyncState(ctx, "dev-1")
	assert.Error(t, err)
	assert.Error(t, repo.SetSyncState(ctx, testState("dev-1")))
	assert.Error(t, repo.ClearSyncState(ctx, "dev-1"))
}

func TestFailoverFallsBackOnPrimaryError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	primary := NewRedisStateRepository(client, time.Hour)
	fallback := NewMemoryStateRepository()
	logger := zerolog.Nop()
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	state := testState("dev-1")
	require.NoError(t, repo.SetSyncState(ctx, state))

	// Kill the primary; reads must keep working from the fallback.
	mr.Close()

	got, err := repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(10), got.CommittedTotal)

	// Writes land in the fallback while the primary is down.
	state.CommittedTotal = 20
	require.NoError(t, repo.SetSyncState(ctx, state))
	got, err = repo.GetSyncState(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.CommittedTotal)
}

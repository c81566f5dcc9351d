package queue

import (
	"context"
	"sync"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// Store is the durable backing for queued actions.
type Store interface {
	CreatePendingAction(ctx context.Context, action *models.PendingAction) error
	UpdatePendingAction(ctx context.Context, action *models.PendingAction) error
	DeletePendingAction(ctx context.Context, id string) error
	ListPendingActions(ctx context.Context) ([]models.PendingAction, error)
	PrunePendingActions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Queue is the ordered list of mutation intents awaiting remote
// confirmation. The in-memory slice preserves creation order; the only
// externally promised guarantee is per-entity FIFO. Enqueue always
// succeeds locally; durable writes are best-effort and logged on
// failure.
type Queue struct {
	mu      sync.Mutex
	actions []*models.PendingAction

	store  Store
	logger zerolog.Logger
}

func New(store Store, logger *zerolog.Logger) *Queue {
	return &Queue{
		store:  store,
		logger: logger.With().Str("component", "queue").Logger(),
	}
}

// Load hydrates the queue from the durable store in creation order.
func (q *Queue) Load(ctx context.Context) error {
	actions, err := q.store.ListPendingActions(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = q.actions[:0]
	for i := range actions {
		action := actions[i]
		q.actions = append(q.actions, &action)
	}
	return nil
}

// Enqueue appends the action. The local append cannot fail; a failed
// durable write leaves the in-memory entry authoritative.
func (q *Queue) Enqueue(ctx context.Context, action *models.PendingAction) {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if action.Status == "" {
		action.Status = models.ActionStatusPending
	}

	q.mu.Lock()
	stored := *action
	q.actions = append(q.actions, &stored)
	q.mu.Unlock()

	if err := q.store.CreatePendingAction(ctx, action); err != nil {
		q.logger.Error().Err(err).Str("action_id", action.ID).Msg("persist enqueue failed")
	}
}

// ListUnsynced returns copies of actions still awaiting a remote
// commit, oldest first.
func (q *Queue) ListUnsynced() []models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.PendingAction
	for _, action := range q.actions {
		if action.Unsynced() {
			out = append(out, *action)
		}
	}
	return out
}

// FailedActions returns copies of terminally failed actions, oldest
// first. These are kept for manual reconciliation instead of being
// silently discarded.
func (q *Queue) FailedActions() []models.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.PendingAction
	for _, action := range q.actions {
		if action.Status == models.ActionStatusFailed {
			out = append(out, *action)
		}
	}
	return out
}

// UnsyncedCount reports how many actions still await a remote commit.
func (q *Queue) UnsyncedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, action := range q.actions {
		if action.Unsynced() {
			count++
		}
	}
	return count
}

// MarkSynced records an explicit remote success acknowledgment.
func (q *Queue) MarkSynced(ctx context.Context, id string) {
	now := time.Now()
	q.update(ctx, id, func(a *models.PendingAction) {
		a.Status = models.ActionStatusSynced
		a.SyncedAt = &now
		a.LastError = nil
		a.NextAttemptAt = nil
	})
}

// MarkRetry records a failed attempt and schedules the next one.
func (q *Queue) MarkRetry(ctx context.Context, id string, cause string, nextAttemptAt time.Time) {
	q.update(ctx, id, func(a *models.PendingAction) {
		a.Status = models.ActionStatusRetry
		a.AttemptCount++
		a.LastError = &cause
		a.NextAttemptAt = &nextAttemptAt
	})
}

// MarkFailed parks an action in the terminal failed state. It is never
// retried again and stays visible through FailedActions.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause string) {
	q.update(ctx, id, func(a *models.PendingAction) {
		a.Status = models.ActionStatusFailed
		a.AttemptCount++
		a.LastError = &cause
		a.NextAttemptAt = nil
	})
}

// Remove drops an action from the queue entirely.
func (q *Queue) Remove(ctx context.Context, id string) {
	q.mu.Lock()
	for i, action := range q.actions {
		if action.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if err := q.store.DeletePendingAction(ctx, id); err != nil {
		q.logger.Error().Err(err).Str("action_id", id).Msg("persist remove failed")
	}
}

// PruneOlderThan sweeps synced and terminally failed entries older
// than the given age. Unsynced entries are a correctness hazard to
// prune and are always kept.
func (q *Queue) PruneOlderThan(ctx context.Context, age time.Duration) int {
	cutoff := time.Now().Add(-age)

	q.mu.Lock()
	kept := q.actions[:0]
	removed := 0
	for _, action := range q.actions {
		terminal := action.Status == models.ActionStatusSynced || action.Status == models.ActionStatusFailed
		if terminal && action.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, action)
	}
	q.actions = kept
	q.mu.Unlock()

	if removed > 0 {
		if _, err := q.store.PrunePendingActions(ctx, cutoff); err != nil {
			q.logger.Error().Err(err).Msg("persist prune failed")
		}
	}
	return removed
}

// Get returns a copy of the action by id.
func (q *Queue) Get(id string) (models.PendingAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, action := range q.actions {
		if action.ID == id {
			return *action, true
		}
	}
	return models.PendingAction{}, false
}

// Len reports the total number of entries, synced ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

func (q *Queue) update(ctx context.Context, id string, fn func(*models.PendingAction)) {
	q.mu.Lock()
	var updated *models.PendingAction
	for _, action := range q.actions {
		if action.ID == id {
			fn(action)
			copied := *action
			updated = &copied
			break
		}
	}
	q.mu.Unlock()

	if updated == nil {
		return
	}
	if err := q.store.UpdatePendingAction(ctx, updated); err != nil {
		q.logger.Error().Err(err).Str("action_id", id).Msg("persist update failed")
	}
}

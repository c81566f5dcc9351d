package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"booksync/internal/cache"
	"booksync/internal/metrics"
	"booksync/internal/models"
	"booksync/internal/notify"
	"booksync/internal/queue"
	"booksync/internal/remote"
	"booksync/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownAction is returned for an unrecognized action type.
	ErrUnknownAction = errors.New("unknown action type")

	// ErrMissingStatus is returned when an update_status action
	// carries no target status in its payload.
	ErrMissingStatus = errors.New("update_status requires a status payload")
)

// Network reports the current debounced connectivity state.
type Network interface {
	IsOnline() bool
}

// Fetcher pulls the server-side booking view for the refresh merge.
type Fetcher interface {
	FetchBookings(ctx context.Context, since time.Time) ([]models.BookingRecord, error)
}

// MetaStore persists the last-sync timestamp and drain counters.
type MetaStore interface {
	GetSyncMeta(ctx context.Context) (lastSyncAt time.Time, committed, failed int64, err error)
	SetSyncMeta(ctx context.Context, lastSyncAt time.Time, committed, failed int64) error
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Ran       bool
	Committed int
	Retried   int
	Failed    int
	Skipped   int
}

// Engine is the single place allowed to mutate the local cache and the
// pending action queue together, and the only caller of the remote
// commit contract. Every local mutation is applied optimistically and
// queued; queued actions are replayed per-entity FIFO on each drain.
type Engine struct {
	cache      *cache.Cache
	queue      *queue.Queue
	dispatcher *notify.Dispatcher
	network    Network
	committer  remote.Committer
	fetcher    Fetcher
	meta       MetaStore
	states     repository.StateRepository

	deviceID     string
	retry        RetryPolicy
	pruneAge     time.Duration
	refreshEvery time.Duration
	logger       zerolog.Logger

	mu             sync.Mutex
	syncInProgress atomic.Bool
}

// Options carries the engine's collaborators and tuning.
type Options struct {
	Cache      *cache.Cache
	Queue      *queue.Queue
	Dispatcher *notify.Dispatcher
	Network    Network
	Committer  remote.Committer
	Fetcher    Fetcher
	Meta       MetaStore
	States     repository.StateRepository

	DeviceID     string
	Retry        RetryPolicy
	PruneAge     time.Duration
	RefreshEvery time.Duration
	Logger       *zerolog.Logger
}

func NewEngine(opts Options) *Engine {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = models.DefaultMaxAttempts
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	pruneAge := opts.PruneAge
	if pruneAge == 0 {
		pruneAge = models.DefaultPruneAge
	}

	return &Engine{
		cache:        opts.Cache,
		queue:        opts.Queue,
		dispatcher:   opts.Dispatcher,
		network:      opts.Network,
		committer:    opts.Committer,
		fetcher:      opts.Fetcher,
		meta:         opts.Meta,
		states:       opts.States,
		deviceID:     opts.DeviceID,
		retry:        retry,
		pruneAge:     pruneAge,
		refreshEvery: opts.RefreshEvery,
		logger:       opts.Logger.With().Str("component", "sync").Logger(),
	}
}

// AcceptBooking optimistically marks the booking accepted and queues
// the remote commit.
func (e *Engine) AcceptBooking(ctx context.Context, bookingID string) (models.PendingAction, error) {
	return e.Mutate(ctx, bookingID, models.ActionAccept, nil)
}

// RejectBooking marks the booking rejected with an optional reason.
func (e *Engine) RejectBooking(ctx context.Context, bookingID, reason string) (models.PendingAction, error) {
	payload := map[string]string{}
	if reason != "" {
		payload["reason"] = reason
	}
	return e.Mutate(ctx, bookingID, models.ActionReject, payload)
}

// CompleteBooking marks the booking completed with optional notes.
func (e *Engine) CompleteBooking(ctx context.Context, bookingID, notes string) (models.PendingAction, error) {
	payload := map[string]string{}
	if notes != "" {
		payload["notes"] = notes
	}
	return e.Mutate(ctx, bookingID, models.ActionComplete, payload)
}

// CancelBooking marks the booking cancelled.
func (e *Engine) CancelBooking(ctx context.Context, bookingID, reason string) (models.PendingAction, error) {
	payload := map[string]string{}
	if reason != "" {
		payload["reason"] = reason
	}
	return e.Mutate(ctx, bookingID, models.ActionCancel, payload)
}

// UpdateBooking applies a generic status update.
func (e *Engine) UpdateBooking(ctx context.Context, bookingID, status string, extra map[string]string) (models.PendingAction, error) {
	payload := map[string]string{"status": status}
	for k, v := range extra {
		payload[k] = v
	}
	return e.Mutate(ctx, bookingID, models.ActionUpdateStatus, payload)
}

// Mutate applies the local state transition unconditionally, appends a
// pending action and, when online, attempts one immediate best-effort
// remote commit. It never fails for sync-related reasons; only payload
// validation errors are synchronous.
func (e *Engine) Mutate(ctx context.Context, bookingID, actionType string, payload map[string]string) (models.PendingAction, error) {
	status, err := e.targetStatus(actionType, payload)
	if err != nil {
		return models.PendingAction{}, err
	}

	now := time.Now()

	e.mu.Lock()
	rec, ok := e.cache.Get(bookingID)
	if !ok {
		rec = models.BookingRecord{ID: bookingID, Status: models.StatusPending}
	}
	rec.Status = status
	if reason := payload["reason"]; reason != "" {
		rec.RejectionReason = reason
	}
	if notes := payload["notes"]; notes != "" {
		rec.CompletionNotes = notes
	}
	rec.SyncState = models.SyncStatePendingSync
	rec.UpdatedAt = now
	e.cache.Put(rec)

	action := models.PendingAction{
		ID:         uuid.NewString(),
		BookingID:  bookingID,
		ActionType: actionType,
		Payload:    payload,
		Status:     models.ActionStatusPending,
		CreatedAt:  now,
	}
	e.queue.Enqueue(ctx, &action)
	e.mu.Unlock()

	e.dispatcher.Publish(ctx, mutationEvent(&rec, actionType))
	metrics.SetQueueDepth(e.queue.UnsyncedCount())

	e.logger.Debug().
		Str("booking_id", bookingID).
		Str("action", actionType).
		Str("action_id", action.ID).
		Bool("online", e.network.IsOnline()).
		Msg("mutation queued")

	if e.network.IsOnline() {
		e.commitEntity(ctx, bookingID)
		metrics.SetQueueDepth(e.queue.UnsyncedCount())
	}

	return action, nil
}

// commitEntity replays the booking's unsynced actions in creation
// order, stopping at the first failure or not-yet-due entry. An older
// action parked in backoff therefore holds everything queued behind it
// for that booking. It shares the drain guard, so an immediate attempt
// never races a running pass; when a drain holds the guard the actions
// are simply left for it.
func (e *Engine) commitEntity(ctx context.Context, bookingID string) {
	if !e.syncInProgress.CompareAndSwap(false, true) {
		return
	}
	defer e.syncInProgress.Store(false)

	now := time.Now()
	for _, action := range e.queue.ListUnsynced() {
		if action.BookingID != bookingID {
			continue
		}
		if !action.Due(now) {
			return
		}
		current := action
		if e.commitOne(ctx, &current) != commitOK {
			return
		}
	}
}

// Drain replays every due unsynced action in creation order. At most
// one drain runs at a time; a concurrent call is a no-op, as is a call
// while offline. A failure for one entity blocks that entity's later
// actions for the rest of the pass but never aborts the pass.
func (e *Engine) Drain(ctx context.Context) DrainStats {
	var stats DrainStats

	if !e.syncInProgress.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("drain already in progress")
		return stats
	}
	defer e.syncInProgress.Store(false)

	if !e.network.IsOnline() {
		e.logger.Debug().Msg("offline, drain skipped")
		return stats
	}

	stats.Ran = true
	now := time.Now()
	blocked := make(map[string]bool)

	for _, action := range e.queue.ListUnsynced() {
		if blocked[action.BookingID] {
			stats.Skipped++
			continue
		}
		if !action.Due(now) {
			// Not due yet; later actions for the same booking must
			// wait behind it to keep per-entity FIFO.
			blocked[action.BookingID] = true
			stats.Skipped++
			continue
		}

		current := action
		switch e.commitOne(ctx, &current) {
		case commitOK:
			stats.Committed++
		case commitRetry:
			stats.Retried++
			blocked[action.BookingID] = true
		case commitFailed:
			stats.Failed++
			blocked[action.BookingID] = true
		}
	}

	if removed := e.queue.PruneOlderThan(ctx, e.pruneAge); removed > 0 {
		e.logger.Info().Int("removed", removed).Msg("retention sweep")
	}

	e.recordDrain(ctx, now, stats)
	metrics.IncDrain()
	metrics.SetQueueDepth(e.queue.UnsyncedCount())

	e.logger.Info().
		Int("committed", stats.Committed).
		Int("retried", stats.Retried).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("drain finished")

	return stats
}

// ForceSync triggers a manual drain. Safe to call at any time; it is a
// no-op while another drain runs.
func (e *Engine) ForceSync(ctx context.Context) DrainStats {
	return e.Drain(ctx)
}

// HandleConnectivityChange is wired to the connectivity monitor's
// transition signal; the offline→online edge triggers a drain.
func (e *Engine) HandleConnectivityChange(ctx context.Context, online bool) {
	metrics.SetOnline(online)
	if online {
		e.Drain(ctx)
	}
}

// PendingActionsCount reports actions still awaiting remote commit.
func (e *Engine) PendingActionsCount() int {
	return e.queue.UnsyncedCount()
}

// FailedActions returns terminally failed actions for manual
// reconciliation.
func (e *Engine) FailedActions() []models.PendingAction {
	return e.queue.FailedActions()
}

// IsNetworkOnline reports the current connectivity state.
func (e *Engine) IsNetworkOnline() bool {
	return e.network.IsOnline()
}

// Bookings returns the cached booking view, newest local write first.
func (e *Engine) Bookings() []models.BookingRecord {
	return e.cache.All()
}

// Booking returns a single cached record.
func (e *Engine) Booking(id string) (models.BookingRecord, bool) {
	return e.cache.Get(id)
}

// LastSyncAt returns the persisted time of the last drain pass.
func (e *Engine) LastSyncAt(ctx context.Context) time.Time {
	last, _, _, err := e.meta.GetSyncMeta(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("read sync meta failed")
		return time.Time{}
	}
	return last
}

// RefreshFromRemote merges the server-side booking view into the local
// cache. Clean records follow the server (last writer wins by server
// timestamp); records with unconfirmed local mutations are flagged as
// conflicts instead of being overwritten.
func (e *Engine) RefreshFromRemote(ctx context.Context) error {
	if e.fetcher == nil {
		return nil
	}
	if !e.network.IsOnline() {
		return nil
	}

	since := e.LastSyncAt(ctx)
	incoming, err := e.fetcher.FetchBookings(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch bookings: %w", err)
	}

	for i := range incoming {
		e.mergeRemote(ctx, &incoming[i])
	}
	return nil
}

// Run drives the periodic refresh merge until ctx is done. Drains are
// edge-triggered by the connectivity monitor, not by this loop.
func (e *Engine) Run(ctx context.Context) {
	if e.refreshEvery <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(e.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.RefreshFromRemote(ctx); err != nil {
				e.logger.Error().Err(err).Msg("refresh failed")
			}
		}
	}
}

type commitOutcome int

const (
	commitOK commitOutcome = iota
	commitRetry
	commitFailed
)

// commitOne replays a single action against the remote service and
// records the outcome on the queue and the cached record.
func (e *Engine) commitOne(ctx context.Context, action *models.PendingAction) commitOutcome {
	err := e.committer.Commit(ctx, action)
	if err == nil {
		e.queue.MarkSynced(ctx, action.ID)
		e.queue.Remove(ctx, action.ID)
		e.markRecordAfterCommit(action.BookingID)
		metrics.IncCommit("committed")
		return commitOK
	}

	attempt := action.AttemptCount + 1
	terminal := remote.IsTerminal(err) || attempt >= e.retry.MaxAttempts

	if terminal {
		e.queue.MarkFailed(ctx, action.ID, err.Error())
		e.markRecordConflict(action.BookingID)
		metrics.IncCommit("failed")
		e.logger.Error().Err(err).
			Str("action_id", action.ID).
			Str("booking_id", action.BookingID).
			Int("attempts", attempt).
			Msg("action permanently failed")

		e.dispatcher.Publish(ctx, models.NotificationEvent{
			Type:      models.EventSyncFailed,
			Title:     "Sync failed",
			Message:   fmt.Sprintf("%s for booking %s could not be delivered", action.ActionType, action.BookingID),
			BookingID: action.BookingID,
			Data:      map[string]string{"action_id": action.ID, "error": err.Error()},
		})
		return commitFailed
	}

	next := time.Now().Add(e.retry.NextDelay(attempt))
	e.queue.MarkRetry(ctx, action.ID, err.Error(), next)
	metrics.IncCommit("retried")
	e.logger.Warn().Err(err).
		Str("action_id", action.ID).
		Str("booking_id", action.BookingID).
		Int("attempt", attempt).
		Time("next_attempt", next).
		Msg("commit failed, will retry")
	return commitRetry
}

// markRecordAfterCommit flips the record back to clean once nothing
// else is queued for it.
func (e *Engine) markRecordAfterCommit(bookingID string) {
	for _, a := range e.queue.ListUnsynced() {
		if a.BookingID == bookingID {
			return
		}
	}

	rec, ok := e.cache.Get(bookingID)
	if !ok {
		return
	}
	rec.SyncState = models.SyncStateClean
	rec.UpdatedAt = time.Now()
	e.cache.Put(rec)
}

func (e *Engine) markRecordConflict(bookingID string) {
	rec, ok := e.cache.Get(bookingID)
	if !ok {
		return
	}
	rec.SyncState = models.SyncStateConflict
	rec.UpdatedAt = time.Now()
	e.cache.Put(rec)
}

func (e *Engine) mergeRemote(ctx context.Context, server *models.BookingRecord) {
	local, ok := e.cache.Get(server.ID)
	if !ok {
		fresh := *server
		fresh.SyncState = models.SyncStateClean
		fresh.UpdatedAt = time.Now()
		e.cache.Put(fresh)

		e.dispatcher.Publish(ctx, models.NotificationEvent{
			Type:      models.EventNewBooking,
			Title:     "New booking",
			Message:   fmt.Sprintf("%s scheduled for %s", server.ServiceName, server.ScheduledAt.Format(time.RFC1123)),
			BookingID: server.ID,
		})
		return
	}

	if local.SyncState != models.SyncStateClean {
		// Unconfirmed local mutation: do not clobber, flag divergence.
		if server.Status != local.Status {
			local.SyncState = models.SyncStateConflict
		}
		local.ServerUpdatedAt = server.ServerUpdatedAt
		local.UpdatedAt = time.Now()
		e.cache.Put(local)
		return
	}

	if !server.ServerUpdatedAt.After(local.ServerUpdatedAt) {
		return
	}

	statusChanged := server.Status != local.Status
	merged := *server
	merged.SyncState = models.SyncStateClean
	merged.UpdatedAt = time.Now()
	e.cache.Put(merged)

	if statusChanged {
		eventType := models.EventBookingUpdate
		title := "Booking updated"
		if server.Status == models.StatusCancelled {
			eventType = models.EventBookingCancelled
			title = "Booking cancelled"
		}
		e.dispatcher.Publish(ctx, models.NotificationEvent{
			Type:      eventType,
			Title:     title,
			Message:   fmt.Sprintf("booking %s is now %s", server.ID, server.Status),
			BookingID: server.ID,
			Data:      map[string]string{"old": local.Status, "new": server.Status},
		})
	}
}

func (e *Engine) recordDrain(ctx context.Context, at time.Time, stats DrainStats) {
	if err := e.meta.SetSyncMeta(ctx, at, int64(stats.Committed), int64(stats.Failed)); err != nil {
		e.logger.Error().Err(err).Msg("persist sync meta failed")
	}

	if e.states == nil {
		return
	}
	state, err := e.states.GetSyncState(ctx, e.deviceID)
	if err != nil || state == nil {
		state = &models.DeviceSyncState{DeviceID: e.deviceID}
	}
	state.LastSyncAt = at
	state.CommittedTotal += int64(stats.Committed)
	state.FailedTotal += int64(stats.Failed)
	if err := e.states.SetSyncState(ctx, state); err != nil {
		e.logger.Error().Err(err).Msg("persist device sync state failed")
	}
}

func (e *Engine) targetStatus(actionType string, payload map[string]string) (string, error) {
	if status, ok := models.StatusForAction(actionType); ok {
		return status, nil
	}
	if actionType == models.ActionUpdateStatus {
		status := payload["status"]
		if status == "" {
			return "", ErrMissingStatus
		}
		return status, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownAction, actionType)
}

func mutationEvent(rec *models.BookingRecord, actionType string) models.NotificationEvent {
	eventType := models.EventBookingUpdate
	title := "Booking updated"
	if actionType == models.ActionCancel {
		eventType = models.EventBookingCancelled
		title = "Booking cancelled"
	}

	return models.NotificationEvent{
		Type:      eventType,
		Title:     title,
		Message:   fmt.Sprintf("booking %s is now %s", rec.ID, rec.Status),
		BookingID: rec.ID,
		Data:      map[string]string{"status": rec.Status, "action": actionType},
	}
}

package notify

import (
	"context"
	"sync"
	"time"

	"booksync/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the durable backing for the notification log.
type Store interface {
	InsertNotification(ctx context.Context, event *models.NotificationEvent, limit int) error
	ListNotifications(ctx context.Context) ([]models.NotificationEvent, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Alerter receives high-priority events for an immediate user-facing
// alert, independent of the subscriber fan-out.
type Alerter interface {
	Alert(ctx context.Context, event *models.NotificationEvent) error
}

// Listener receives the full current event list on every publish.
type Listener func(events []models.NotificationEvent)

// Dispatcher keeps a capped, newest-first log of user-facing events
// and fans each publish out to subscribers synchronously. Oldest
// events are evicted once the cap is reached; only the read flag
// mutates after creation.
type Dispatcher struct {
	mu          sync.Mutex
	events      []models.NotificationEvent
	subscribers map[int]Listener
	nextID      int

	limit   int
	store   Store
	alerter Alerter
	logger  zerolog.Logger
}

func NewDispatcher(store Store, alerter Alerter, limit int, logger *zerolog.Logger) *Dispatcher {
	if limit <= 0 {
		limit = models.DefaultNotificationCap
	}
	return &Dispatcher{
		subscribers: make(map[int]Listener),
		limit:       limit,
		store:       store,
		alerter:     alerter,
		logger:      logger.With().Str("component", "notify").Logger(),
	}
}

// Load hydrates the log from the durable store, newest first.
func (d *Dispatcher) Load(ctx context.Context) error {
	events, err := d.store.ListNotifications(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(events) > d.limit {
		events = events[:d.limit]
	}
	d.events = events
	return nil
}

// Publish prepends the event, persists it, raises an alert for
// high-priority types and notifies subscribers with the full list.
func (d *Dispatcher) Publish(ctx context.Context, event models.NotificationEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	d.mu.Lock()
	d.events = append([]models.NotificationEvent{event}, d.events...)
	if len(d.events) > d.limit {
		d.events = d.events[:d.limit]
	}
	snapshot := d.snapshotLocked()
	listeners := d.listenersLocked()
	d.mu.Unlock()

	if err := d.store.InsertNotification(ctx, &event, d.limit); err != nil {
		d.logger.Error().Err(err).Str("event_id", event.ID).Msg("persist notification failed")
	}

	if d.alerter != nil && event.HighPriority() {
		if err := d.alerter.Alert(ctx, &event); err != nil {
			d.logger.Error().Err(err).Str("event_id", event.ID).Msg("alert failed")
		}
	}

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Subscribe registers a listener; the returned function removes it.
func (d *Dispatcher) Subscribe(fn Listener) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subscribers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
}

// MarkRead flips the read flag for one event.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) {
	d.mu.Lock()
	for i := range d.events {
		if d.events[i].ID == id {
			d.events[i].Read = true
			break
		}
	}
	d.mu.Unlock()

	if err := d.store.MarkNotificationRead(ctx, id); err != nil {
		d.logger.Error().Err(err).Str("event_id", id).Msg("persist mark read failed")
	}
}

// MarkAllRead flips the read flag for every event.
func (d *Dispatcher) MarkAllRead(ctx context.Context) {
	d.mu.Lock()
	for i := range d.events {
		d.events[i].Read = true
	}
	d.mu.Unlock()

	if err := d.store.MarkAllNotificationsRead(ctx); err != nil {
		d.logger.Error().Err(err).Msg("persist mark all read failed")
	}
}

// UnreadCount reports how many events carry read = false.
func (d *Dispatcher) UnreadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0
	for i := range d.events {
		if !d.events[i].Read {
			count++
		}
	}
	return count
}

// All returns a copy of the current log, newest first.
func (d *Dispatcher) All() []models.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Dispatcher) snapshotLocked() []models.NotificationEvent {
	out := make([]models.NotificationEvent, len(d.events))
	copy(out, d.events)
	return out
}

func (d *Dispatcher) listenersLocked() []Listener {
	out := make([]Listener, 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		out = append(out, fn)
	}
	return out
}

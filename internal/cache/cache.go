package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// Store is the durable backing for cached booking records.
type Store interface {
	UpsertBooking(ctx context.Context, rec *models.BookingRecord) error
	DeleteBooking(ctx context.Context, id string) error
	ListBookings(ctx context.Context) ([]models.BookingRecord, error)
}

type persistOp struct {
	record *models.BookingRecord
	remove string
}

// Cache holds the client's best-known view of each booking. Reads and
// writes are served from memory; every mutation is followed by an
// asynchronous durable write. A failed durable write is logged and the
// in-memory state stays authoritative for the session.
type Cache struct {
	mu      sync.RWMutex
	records map[string]*models.BookingRecord

	store  Store
	logger zerolog.Logger

	ops  chan persistOp
	done chan struct{}
}

func New(store Store, logger *zerolog.Logger) *Cache {
	c := &Cache{
		records: make(map[string]*models.BookingRecord),
		store:   store,
		logger:  logger.With().Str("component", "cache").Logger(),
		ops:     make(chan persistOp, 128),
		done:    make(chan struct{}),
	}
	go c.persistLoop()
	return c
}

// Load hydrates the in-memory view from the durable store.
func (c *Cache) Load(ctx context.Context) error {
	records, err := c.store.ListBookings(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range records {
		rec := records[i]
		c.records[rec.ID] = &rec
	}
	return nil
}

// Get returns a copy of the record, or false when absent.
func (c *Cache) Get(id string) (models.BookingRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return models.BookingRecord{}, false
	}
	return *rec, true
}

// Put upserts a record with last-write-wins by local timestamp. A
// stale write (older UpdatedAt than the cached copy) is ignored.
func (c *Cache) Put(rec models.BookingRecord) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	c.mu.Lock()
	if existing, ok := c.records[rec.ID]; ok && existing.UpdatedAt.After(rec.UpdatedAt) {
		c.mu.Unlock()
		return
	}
	stored := rec
	c.records[rec.ID] = &stored
	c.mu.Unlock()

	c.enqueuePersist(persistOp{record: &rec})
}

// Remove evicts a record from memory and the durable store.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	delete(c.records, id)
	c.mu.Unlock()

	c.enqueuePersist(persistOp{remove: id})
}

// All returns copies of every record, newest local write first.
func (c *Cache) All() []models.BookingRecord {
	c.mu.RLock()
	records := make([]models.BookingRecord, 0, len(c.records))
	for _, rec := range c.records {
		records = append(records, *rec)
	}
	c.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records
}

// Len reports the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Close flushes queued durable writes and stops the persist loop.
func (c *Cache) Close() {
	close(c.ops)
	<-c.done
}

func (c *Cache) enqueuePersist(op persistOp) {
	defer func() {
		// Writes after Close are a programming error upstream; drop
		// them instead of crashing the caller.
		if recover() != nil {
			c.logger.Warn().Msg("persist after close dropped")
		}
	}()
	c.ops <- op
}

func (c *Cache) persistLoop() {
	defer close(c.done)

	for op := range c.ops {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if op.record != nil {
			err = c.store.UpsertBooking(ctx, op.record)
		} else if op.remove != "" {
			err = c.store.DeleteBooking(ctx, op.remove)
		}
		cancel()

		if err != nil {
			// Persistence is best-effort; memory stays authoritative.
			c.logger.Error().Err(err).Msg("durable write failed")
		}
	}
}

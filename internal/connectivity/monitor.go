package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// Probe reports whether the platform currently has connectivity. It is
// injected so the monitor can be driven by a fake in tests.
type Probe interface {
	IsConnected(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) IsConnected(ctx context.Context) bool { return f(ctx) }

// Monitor wraps the connectivity probe into a debounced boolean signal
// with edge-triggered transition callbacks. It is a pure signal
// source: no retries, no side effects beyond notifying listeners
// exactly once per edge.
type Monitor struct {
	probe    Probe
	interval time.Duration
	debounce int
	logger   zerolog.Logger

	online atomic.Bool

	mu        sync.Mutex
	listeners map[int]func(online bool)
	nextID    int
	streak    int
}

func NewMonitor(probe Probe, interval time.Duration, debounce int, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = models.DefaultPollInterval
	}
	if debounce <= 0 {
		debounce = 1
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		debounce:  debounce,
		logger:    logger.With().Str("component", "connectivity").Logger(),
		listeners: make(map[int]func(bool)),
	}
}

// IsOnline returns the current debounced state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// OnTransition registers a listener invoked once per state edge with
// the new state. The returned function unsubscribes it.
func (m *Monitor) OnTransition(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Start seeds the state with one immediate sample (no edge fired) and
// polls until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.online.Store(m.probe.IsConnected(ctx))
	m.logger.Info().Bool("online", m.online.Load()).Msg("connectivity monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// sample takes one probe reading and flips the state once the reading
// has disagreed with it for debounce consecutive polls. Rapid flapping
// between polls therefore never reaches the listeners.
func (m *Monitor) sample(ctx context.Context) {
	reading := m.probe.IsConnected(ctx)
	current := m.online.Load()

	if reading == current {
		m.streak = 0
		return
	}

	m.streak++
	if m.streak < m.debounce {
		return
	}

	m.streak = 0
	m.online.Store(reading)
	m.logger.Info().Bool("online", reading).Msg("connectivity changed")
	m.notify(reading)
}

func (m *Monitor) notify(online bool) {
	m.mu.Lock()
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

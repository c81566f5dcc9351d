package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	mu        sync.Mutex
	connected bool
}

func (p *fakeProbe) set(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *fakeProbe) IsConnected(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestTransitionFiredOncePerEdge(t *testing.T) {
	probe := &fakeProbe{}
	m := NewMonitor(probe, time.Second, 1, testLogger())
	m.online.Store(false)

	var edges []bool
	m.OnTransition(func(online bool) { edges = append(edges, online) })

	ctx := context.Background()

	// Repeated identical readings: no edges.
	m.sample(ctx)
	m.sample(ctx)
	assert.Empty(t, edges)

	probe.set(true)
	m.sample(ctx)
	require.Equal(t, []bool{true}, edges)
	assert.True(t, m.IsOnline())

	// Still online: no second edge for the same state.
	m.sample(ctx)
	m.sample(ctx)
	assert.Equal(t, []bool{true}, edges)

	probe.set(false)
	m.sample(ctx)
	assert.Equal(t, []bool{true, false}, edges)
	assert.False(t, m.IsOnline())
}

func TestDebounceSuppressesFlapping(t *testing.T) {
	probe := &fakeProbe{}
	m := NewMonitor(probe, time.Second, 3, testLogger())

	edges := 0
	m.OnTransition(func(bool) { edges++ })

	ctx := context.Background()

	// online flickers for a single poll, then settles back offline
	probe.set(true)
	m.sample(ctx)
	probe.set(false)
	m.sample(ctx)
	probe.set(true)
	m.sample(ctx)

	assert.Equal(t, 0, edges)
	assert.False(t, m.IsOnline())

	// Three consecutive online readings flip the state once.
	m.sample(ctx)
	m.sample(ctx)
	m.sample(ctx)
	assert.Equal(t, 1, edges)
	assert.True(t, m.IsOnline())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	probe := &fakeProbe{}
	m := NewMonitor(probe, time.Second, 1, testLogger())

	calls := 0
	unsubscribe := m.OnTransition(func(bool) { calls++ })

	ctx := context.Background()
	probe.set(true)
	m.sample(ctx)
	require.Equal(t, 1, calls)

	unsubscribe()
	probe.set(false)
	m.sample(ctx)
	assert.Equal(t, 1, calls)
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := NewHTTPProbe(srv.URL)
	assert.True(t, probe.IsConnected(context.Background()))

	srv.Close()
	assert.False(t, probe.IsConnected(context.Background()))
}

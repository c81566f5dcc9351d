package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"booksync/internal/config"
	"booksync/internal/models"
	"booksync/internal/sync"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	online   bool
	pending  int
	failed   []models.PendingAction
	lastSync time.Time
	bookings []models.BookingRecord
	stats    sync.DrainStats
	synced   int
}

func (f *fakeEngine) IsNetworkOnline() bool    { return f.online }
func (f *fakeEngine) PendingActionsCount() int { return f.pending }
func (f *fakeEngine) FailedActions() []models.PendingAction {
	return f.failed
}
func (f *fakeEngine) LastSyncAt(ctx context.Context) time.Time { return f.lastSync }
func (f *fakeEngine) Bookings() []models.BookingRecord         { return f.bookings }
func (f *fakeEngine) Booking(id string) (models.BookingRecord, bool) {
	for _, b := range f.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return models.BookingRecord{}, false
}
func (f *fakeEngine) ForceSync(ctx context.Context) sync.DrainStats {
	f.synced++
	return f.stats
}

type fakeNotifier struct {
	events  []models.NotificationEvent
	readIDs []string
	readAll bool
}

func (f *fakeNotifier) All() []models.NotificationEvent { return f.events }
func (f *fakeNotifier) UnreadCount() int {
	count := 0
	for _, e := range f.events {
		if !e.Read {
			count++
		}
	}
	return count
}
func (f *fakeNotifier) MarkRead(ctx context.Context, id string) { f.readIDs = append(f.readIDs, id) }
func (f *fakeNotifier) MarkAllRead(ctx context.Context)         { f.readAll = true }

type fakeExporter struct {
	path string
	err  error
}

func (f *fakeExporter) ExportBookings() (string, error) { return f.path, f.err }

func newTestServer(engine *fakeEngine, notifier *fakeNotifier) *HTTPServer {
	logger := zerolog.Nop()
	return NewHTTPServer(config.APIConfig{Enabled: true, Port: 0}, engine, notifier, nil, &logger)
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatusEndpoint(t *testing.T) {
	engine := &fakeEngine{
		online:   true,
		pending:  3,
		failed:   []models.PendingAction{{ID: "a1"}},
		lastSync: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	notifier := &fakeNotifier{events: []models.NotificationEvent{{ID: "n1"}, {ID: "n2", Read: true}}}
	srv := newTestServer(engine, notifier)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["online"])
	assert.Equal(t, float64(3), body["pending_actions"])
	assert.Equal(t, float64(1), body["failed_actions"])
	assert.Equal(t, float64(1), body["unread_notifications"])
	assert.Equal(t, "2026-05-01T12:00:00Z", body["last_sync_at"])
}

func TestStatusOmitsZeroLastSync(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	_, present := body["last_sync_at"]
	assert.False(t, present)
}

func TestBookingsEndpoint(t *testing.T) {
	engine := &fakeEngine{bookings: []models.BookingRecord{
		{ID: "b1", Status: models.StatusAccepted},
		{ID: "b2", Status: models.StatusPending},
	}}
	srv := newTestServer(engine, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	bookings, ok := body["bookings"].([]any)
	require.True(t, ok)
	assert.Len(t, bookings, 2)
}

func TestSingleBookingEndpoint(t *testing.T) {
	engine := &fakeEngine{bookings: []models.BookingRecord{{ID: "b1", Status: models.StatusAccepted}}}
	srv := newTestServer(engine, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/bookings/b1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "b1", body["id"])

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/bookings/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsEndpoint(t *testing.T) {
	notifier := &fakeNotifier{events: []models.NotificationEvent{
		{ID: "n1", Type: models.EventNewBooking},
	}}
	srv := newTestServer(&fakeEngine{}, notifier)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["unread"])
}

func TestMarkNotificationRead(t *testing.T) {
	notifier := &fakeNotifier{}
	srv := newTestServer(&fakeEngine{}, notifier)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/notifications/read", `{"id":"n1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n1"}, notifier.readIDs)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/notifications/read", `{"all":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, notifier.readAll)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/notifications/read", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/notifications/read", `{"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForceSyncEndpoint(t *testing.T) {
	engine := &fakeEngine{stats: sync.DrainStats{Ran: true, Committed: 2}}
	srv := newTestServer(engine, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.synced)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ran"])
	assert.Equal(t, float64(2), body["committed"])

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewHTTPServer(config.APIConfig{Enabled: true}, &fakeEngine{}, &fakeNotifier{},
		&fakeExporter{path: "/tmp/exports/report.xlsx"}, &logger)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "/tmp/exports/report.xlsx", body["file"])
}

func TestExportEndpointWithoutExporter(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/export", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeNotifier{})

	rec := doRequest(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "booksync")
}

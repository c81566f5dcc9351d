package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"booksync/internal/config"
	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.RemoteConfig{
		BaseURL: baseURL,
		APIKey:  "key",
		RPS:     1000,
		Burst:   1000,
	}, testLogger())
}

func testAction() *models.PendingAction {
	return &models.PendingAction{
		ID:         "action-1",
		BookingID:  "b1",
		ActionType: models.ActionAccept,
		Payload:    map[string]string{"note": "ok"},
	}
}

func TestCommitSuccess(t *testing.T) {
	var gotPath, gotIdem, gotKey string
	var gotBody commitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIdem = r.Header.Get("Idempotency-Key")
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Commit(context.Background(), testAction())
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/bookings/b1/actions", gotPath)
	assert.Equal(t, "action-1", gotIdem)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, models.ActionAccept, gotBody.ActionType)
	assert.Equal(t, "ok", gotBody.Payload["note"])
}

func TestCommitTerminalRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid state transition", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Commit(context.Background(), testAction())
	require.Error(t, err)
	assert.True(t, IsTerminal(err))

	var ce *CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusUnprocessableEntity, ce.StatusCode)
	assert.Contains(t, ce.Message, "invalid state transition")
}

func TestCommitTransientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.Commit(context.Background(), testAction())
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestCommitNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c := newTestClient(srv.URL)
	err := c.Commit(context.Background(), testAction())
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
}

func TestFetchBookings(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bookings", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("updated_since"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bookings": []models.BookingRecord{
				{ID: "b1", Status: models.StatusConfirmed, ServerUpdatedAt: now},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	bookings, err := c.FetchBookings(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "b1", bookings[0].ID)
	assert.Equal(t, models.StatusConfirmed, bookings[0].Status)
}

func TestFetchBookingsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchBookings(context.Background(), time.Time{})
	require.Error(t, err)
}

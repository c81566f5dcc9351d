package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"booksync/internal/config"
	"booksync/internal/metrics"
	"booksync/internal/models"
	"booksync/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SyncService is the engine surface the status API reads from.
type SyncService interface {
	IsNetworkOnline() bool
	PendingActionsCount() int
	FailedActions() []models.PendingAction
	LastSyncAt(ctx context.Context) time.Time
	Bookings() []models.BookingRecord
	Booking(id string) (models.BookingRecord, bool)
	ForceSync(ctx context.Context) sync.DrainStats
}

// Notifier is the notification log surface the status API exposes.
type Notifier interface {
	All() []models.NotificationEvent
	UnreadCount() int
	MarkRead(ctx context.Context, id string)
	MarkAllRead(ctx context.Context)
}

// Exporter produces an on-demand snapshot report.
type Exporter interface {
	ExportBookings() (string, error)
}

// HTTPServer exposes the local status and control API.
type HTTPServer struct {
	cfg      config.APIConfig
	engine   SyncService
	notifier Notifier
	exporter Exporter
	server   *http.Server
	logger   zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, engine SyncService, notifier Notifier, exporter Exporter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		engine:   engine,
		notifier: notifier,
		exporter: exporter,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	metrics.Register()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", srv.handleStatus)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBooking)
	mux.HandleFunc("/api/v1/notifications", srv.handleNotifications)
	mux.HandleFunc("/api/v1/notifications/read", srv.handleNotificationsRead)
	mux.HandleFunc("/api/v1/sync", srv.handleForceSync)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("status API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured root handler, middleware included.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := map[string]any{
		"online":               s.engine.IsNetworkOnline(),
		"pending_actions":      s.engine.PendingActionsCount(),
		"failed_actions":       len(s.engine.FailedActions()),
		"unread_notifications": s.notifier.UnreadCount(),
	}
	if last := s.engine.LastSyncAt(r.Context()); !last.IsZero() {
		resp["last_sync_at"] = last.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": s.engine.Bookings()})
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := r.URL.Path[len("/api/v1/bookings/"):]
	if id == "" {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	rec, ok := s.engine.Booking(id)
	if !ok {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": s.notifier.All(),
		"unread":        s.notifier.UnreadCount(),
	})
}

func (s *HTTPServer) handleNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		ID  string `json:"id"`
		All bool   `json:"all"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case body.All:
		s.notifier.MarkAllRead(r.Context())
	case body.ID != "":
		s.notifier.MarkRead(r.Context(), body.ID)
	default:
		writeError(w, http.StatusBadRequest, "id or all is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"unread": s.notifier.UnreadCount()})
}

func (s *HTTPServer) handleForceSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := s.engine.ForceSync(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ran":       stats.Ran,
		"committed": stats.Committed,
		"retried":   stats.Retried,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "exports are not configured")
		return
	}

	path, err := s.exporter.ExportBookings()
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

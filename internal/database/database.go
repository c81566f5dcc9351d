package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"booksync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the sqlite store holding the four persisted collections:
// cached bookings, pending actions, notifications and sync state.
type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            status TEXT NOT NULL,
            service_name TEXT,
            scheduled_at DATETIME,
            customer_name TEXT,
            customer_ref TEXT,
            rejection_reason TEXT,
            completion_notes TEXT,
            sync_state TEXT NOT NULL DEFAULT 'clean',
            updated_at DATETIME NOT NULL,
            server_updated_at DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS pending_actions (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL,
            action_type TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            attempt_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            next_attempt_at DATETIME,
            synced_at DATETIME
        )`,

		`CREATE TABLE IF NOT EXISTS notifications (
            id TEXT PRIMARY KEY,
            type TEXT NOT NULL,
            title TEXT,
            message TEXT,
            booking_id TEXT,
            created_at DATETIME NOT NULL,
            read BOOLEAN NOT NULL DEFAULT 0,
            data TEXT
        )`,

		`CREATE TABLE IF NOT EXISTS sync_state (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            last_sync_at DATETIME,
            committed_total INTEGER NOT NULL DEFAULT 0,
            failed_total INTEGER NOT NULL DEFAULT 0
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_sync_state ON bookings(sync_state)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_booking_id ON pending_actions(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_status ON pending_actions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %v", query, err)
		}
	}
	return nil
}

// UpsertBooking writes the record, replacing any previous row.
func (db *DB) UpsertBooking(ctx context.Context, rec *models.BookingRecord) error {
	query := `
        INSERT INTO bookings (id, status, service_name, scheduled_at, customer_name, customer_ref, rejection_reason, completion_notes, sync_state, updated_at, server_updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            service_name = excluded.service_name,
            scheduled_at = excluded.scheduled_at,
            customer_name = excluded.customer_name,
            customer_ref = excluded.customer_ref,
            rejection_reason = excluded.rejection_reason,
            completion_notes = excluded.completion_notes,
            sync_state = excluded.sync_state,
            updated_at = excluded.updated_at,
            server_updated_at = excluded.server_updated_at
    `

	_, err := db.db.ExecContext(ctx, query,
		rec.ID,
		rec.Status,
		rec.ServiceName,
		rec.ScheduledAt,
		rec.CustomerName,
		rec.CustomerRef,
		rec.RejectionReason,
		rec.CompletionNotes,
		rec.SyncState,
		rec.UpdatedAt,
		rec.ServerUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert booking: %w", err)
	}
	return nil
}

// GetBooking returns the cached record or ErrNotFound.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.BookingRecord, error) {
	query := `
        SELECT id, status, service_name, scheduled_at, customer_name, customer_ref, rejection_reason, completion_notes, sync_state, updated_at, server_updated_at
        FROM bookings WHERE id = ?
    `

	var rec models.BookingRecord
	err := db.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Status,
		&rec.ServiceName,
		&rec.ScheduledAt,
		&rec.CustomerName,
		&rec.CustomerRef,
		&rec.RejectionReason,
		&rec.CompletionNotes,
		&rec.SyncState,
		&rec.UpdatedAt,
		&rec.ServerUpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// ListBookings returns every cached record, newest local write first.
func (db *DB) ListBookings(ctx context.Context) ([]models.BookingRecord, error) {
	query := `
        SELECT id, status, service_name, scheduled_at, customer_name, customer_ref, rejection_reason, completion_notes, sync_state, updated_at, server_updated_at
        FROM bookings ORDER BY updated_at DESC
    `

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.BookingRecord
	for rows.Next() {
		var rec models.BookingRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Status,
			&rec.ServiceName,
			&rec.ScheduledAt,
			&rec.CustomerName,
			&rec.CustomerRef,
			&rec.RejectionReason,
			&rec.CompletionNotes,
			&rec.SyncState,
			&rec.UpdatedAt,
			&rec.ServerUpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteBooking evicts a record from the cache table.
func (db *DB) DeleteBooking(ctx context.Context, id string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return err
}

// GetSyncMeta returns the persisted last-sync timestamp and counters.
func (db *DB) GetSyncMeta(ctx context.Context) (lastSyncAt time.Time, committed, failed int64, err error) {
	query := `SELECT last_sync_at, committed_total, failed_total FROM sync_state WHERE id = 1`

	var last sql.NullTime
	err = db.db.QueryRowContext(ctx, query).Scan(&last, &committed, &failed)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, 0, nil
	}
	if err != nil {
		return time.Time{}, 0, 0, err
	}
	if last.Valid {
		lastSyncAt = last.Time
	}
	return lastSyncAt, committed, failed, nil
}

// SetSyncMeta records the outcome of a drain pass.
func (db *DB) SetSyncMeta(ctx context.Context, lastSyncAt time.Time, committed, failed int64) error {
	query := `
        INSERT INTO sync_state (id, last_sync_at, committed_total, failed_total)
        VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            last_sync_at = excluded.last_sync_at,
            committed_total = committed_total + excluded.committed_total,
            failed_total = failed_total + excluded.failed_total
    `
	_, err := db.db.ExecContext(ctx, query, lastSyncAt, committed, failed)
	return err
}

func (db *DB) Close() error {
	return db.db.Close()
}

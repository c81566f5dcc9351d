package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"booksync/internal/models"
)

// InsertNotification persists an event and trims the log to limit,
// evicting the oldest rows first.
func (db *DB) InsertNotification(ctx context.Context, event *models.NotificationEvent, limit int) error {
	data, err := encodePayload(event.Data)
	if err != nil {
		return fmt.Errorf("encode notification data: %w", err)
	}

	query := `INSERT INTO notifications (id, type, title, message, booking_id, created_at, read, data)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Title,
		event.Message,
		event.BookingID,
		event.CreatedAt,
		event.Read,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	if limit > 0 {
		trim := `DELETE FROM notifications WHERE id NOT IN (
                    SELECT id FROM notifications ORDER BY created_at DESC, rowid DESC LIMIT ?
                 )`
		if _, err := db.db.ExecContext(ctx, trim, limit); err != nil {
			return fmt.Errorf("failed to trim notifications: %w", err)
		}
	}

	return nil
}

// ListNotifications returns events newest first.
func (db *DB) ListNotifications(ctx context.Context) ([]models.NotificationEvent, error) {
	query := `SELECT id, type, title, message, booking_id, created_at, read, data
              FROM notifications ORDER BY created_at DESC, rowid DESC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var events []models.NotificationEvent
	for rows.Next() {
		var (
			event models.NotificationEvent
			data  sql.NullString
		)
		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.Title,
			&event.Message,
			&event.BookingID,
			&event.CreatedAt,
			&event.Read,
			&data,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &event.Data); err != nil {
				return nil, fmt.Errorf("decode notification data: %w", err)
			}
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// MarkNotificationRead flips the read flag for one event.
func (db *DB) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := db.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	return err
}

// MarkAllNotificationsRead flips the read flag for every event.
func (db *DB) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE read = 0`)
	return err
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"booksync/internal/models"
)

// CreatePendingAction appends a mutation intent to the queue table.
func (db *DB) CreatePendingAction(ctx context.Context, action *models.PendingAction) error {
	payload, err := encodePayload(action.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	query := `INSERT INTO pending_actions (id, booking_id, action_type, payload, status, attempt_count, last_error, created_at, next_attempt_at, synced_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.db.ExecContext(ctx, query,
		action.ID,
		action.BookingID,
		action.ActionType,
		payload,
		action.Status,
		action.AttemptCount,
		action.LastError,
		action.CreatedAt,
		action.NextAttemptAt,
		action.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pending action: %w", err)
	}
	return nil
}

// ListPendingActions returns every queued action in creation order,
// oldest first. Rowid breaks ties for actions created in the same
// instant so replay order matches enqueue order.
func (db *DB) ListPendingActions(ctx context.Context) ([]models.PendingAction, error) {
	query := `SELECT id, booking_id, action_type, payload, status, attempt_count, last_error, created_at, next_attempt_at, synced_at
              FROM pending_actions ORDER BY created_at ASC, rowid ASC`

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []models.PendingAction
	for rows.Next() {
		action, err := scanPendingAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return actions, nil
}

// UpdatePendingAction persists the retry/sync bookkeeping of an action.
func (db *DB) UpdatePendingAction(ctx context.Context, action *models.PendingAction) error {
	query := `UPDATE pending_actions
              SET status = ?, attempt_count = ?, last_error = ?, next_attempt_at = ?, synced_at = ?
              WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query,
		action.Status,
		action.AttemptCount,
		action.LastError,
		action.NextAttemptAt,
		action.SyncedAt,
		action.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update pending action: %w", err)
	}
	return nil
}

// DeletePendingAction removes a single queue entry.
func (db *DB) DeletePendingAction(ctx context.Context, id string) error {
	_, err := db.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	return err
}

// PrunePendingActions removes synced and terminally failed entries
// created before the cutoff. Unsynced entries are never pruned; a
// queued user action must not be silently discarded.
func (db *DB) PrunePendingActions(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM pending_actions WHERE status IN ('synced', 'failed') AND created_at < ?`
	result, err := db.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune pending actions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (models.PendingAction, error) {
	var (
		action  models.PendingAction
		payload sql.NullString
		next    sql.NullTime
		synced  sql.NullTime
	)

	err := row.Scan(
		&action.ID,
		&action.BookingID,
		&action.ActionType,
		&payload,
		&action.Status,
		&action.AttemptCount,
		&action.LastError,
		&action.CreatedAt,
		&next,
		&synced,
	)
	if err != nil {
		return action, fmt.Errorf("failed to scan pending action: %w", err)
	}

	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &action.Payload); err != nil {
			return action, fmt.Errorf("decode payload: %w", err)
		}
	}
	if next.Valid {
		action.NextAttemptAt = &next.Time
	}
	if synced.Valid {
		action.SyncedAt = &synced.Time
	}

	return action, nil
}

func encodePayload(payload map[string]string) (sql.NullString, error) {
	if len(payload) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// GetPendingAction returns a single queue entry or ErrNotFound.
func (db *DB) GetPendingAction(ctx context.Context, id string) (*models.PendingAction, error) {
	query := `SELECT id, booking_id, action_type, payload, status, attempt_count, last_error, created_at, next_attempt_at, synced_at
              FROM pending_actions WHERE id = ?`

	action, err := scanPendingAction(db.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

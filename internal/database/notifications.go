package database

import (
	"context"
	"fmt"
	"time"

	"parkingnear/internal/models"
)

// EnqueueNotification writes an outbox row. Inside WithTx it commits or rolls
// back together with the mutation it describes.
func (r *Repo) EnqueueNotification(ctx context.Context, n *models.Notification) error {
	query := `INSERT INTO notifications (user_id, message, type, status, retry_count, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	now := time.Now().UTC()
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	result, err := r.q.ExecContext(ctx, query, n.UserID, n.Message, n.Type, n.Status, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return nil
}

const notificationColumns = `id, user_id, message, type, status, retry_count, last_error,
                             created_at, sent_at, next_retry_at`

func (db *DB) GetPendingNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + `
              FROM notifications
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	return db.queryNotifications(ctx, query,
		models.NotificationPending, models.NotificationRetry, time.Now().UTC(), limit)
}

func (db *DB) GetFailedNotifications(ctx context.Context) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE status = ? ORDER BY created_at DESC`
	return db.queryNotifications(ctx, query, models.NotificationFailed)
}

func (db *DB) ListUserNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ? ORDER BY created_at ASC, id ASC`
	return db.queryNotifications(ctx, query, userID)
}

func (db *DB) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID, &n.UserID, &n.Message, &n.Type, &n.Status, &n.RetryCount, &n.LastError,
			&n.CreatedAt, &n.SentAt, &n.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return list, nil
}

func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()

	switch status {
	case models.NotificationRetry:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case models.NotificationSent:
		query = `UPDATE notifications SET status = ?, last_error = NULL, next_retry_at = NULL, sent_at = ? WHERE id = ?`
		args = []interface{}{status, &now, id}
	case models.NotificationFailed:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = NULL, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, id}
	default:
		query = `UPDATE notifications SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}

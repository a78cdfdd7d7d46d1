package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"tangled.org/studyhub.social/warden/internal/moderation"
)

// NotificationStore implements moderation.Notifier using SQLite.
type NotificationStore struct {
	db *sql.DB
}

var _ moderation.Notifier = (*NotificationStore)(nil)

func (s *NotificationStore) Notify(ctx context.Context, n moderation.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, report_id, message, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, string(n.Kind), n.ReportID, n.Message, toNanos(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *NotificationStore) ListNotifications(ctx context.Context, userID string, limit int) ([]moderation.Notification, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, report_id, message, created_at FROM notifications
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []moderation.Notification
	for rows.Next() {
		var n moderation.Notification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.ReportID, &n.Message, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = fromNanos(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

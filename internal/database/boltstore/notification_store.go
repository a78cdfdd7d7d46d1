package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"

	"tangled.org/studyhub.social/warden/internal/moderation"

	bolt "go.etcd.io/bbolt"
)

// NotificationStore persists report notifications per recipient.
type NotificationStore struct {
	db *bolt.DB
}

var _ moderation.Notifier = (*NotificationStore)(nil)

// Notify stores a notification for its recipient.
func (s *NotificationStore) Notify(ctx context.Context, n moderation.Notification) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketNotifications)
		if err != nil {
			return err
		}
		return putJSON(b, compositeKey(n.UserID, n.ID), n)
	})
}

// ListNotifications returns a user's notifications, newest first.
func (s *NotificationStore) ListNotifications(ctx context.Context, userID string, limit int) ([]moderation.Notification, error) {
	var out []moderation.Notification

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketNotifications)
		if err != nil {
			return err
		}
		cursor := b.Cursor()
		prefix := []byte(userID + ":")
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var n moderation.Notification
			if err := json.Unmarshal(v, &n); err != nil {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b moderation.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"tangled.org/studyhub.social/warden/internal/reputation"

	bolt "go.etcd.io/bbolt"
)

// ReputationStore persists reputation scores and their log.
type ReputationStore struct {
	db *bolt.DB
}

var _ reputation.Store = (*ReputationStore)(nil)

// ApplyScore updates a score, appends its log entry and mirrors the new total
// onto the user's moderation account in one transaction.
func (s *ReputationStore) ApplyScore(ctx context.Context, userID string, fn func(*reputation.Score) (reputation.LogEntry, error)) (*reputation.Score, error) {
	var score reputation.Score

	err := s.db.Update(func(tx *bolt.Tx) error {
		scores, err := bucket(tx, BucketReputationScores)
		if err != nil {
			return err
		}
		if data := scores.Get([]byte(userID)); data != nil {
			if err := json.Unmarshal(data, &score); err != nil {
				return fmt.Errorf("failed to decode score for %s: %w", userID, err)
			}
		}
		score.UserID = userID

		entry, err := fn(&score)
		if err != nil {
			return err
		}
		if err := putJSON(scores, userID, score); err != nil {
			return err
		}

		logBucket, err := bucket(tx, BucketReputationLog)
		if err != nil {
			return err
		}
		if err := putJSON(logBucket, compositeKey(userID, entry.ID), entry); err != nil {
			return err
		}

		accounts, err := bucket(tx, BucketAccounts)
		if err != nil {
			return err
		}
		account, err := loadAccount(accounts, userID)
		if err != nil {
			return err
		}
		account.Score = score.Total
		account.UpdatedAt = score.UpdatedAt
		return putJSON(accounts, userID, account)
	})
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// GetScore returns a user's score, or nil, nil when there is none.
func (s *ReputationStore) GetScore(ctx context.Context, userID string) (*reputation.Score, error) {
	var score *reputation.Score

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReputationScores)
		if err != nil {
			return err
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return nil
		}
		score = &reputation.Score{}
		return json.Unmarshal(data, score)
	})

	return score, err
}

// ListLog returns a user's log entries, newest first. Entry IDs are
// time-ordered, so walking the user's key range backwards yields that order.
func (s *ReputationStore) ListLog(ctx context.Context, userID string, limit int) ([]reputation.LogEntry, error) {
	var entries []reputation.LogEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReputationLog)
		if err != nil {
			return err
		}
		prefix := []byte(userID + ":")
		// ';' is the byte after ':', so seeking to it lands just past the range.
		end := []byte(userID + ";")

		cursor := b.Cursor()
		k, v := cursor.Seek(end)
		if k == nil {
			k, v = cursor.Last()
		} else {
			k, v = cursor.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry reputation.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})

	return entries, err
}

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/reputation"
)

// ReputationStore implements reputation.Store using SQLite.
type ReputationStore struct {
	db *sql.DB
}

var _ reputation.Store = (*ReputationStore)(nil)

func scanScore(row rowScanner) (*reputation.Score, error) {
	var s reputation.Score
	var updatedAt int64
	if err := row.Scan(&s.UserID, &s.Document, &s.Event, &s.Report, &s.Activity, &s.Total, &updatedAt); err != nil {
		return nil, err
	}
	s.UpdatedAt = fromNanos(updatedAt)
	return &s, nil
}

const scoreQuery = `SELECT user_id, document, event, report, activity, total, updated_at FROM reputation_scores WHERE user_id = ?`

func (s *ReputationStore) ApplyScore(ctx context.Context, userID string, fn func(*reputation.Score) (reputation.LogEntry, error)) (*reputation.Score, error) {
	var score *reputation.Score
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		score, err = scanScore(tx.QueryRowContext(ctx, scoreQuery, userID))
		if errors.Is(err, sql.ErrNoRows) {
			score, err = &reputation.Score{UserID: userID}, nil
		}
		if err != nil {
			return fmt.Errorf("load score: %w", err)
		}

		entry, err := fn(score)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reputation_scores (user_id, document, event, report, activity, total, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				document   = excluded.document,
				event      = excluded.event,
				report     = excluded.report,
				activity   = excluded.activity,
				total      = excluded.total,
				updated_at = excluded.updated_at
		`, userID, score.Document, score.Event, score.Report, score.Activity, score.Total, toNanos(score.UpdatedAt))
		if err != nil {
			return fmt.Errorf("save score: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reputation_log (id, user_id, delta, reason, category, created_at) VALUES (?, ?, ?, ?, ?, ?)
		`, entry.ID, userID, entry.Delta, entry.Reason, string(entry.Category), toNanos(entry.CreatedAt))
		if err != nil {
			return fmt.Errorf("append reputation log: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO accounts (user_id, status, score, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
		`, userID, string(moderation.AccountActive), score.Total, toNanos(score.UpdatedAt))
		if err != nil {
			return fmt.Errorf("mirror score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return score, nil
}

func (s *ReputationStore) GetScore(ctx context.Context, userID string) (*reputation.Score, error) {
	score, err := scanScore(s.db.QueryRowContext(ctx, scoreQuery, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return score, err
}

func (s *ReputationStore) ListLog(ctx context.Context, userID string, limit int) ([]reputation.LogEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, delta, reason, category, created_at FROM reputation_log
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []reputation.LogEntry
	for rows.Next() {
		var e reputation.LogEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.Category, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = fromNanos(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

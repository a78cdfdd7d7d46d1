// Package reputation keeps the per-user reputation ledger: four capped
// category scores, their total, and an append-only log of every adjustment.
package reputation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tangled.org/studyhub.social/warden/internal/apperr"
	"tangled.org/studyhub.social/warden/internal/metrics"
	"tangled.org/studyhub.social/warden/internal/tracing"
)

// Category is one of the reputation score buckets.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryEvent    Category = "event"
	CategoryReport   Category = "report"
	CategoryActivity Category = "activity"
)

// Caps are the upper bounds of each category. There is no lower bound.
var Caps = map[Category]int{
	CategoryDocument: 30,
	CategoryEvent:    30,
	CategoryReport:   15,
	CategoryActivity: 20,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := Caps[c]
	return ok
}

// Fixed deltas used by the platform's callers.
const (
	UploadReward  = 2
	DeletePenalty = -2
	ReviewReward  = 1
)

// Score is a user's reputation row.
type Score struct {
	UserID    string    `json:"user_id"`
	Document  int       `json:"document"`
	Event     int       `json:"event"`
	Report    int       `json:"report"`
	Activity  int       `json:"activity"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get returns the value of category c.
func (s *Score) Get(c Category) int {
	switch c {
	case CategoryDocument:
		return s.Document
	case CategoryEvent:
		return s.Event
	case CategoryReport:
		return s.Report
	case CategoryActivity:
		return s.Activity
	}
	return 0
}

func (s *Score) set(c Category, v int) {
	switch c {
	case CategoryDocument:
		s.Document = v
	case CategoryEvent:
		s.Event = v
	case CategoryReport:
		s.Report = v
	case CategoryActivity:
		s.Activity = v
	}
}

// Apply adds delta to category c, clamped to the category cap, and
// recomputes the total.
func (s *Score) Apply(c Category, delta int) {
	v := s.Get(c) + delta
	if limit, ok := Caps[c]; ok && v > limit {
		v = limit
	}
	s.set(c, v)
	s.Total = s.Document + s.Event + s.Report + s.Activity
}

// LogEntry is an immutable record of one adjustment. Delta is the requested
// change before clamping.
type LogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists scores and the log. Implementations must be safe for
// concurrent use.
type Store interface {
	// ApplyScore loads the user's score (a zero score when absent), lets fn
	// mutate it and return the log entry, then stores the score, appends the
	// entry and mirrors the total onto the user's account, all in one
	// transaction. Nothing is written when fn fails.
	ApplyScore(ctx context.Context, userID string, fn func(*Score) (LogEntry, error)) (*Score, error)
	GetScore(ctx context.Context, userID string) (*Score, error)
	ListLog(ctx context.Context, userID string, limit int) ([]LogEntry, error)
}

// Ledger applies reputation adjustments.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Increment adds points to a user's category score and returns the new score.
func (l *Ledger) Increment(ctx context.Context, userID string, points int, reason string, category Category) (score *Score, err error) {
	const op = "increment_reputation"
	ctx, span := tracing.LedgerSpan(ctx, userID, string(category), points)
	defer func() { tracing.EndWithError(span, err); span.End() }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation(op, "user id is required")
	}
	if !category.Valid() {
		return nil, apperr.Validation(op, "invalid category %q", category)
	}

	now := l.now()
	score, err = l.store.ApplyScore(ctx, userID, func(s *Score) (LogEntry, error) {
		s.Apply(category, points)
		s.UpdatedAt = now
		return LogEntry{
			ID:        uuid.Must(uuid.NewV7()).String(),
			UserID:    userID,
			Delta:     points,
			Reason:    reason,
			Category:  category,
			CreatedAt: now,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update reputation: %w", err)
	}

	metrics.ReputationUpdatesTotal.WithLabelValues(string(category)).Inc()
	log.Debug().
		Str("user", userID).
		Str("category", string(category)).
		Int("delta", points).
		Int("total", score.Total).
		Msg("Reputation updated")

	return score, nil
}

// Score returns a user's current score; users without a row score zero.
func (l *Ledger) Score(ctx context.Context, userID string) (*Score, error) {
	s, err := l.store.GetScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Score{UserID: userID}
	}
	return s, nil
}

// History returns a user's most recent log entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]LogEntry, error) {
	return l.store.ListLog(ctx, userID, limit)
}

// RewardUpload credits a document upload.
func (l *Ledger) RewardUpload(ctx context.Context, userID, documentID string) error {
	_, err := l.Increment(ctx, userID, UploadReward, "document uploaded: "+documentID, CategoryDocument)
	return err
}

// PenalizeDelete debits a document deletion.
func (l *Ledger) PenalizeDelete(ctx context.Context, userID, documentID string) error {
	_, err := l.Increment(ctx, userID, DeletePenalty, "document deleted: "+documentID, CategoryDocument)
	return err
}

// RewardReview credits a reporter whose report was accepted.
func (l *Ledger) RewardReview(ctx context.Context, reporterID, reportID string) error {
	_, err := l.Increment(ctx, reporterID, ReviewReward, "report reviewed: "+reportID, CategoryReport)
	return err
}

// PenalizePunishment debits the punishment points of a processed report.
func (l *Ledger) PenalizePunishment(ctx context.Context, userID string, points int, reportID string) error {
	_, err := l.Increment(ctx, userID, -points, "punished for report: "+reportID, CategoryReport)
	return err
}

package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TermStore persists learned dictionary terms.
type TermStore struct {
	db *sql.DB
}

// AddTerm stores a term. Adding an existing term is a no-op.
func (s *TermStore) AddTerm(ctx context.Context, term string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dictionary_terms (term, added_at) VALUES (?, ?) ON CONFLICT(term) DO NOTHING`,
		term, toNanos(time.Now()))
	if err != nil {
		return fmt.Errorf("add term: %w", err)
	}
	return nil
}

// ListTerms returns all stored terms.
func (s *TermStore) ListTerms(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT term FROM dictionary_terms ORDER BY term`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

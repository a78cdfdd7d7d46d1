package boltstore

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"
)

// TermStore persists the terms learned by the content filter dictionary.
type TermStore struct {
	db *bolt.DB
}

// AddTerm stores a term. Adding an existing term is a no-op.
func (s *TermStore) AddTerm(ctx context.Context, term string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketDictionaryTerms)
		if err != nil {
			return err
		}
		if b.Get([]byte(term)) != nil {
			return nil
		}
		addedAt, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return b.Put([]byte(term), addedAt)
	})
}

// ListTerms returns all stored terms in byte order.
func (s *TermStore) ListTerms(ctx context.Context) ([]string, error) {
	var terms []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketDictionaryTerms)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			terms = append(terms, string(k))
			return nil
		})
	})

	return terms, err
}

// Package boltstore provides persistent storage using BoltDB (bbolt).
// It implements moderation.Store, reputation.Store, the filter dictionary's
// term store and the notification sink.
package boltstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketReports stores reports keyed by report ID
	BucketReports = []byte("reports")

	// BucketAccounts stores moderation accounts keyed by user ID
	BucketAccounts = []byte("accounts")

	// BucketPunishments stores punishment records keyed by "userID:punishmentID"
	BucketPunishments = []byte("punishments")

	// BucketAuditLog stores moderation audit entries keyed by "timestamp:id"
	BucketAuditLog = []byte("audit_log")

	// BucketReputationScores stores reputation rows keyed by user ID
	BucketReputationScores = []byte("reputation_scores")

	// BucketReputationLog stores reputation log entries keyed by "userID:entryID"
	BucketReputationLog = []byte("reputation_log")

	// BucketDictionaryTerms stores learned filter terms
	BucketDictionaryTerms = []byte("dictionary_terms")

	// BucketNotifications stores notifications keyed by "userID:notificationID"
	BucketNotifications = []byte("notifications")
)

// Store wraps a BoltDB database and provides access to specialized stores.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "warden.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates all necessary buckets if they don't exist.
func Open(opts Options) (*Store, error) {
	defaults := DefaultOptions()
	if opts.Path == "" {
		opts.Path = defaults.Path
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.FileMode == 0 {
		opts.FileMode = defaults.FileMode
	}

	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			BucketReports,
			BucketAccounts,
			BucketPunishments,
			BucketAuditLog,
			BucketReputationScores,
			BucketReputationLog,
			BucketDictionaryTerms,
			BucketNotifications,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// ModerationStore returns a moderation store backed by this database.
func (s *Store) ModerationStore() *ModerationStore {
	return &ModerationStore{db: s.db}
}

// ReputationStore returns a reputation store backed by this database.
func (s *Store) ReputationStore() *ReputationStore {
	return &ReputationStore{db: s.db}
}

// TermStore returns a dictionary term store backed by this database.
func (s *Store) TermStore() *TermStore {
	return &TermStore{db: s.db}
}

// NotificationStore returns a notification store backed by this database.
func (s *Store) NotificationStore() *NotificationStore {
	return &NotificationStore{db: s.db}
}

// Stats returns database statistics.
func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}

// bucket returns the named bucket or an error if Open did not create it.
func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket not found: %s", name)
	}
	return b, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

// compositeKey joins an owner and an ID so that a prefix scan finds every
// entry of one owner.
func compositeKey(owner, id string) string {
	return owner + ":" + id
}

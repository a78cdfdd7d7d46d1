package boltstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"tangled.org/studyhub.social/warden/internal/moderation"

	bolt "go.etcd.io/bbolt"
)

// ModerationStore provides persistent storage for moderation data.
type ModerationStore struct {
	db *bolt.DB
}

var _ moderation.Store = (*ModerationStore)(nil)

// CreateReport stores a new report.
func (s *ModerationStore) CreateReport(ctx context.Context, report moderation.Report) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		if b.Get([]byte(report.ID)) != nil {
			return fmt.Errorf("report %s already exists", report.ID)
		}
		return putJSON(b, report.ID, report)
	})
}

// GetReport retrieves a report by ID. It returns nil, nil when the report
// does not exist.
func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	var report *moderation.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		report = &moderation.Report{}
		return json.Unmarshal(data, report)
	})

	return report, err
}

// ListReports returns one page of matching reports, newest first.
func (s *ModerationStore) ListReports(ctx context.Context, filter moderation.ReportFilter, offset, limit int) ([]moderation.Report, int, error) {
	var matched []moderation.Report

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var report moderation.Report
			if err := json.Unmarshal(v, &report); err != nil {
				return nil // Skip malformed entries
			}
			if filter.Matches(&report) {
				matched = append(matched, report)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	slices.SortFunc(matched, func(a, b moderation.Report) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(matched)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []moderation.Report{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

// CountReportsByStatus returns the number of reports in each status.
func (s *ModerationStore) CountReportsByStatus(ctx context.Context) (map[moderation.ReportStatus]int, error) {
	counts := make(map[moderation.ReportStatus]int)

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var report struct {
				Status moderation.ReportStatus `json:"status"`
			}
			if err := json.Unmarshal(v, &report); err != nil {
				return nil
			}
			counts[report.Status]++
			return nil
		})
	})

	return counts, err
}

// TransitionReport moves a report out of status from. The status check and
// the write happen in the same read-write transaction, which bbolt serializes.
func (s *ModerationStore) TransitionReport(ctx context.Context, id string, from moderation.ReportStatus, t moderation.Transition) (*moderation.Report, error) {
	var updated *moderation.Report

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		report, err := loadReport(b, id, from)
		if err != nil {
			return err
		}
		t.Apply(report)
		if err := putJSON(b, id, report); err != nil {
			return err
		}
		updated = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyPunishment finalizes a reviewed report: it moves the report, stores the
// punishment record and restricts the accused account in one transaction.
func (s *ModerationStore) ApplyPunishment(ctx context.Context, commit moderation.PunishmentCommit) (*moderation.Report, *moderation.Account, error) {
	var (
		report  *moderation.Report
		account *moderation.Account
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		reports, err := bucket(tx, BucketReports)
		if err != nil {
			return err
		}
		report, err = loadReport(reports, commit.ReportID, moderation.ReportStatusReviewed)
		if err != nil {
			return err
		}
		commit.Transition.Apply(report)
		if err := putJSON(reports, report.ID, report); err != nil {
			return err
		}

		punishments, err := bucket(tx, BucketPunishments)
		if err != nil {
			return err
		}
		p := commit.Punishment
		if err := putJSON(punishments, compositeKey(p.UserID, p.ID), p); err != nil {
			return err
		}

		accounts, err := bucket(tx, BucketAccounts)
		if err != nil {
			return err
		}
		account, err = loadAccount(accounts, p.UserID)
		if err != nil {
			return err
		}
		commit.Restriction.ApplyTo(account, commit.Transition.At)
		return putJSON(accounts, account.UserID, account)
	})
	if err != nil {
		return nil, nil, err
	}
	return report, account, nil
}

// GetAccount returns a user's moderation account, or nil, nil when the user
// has never been restricted or scored.
func (s *ModerationStore) GetAccount(ctx context.Context, userID string) (*moderation.Account, error) {
	var account *moderation.Account

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketAccounts)
		if err != nil {
			return err
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return nil
		}
		account = &moderation.Account{}
		return json.Unmarshal(data, account)
	})

	return account, err
}

// ListPunishments returns a user's punishment records, newest first.
func (s *ModerationStore) ListPunishments(ctx context.Context, userID string) ([]moderation.PunishmentRecord, error) {
	var records []moderation.PunishmentRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketPunishments)
		if err != nil {
			return err
		}
		cursor := b.Cursor()
		prefix := []byte(userID + ":")
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var record moderation.PunishmentRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(records, func(a, b moderation.PunishmentRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return records, nil
}

// PruneExpiredBlocks drops expired feature blocks and lifts expired bans
// across all accounts. It returns the number of blocks removed.
func (s *ModerationStore) PruneExpiredBlocks(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketAccounts)
		if err != nil {
			return err
		}

		// Collect first; bbolt forbids writes while iterating with ForEach.
		var changed []*moderation.Account
		err = b.ForEach(func(k, v []byte) error {
			var account moderation.Account
			if err := json.Unmarshal(v, &account); err != nil {
				return nil
			}
			n := account.PruneExpired(now)
			lifted := account.LiftExpiredBan(now)
			if n > 0 || lifted {
				removed += n
				account.UpdatedAt = now
				changed = append(changed, &account)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, account := range changed {
			if err := putJSON(b, account.UserID, account); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// LogAction stores a moderation action in the audit log.
func (s *ModerationStore) LogAction(ctx context.Context, entry moderation.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketAuditLog)
		if err != nil {
			return err
		}
		// Zero-padded timestamp keeps byte order chronological.
		key := fmt.Sprintf("%020d:%s", entry.Timestamp.UnixNano(), entry.ID)
		return putJSON(b, key, entry)
	})
}

// ListAuditLog returns the most recent audit log entries, newest first.
func (s *ModerationStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	var entries []moderation.AuditEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, BucketAuditLog)
		if err != nil {
			return err
		}
		cursor := b.Cursor()
		for k, v := cursor.Last(); k != nil && (limit <= 0 || len(entries) < limit); k, v = cursor.Prev() {
			var entry moderation.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue // Skip malformed entries
			}
			entries = append(entries, entry)
		}
		return nil
	})

	return entries, err
}

// loadReport reads a report and checks that it is in status from.
func loadReport(b *bolt.Bucket, id string, from moderation.ReportStatus) (*moderation.Report, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, moderation.ErrReportNotFound
	}
	var report moderation.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	if report.Status != from {
		return nil, &moderation.StatusMismatchError{ReportID: id, Expected: from, Actual: report.Status}
	}
	return &report, nil
}

// loadAccount reads an account, returning a fresh active one when absent.
func loadAccount(b *bolt.Bucket, userID string) (*moderation.Account, error) {
	data := b.Get([]byte(userID))
	if data == nil {
		return moderation.NewAccount(userID), nil
	}
	var account moderation.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", userID, err)
	}
	return &account, nil
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tangled.org/studyhub.social/warden/internal/moderation"
)

// ModerationStore implements moderation.Store using SQLite.
type ModerationStore struct {
	db *sql.DB
}

// Ensure ModerationStore implements the interface at compile time.
var _ moderation.Store = (*ModerationStore)(nil)

// ========== Reports ==========

const reportColumns = `id, reporter_id, item_id, item_type, type, content, proof_url,
	status, reviewer_id, processing_action, created_at, updated_at`

func scanReport(row rowScanner) (*moderation.Report, error) {
	var r moderation.Report
	var createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.ReporterID, &r.ItemID, &r.ItemType, &r.Type, &r.Content, &r.ProofURL,
		&r.Status, &r.ReviewerID, &r.ProcessingAction, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func (s *ModerationStore) CreateReport(ctx context.Context, r moderation.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ReporterID, r.ItemID, string(r.ItemType), string(r.Type), r.Content, r.ProofURL,
		string(r.Status), r.ReviewerID, r.ProcessingAction, toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *ModerationStore) GetReport(ctx context.Context, id string) (*moderation.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func reportWhere(f moderation.ReportFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ItemType != "" {
		clauses = append(clauses, "item_type = ?")
		args = append(args, string(f.ItemType))
	}
	if f.ReporterID != "" {
		clauses = append(clauses, "reporter_id = ?")
		args = append(args, f.ReporterID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *ModerationStore) ListReports(ctx context.Context, filter moderation.ReportFilter, offset, limit int) ([]moderation.Report, int, error) {
	where, args := reportWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports`+where+
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []moderation.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *r)
	}
	return reports, total, rows.Err()
}

func (s *ModerationStore) CountReportsByStatus(ctx context.Context) (map[moderation.ReportStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[moderation.ReportStatus]int)
	for rows.Next() {
		var status moderation.ReportStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// transition runs the conditional update inside tx. The status predicate in
// the WHERE clause makes the check and the write a single statement.
func transition(ctx context.Context, tx *sql.Tx, id string, from moderation.ReportStatus, t moderation.Transition) (*moderation.Report, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE reports SET status = ?, reviewer_id = ?, processing_action = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(t.To), t.ReviewerID, t.ProcessingAction, toNanos(t.At), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	r, err := scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, moderation.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, &moderation.StatusMismatchError{ReportID: id, Expected: from, Actual: r.Status}
	}
	return r, nil
}

func (s *ModerationStore) TransitionReport(ctx context.Context, id string, from moderation.ReportStatus, t moderation.Transition) (*moderation.Report, error) {
	var updated *moderation.Report
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		updated, err = transition(ctx, tx, id, from, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ========== Punishments and accounts ==========

func (s *ModerationStore) ApplyPunishment(ctx context.Context, commit moderation.PunishmentCommit) (*moderation.Report, *moderation.Account, error) {
	var (
		report  *moderation.Report
		account *moderation.Account
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		report, err = transition(ctx, tx, commit.ReportID, moderation.ReportStatusReviewed, commit.Transition)
		if err != nil {
			return err
		}

		p := commit.Punishment
		_, err = tx.ExecContext(ctx, `
			INSERT INTO punishments (id, report_id, user_id, moderator_id, violation_level, points, detail, proof_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.ReportID, p.UserID, p.ModeratorID, p.ViolationLevel, p.Points, p.Detail, p.ProofURL, toNanos(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert punishment: %w", err)
		}

		account, err = loadAccount(ctx, tx, p.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			account = moderation.NewAccount(p.UserID)
		}
		commit.Restriction.ApplyTo(account, commit.Transition.At)
		return saveAccount(ctx, tx, account)
	})
	if err != nil {
		return nil, nil, err
	}
	return report, account, nil
}

func (s *ModerationStore) GetAccount(ctx context.Context, userID string) (*moderation.Account, error) {
	var account *moderation.Account
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		account, err = loadAccount(ctx, tx, userID)
		return err
	})
	return account, err
}

// loadAccount reads an account and its blocks, or returns nil, nil.
func loadAccount(ctx context.Context, tx *sql.Tx, userID string) (*moderation.Account, error) {
	var a moderation.Account
	var bannedUntil sql.NullInt64
	var updatedAt int64
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, status, banned_until, score, updated_at FROM accounts WHERE user_id = ?
	`, userID).Scan(&a.UserID, &a.Status, &bannedUntil, &a.Score, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	a.UpdatedAt = fromNanos(updatedAt)
	if bannedUntil.Valid {
		t := fromNanos(bannedUntil.Int64)
		a.BannedUntil = &t
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT feature, expires_at, reason, created_at FROM feature_blocks WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load feature blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b moderation.FeatureBlock
		var expiresAt, createdAt int64
		if err := rows.Scan(&b.Feature, &expiresAt, &b.Reason, &createdAt); err != nil {
			return nil, err
		}
		b.ExpiresAt = fromNanos(expiresAt)
		b.CreatedAt = fromNanos(createdAt)
		a.FeatureBlocks = append(a.FeatureBlocks, b)
	}
	return &a, rows.Err()
}

// saveAccount upserts the account row and replaces its blocks.
func saveAccount(ctx context.Context, tx *sql.Tx, a *moderation.Account) error {
	var bannedUntil sql.NullInt64
	if a.BannedUntil != nil {
		bannedUntil = sql.NullInt64{Int64: toNanos(*a.BannedUntil), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, status, banned_until, score, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status       = excluded.status,
			banned_until = excluded.banned_until,
			score        = excluded.score,
			updated_at   = excluded.updated_at
	`, a.UserID, string(a.Status), bannedUntil, a.Score, toNanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM feature_blocks WHERE user_id = ?`, a.UserID); err != nil {
		return fmt.Errorf("clear feature blocks: %w", err)
	}
	for _, b := range a.FeatureBlocks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO feature_blocks (user_id, feature, expires_at, reason, created_at) VALUES (?, ?, ?, ?, ?)
		`, a.UserID, b.Feature, toNanos(b.ExpiresAt), b.Reason, toNanos(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("save feature block: %w", err)
		}
	}
	return nil
}

func (s *ModerationStore) ListPunishments(ctx context.Context, userID string) ([]moderation.PunishmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, user_id, moderator_id, violation_level, points, detail, proof_url, created_at
		FROM punishments WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []moderation.PunishmentRecord
	for rows.Next() {
		var p moderation.PunishmentRecord
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.ReportID, &p.UserID, &p.ModeratorID, &p.ViolationLevel, &p.Points,
			&p.Detail, &p.ProofURL, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = fromNanos(createdAt)
		records = append(records, p)
	}
	return records, rows.Err()
}

func (s *ModerationStore) PruneExpiredBlocks(ctx context.Context, now time.Time) (int, error) {
	var removed int
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM feature_blocks WHERE expires_at <= ?`, toNanos(now))
		if err != nil {
			return fmt.Errorf("prune feature blocks: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)

		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET status = ?, banned_until = NULL, updated_at = ?
			WHERE status = ? AND banned_until IS NOT NULL AND banned_until <= ?
		`, string(moderation.AccountActive), toNanos(now), string(moderation.AccountBanned), toNanos(now))
		if err != nil {
			return fmt.Errorf("lift expired bans: %w", err)
		}
		return nil
	})
	return removed, err
}

// ========== Audit Log ==========

func (s *ModerationStore) LogAction(ctx context.Context, entry moderation.AuditEntry) error {
	var details string
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor_id, report_id, target_id, reason, details, timestamp, auto_mod)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Action), entry.ActorID, entry.ReportID, entry.TargetID, entry.Reason, details,
		toNanos(entry.Timestamp), boolInt(entry.AutoMod))
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

func (s *ModerationStore) ListAuditLog(ctx context.Context, limit int) ([]moderation.AuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor_id, report_id, target_id, reason, details, timestamp, auto_mod
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []moderation.AuditEntry
	for rows.Next() {
		var e moderation.AuditEntry
		var details string
		var ts int64
		var autoMod int
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.ReportID, &e.TargetID, &e.Reason, &details, &ts, &autoMod); err != nil {
			continue
		}
		if details != "" {
			_ = json.Unmarshal([]byte(details), &e.Details)
		}
		e.Timestamp = fromNanos(ts)
		e.AutoMod = autoMod == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

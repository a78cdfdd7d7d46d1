package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrReportNotFound is returned by stores when a transition targets a missing report.
var ErrReportNotFound = errors.New("report not found")

// StatusMismatchError is returned by stores when a conditional transition finds
// the report in a status other than the expected one.
type StatusMismatchError struct {
	ReportID string
	Expected ReportStatus
	Actual   ReportStatus
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("report %s is %s, expected %s", e.ReportID, e.Actual, e.Expected)
}

// ReportFilter narrows ListReports. Zero fields match everything.
type ReportFilter struct {
	Status     ReportStatus `json:"status,omitempty"`
	ItemType   ItemType     `json:"item_type,omitempty"`
	ReporterID string       `json:"reporter_id,omitempty"`
	Type       ReportType   `json:"type,omitempty"`
}

// Matches reports whether r passes the filter.
func (f ReportFilter) Matches(r *Report) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.ItemType != "" && r.ItemType != f.ItemType {
		return false
	}
	if f.ReporterID != "" && r.ReporterID != f.ReporterID {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	return true
}

// PunishmentCommit is everything ProcessReport writes. Stores apply it in a
// single transaction, conditional on the report still being reviewed.
type PunishmentCommit struct {
	ReportID    string
	Transition  Transition
	Punishment  PunishmentRecord
	Restriction Restriction
}

// Store defines the persistence interface for moderation data.
// Implementations must be safe for concurrent use.
type Store interface {
	// Reports
	CreateReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (*Report, error)
	// ListReports returns one page of matching reports, newest first, and the
	// total number of matches.
	ListReports(ctx context.Context, filter ReportFilter, offset, limit int) ([]Report, int, error)
	CountReportsByStatus(ctx context.Context) (map[ReportStatus]int, error)
	// TransitionReport moves a report from one status to another. It returns
	// ErrReportNotFound or *StatusMismatchError without writing anything when
	// the precondition does not hold.
	TransitionReport(ctx context.Context, id string, from ReportStatus, t Transition) (*Report, error)

	// Punishments and accounts
	ApplyPunishment(ctx context.Context, commit PunishmentCommit) (*Report, *Account, error)
	GetAccount(ctx context.Context, userID string) (*Account, error)
	ListPunishments(ctx context.Context, userID string) ([]PunishmentRecord, error)
	PruneExpiredBlocks(ctx context.Context, now time.Time) (int, error)

	// Audit log
	LogAction(ctx context.Context, entry AuditEntry) error
	ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error)
}

// Notifier is the sink for user notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ReportedItem is the resolved target of a report.
type ReportedItem struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	OwnerID   string    `json:"owner_id"` // author, uploader, or the user itself
	RoomID    string    `json:"room_id,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemLookup resolves one kind of reported item. It returns nil, nil when the
// item does not exist.
type ItemLookup interface {
	LookupItem(ctx context.Context, id string) (*ReportedItem, error)
}

// ItemLookupFunc adapts a function to ItemLookup.
type ItemLookupFunc func(ctx context.Context, id string) (*ReportedItem, error)

// LookupItem calls f.
func (f ItemLookupFunc) LookupItem(ctx context.Context, id string) (*ReportedItem, error) {
	return f(ctx, id)
}

// MessageDeleter soft-deletes chat messages. Deleting an already deleted or
// missing message is not an error.
type MessageDeleter interface {
	SoftDeleteMessage(ctx context.Context, id string) error
}

// MembershipLookup resolves a user's role in a room. ok is false when the
// user has no membership record.
type MembershipLookup interface {
	RoomRole(ctx context.Context, roomID, userID string) (role RoomRole, ok bool, err error)
}

// Reputation receives the score adjustments caused by report outcomes.
type Reputation interface {
	RewardReview(ctx context.Context, reporterID, reportID string) error
	PenalizePunishment(ctx context.Context, userID string, points int, reportID string) error
}

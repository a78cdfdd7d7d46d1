package moderation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tangled.org/studyhub.social/warden/internal/apperr"
	"tangled.org/studyhub.social/warden/internal/metrics"
	"tangled.org/studyhub.social/warden/internal/tracing"
)

// MinRejectReasonLength is the minimum length, in characters, of a rejection reason.
const MinRejectReasonLength = 5

// Page size bounds for FindReports.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Options wires the collaborators of a Service. Store and the item lookups are
// required; everything else may be nil.
type Options struct {
	// Items maps each item type to the lookup that resolves it.
	Items      map[ItemType]ItemLookup
	Messages   MessageDeleter
	Members    MembershipLookup
	Notifier   Notifier
	Reputation Reputation
	Roles      *Roles

	// BanDays and BlockDays are the defaults used when ProcessParams leaves
	// them unset.
	BanDays   int
	BlockDays int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service runs the report lifecycle: intake, review, rejection, processing
// and the read views over reports.
type Service struct {
	store      Store
	items      map[ItemType]ItemLookup
	messages   MessageDeleter
	members    MembershipLookup
	notifier   Notifier
	reputation Reputation
	roles      *Roles
	banDays    int
	blockDays  int
	now        func() time.Time
}

// NewService creates a report workflow service backed by store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		items:      opts.Items,
		messages:   opts.Messages,
		members:    opts.Members,
		notifier:   opts.Notifier,
		reputation: opts.Reputation,
		roles:      opts.Roles,
		banDays:    opts.BanDays,
		blockDays:  opts.BlockDays,
		now:        opts.Now,
	}
	if s.items == nil {
		s.items = make(map[ItemType]ItemLookup)
	}
	if s.banDays <= 0 {
		s.banDays = DefaultBanDays
	}
	if s.blockDays <= 0 {
		s.blockDays = DefaultBlockDays
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateReportInput is the user-supplied part of a new report.
type CreateReportInput struct {
	ItemID   string     `json:"item_id"`
	ItemType ItemType   `json:"item_type"`
	Type     ReportType `json:"type"`
	Content  string     `json:"content"`
	ProofURL string     `json:"proof_url,omitempty"`
}

// CreateReport validates the input, checks that the reported item exists and
// stores a new pending report.
func (s *Service) CreateReport(ctx context.Context, in CreateReportInput, reporterID string) (report *Report, err error) {
	const op = "create_report"
	ctx, span := tracing.ReportSpan(ctx, op, "")
	defer func() { tracing.EndWithError(span, err); span.End() }()

	in.ItemID = strings.TrimSpace(in.ItemID)
	reporterID = strings.TrimSpace(reporterID)
	switch {
	case reporterID == "":
		return nil, apperr.Validation(op, "reporter id is required")
	case in.ItemID == "":
		return nil, apperr.Validation(op, "reported item id is required")
	case in.ItemType == "":
		return nil, apperr.Validation(op, "reported item type is required")
	case !in.ItemType.Valid():
		return nil, apperr.Validation(op, "invalid reported item type %q", in.ItemType)
	case in.Type == "":
		return nil, apperr.Validation(op, "report type is required")
	case !in.Type.Valid():
		return nil, apperr.Validation(op, "invalid report type %q", in.Type)
	}

	_, err = s.lookupItem(ctx, op, in.ItemType, in.ItemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := Report{
		ID:         newID(),
		ReporterID: reporterID,
		ItemID:     in.ItemID,
		ItemType:   in.ItemType,
		Type:       in.Type,
		Content:    strings.TrimSpace(in.Content),
		ProofURL:   strings.TrimSpace(in.ProofURL),
		Status:     ReportStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	source := "user"
	if reporterID == SystemReporterID {
		source = "auto"
	}
	metrics.ReportsCreatedTotal.WithLabelValues(string(r.ItemType), source).Inc()

	s.audit(ctx, AuditEntry{
		Action:   AuditActionCreateReport,
		ActorID:  reporterID,
		ReportID: r.ID,
		TargetID: r.ItemID,
		Reason:   string(r.Type),
		Details:  map[string]string{"item_type": string(r.ItemType)},
		AutoMod:  reporterID == SystemReporterID,
	})

	log.Info().
		Str("report_id", r.ID).
		Str("reporter", reporterID).
		Str("item_id", r.ItemID).
		Str("item_type", string(r.ItemType)).
		Str("type", string(r.Type)).
		Msg("Report created")

	return &r, nil
}

// TransitionResult is returned by ReviewReport and RejectReport.
type TransitionResult struct {
	Report        *Report        `json:"report"`
	Notifications []Notification `json:"notifications"`
}

// ReviewReport accepts a pending report. A reported message is soft-deleted,
// the reporter and the accused are notified and the reporter earns report
// reputation.
func (s *Service) ReviewReport(ctx context.Context, reportID, reviewerID string) (result *TransitionResult, err error) {
	const op = "review_report"
	ctx, span := tracing.ReportSpan(ctx, op, reportID)
	defer func() { tracing.EndWithError(span, err); span.End() }()

	if reviewerID == "" {
		return nil, apperr.Validation(op, "reviewer id is required")
	}
	if err := s.requirePermission(op, reviewerID, PermissionReviewReport); err != nil {
		return nil, err
	}
	report, err := s.getReport(ctx, op, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != ReportStatusPending {
		metrics.ReportConflictsTotal.WithLabelValues(op).Inc()
		return nil, conflictError(op, report.ID, ReportStatusPending, report.Status)
	}

	accusedID := s.bestEffortAccused(ctx, report)

	updated, err := s.store.TransitionReport(ctx, report.ID, ReportStatusPending, Transition{
		To:         ReportStatusReviewed,
		ReviewerID: reviewerID,
		At:         s.now(),
	})
	if err != nil {
		return nil, s.transitionError(op, report.ID, ReportStatusPending, err)
	}
	metrics.ReportTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()

	// Only the reviewer that won the status write deletes the message. The
	// delete is idempotent; a failure is logged and the review stands.
	if report.ItemType == ItemMessage && s.messages != nil {
		if err := s.messages.SoftDeleteMessage(ctx, report.ItemID); err != nil {
			log.Error().Err(err).Str("report_id", report.ID).Str("message_id", report.ItemID).
				Msg("Failed to delete reviewed message")
		} else {
			s.audit(ctx, AuditEntry{
				Action:   AuditActionDeleteMessage,
				ActorID:  reviewerID,
				ReportID: report.ID,
				TargetID: report.ItemID,
				Reason:   "reported message reviewed",
			})
		}
	}
	s.audit(ctx, AuditEntry{
		Action:   AuditActionReviewReport,
		ActorID:  reviewerID,
		ReportID: report.ID,
		TargetID: report.ItemID,
	})

	if s.reputation != nil && updated.ReporterID != SystemReporterID {
		if err := s.reputation.RewardReview(ctx, updated.ReporterID, updated.ID); err != nil {
			log.Error().Err(err).Str("report_id", updated.ID).Str("user", updated.ReporterID).
				Msg("Failed to reward reporter")
		}
	}

	notes := s.notifyPair(ctx, updated,
		Notification{
			UserID:  updated.ReporterID,
			Kind:    NotifyReportReviewed,
			Message: "Your report has been reviewed by a moderator.",
		},
		Notification{
			UserID:  accusedID,
			Kind:    NotifyReportAgainst,
			Message: "A report concerning your content has been reviewed by a moderator.",
		},
	)

	log.Info().
		Str("report_id", updated.ID).
		Str("reviewer", reviewerID).
		Str("item_type", string(updated.ItemType)).
		Msg("Report reviewed")

	return &TransitionResult{Report: updated, Notifications: notes}, nil
}

// RejectReport dismisses a pending report with a reason.
func (s *Service) RejectReport(ctx context.Context, reportID, reviewerID, reason string) (result *TransitionResult, err error) {
	const op = "reject_report"
	ctx, span := tracing.ReportSpan(ctx, op, reportID)
	defer func() { tracing.EndWithError(span, err); span.End() }()

	reason = strings.TrimSpace(reason)
	if reviewerID == "" {
		return nil, apperr.Validation(op, "reviewer id is required")
	}
	if utf8.RuneCountInString(reason) < MinRejectReasonLength {
		return nil, apperr.Validation(op, "reason must be at least %d characters", MinRejectReasonLength)
	}
	if err := s.requirePermission(op, reviewerID, PermissionRejectReport); err != nil {
		return nil, err
	}
	report, err := s.getReport(ctx, op, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != ReportStatusPending {
		metrics.ReportConflictsTotal.WithLabelValues(op).Inc()
		return nil, conflictError(op, report.ID, ReportStatusPending, report.Status)
	}

	accusedID := s.bestEffortAccused(ctx, report)

	updated, err := s.store.TransitionReport(ctx, report.ID, ReportStatusPending, Transition{
		To:               ReportStatusDismissed,
		ReviewerID:       reviewerID,
		ProcessingAction: reason,
		At:               s.now(),
	})
	if err != nil {
		return nil, s.transitionError(op, report.ID, ReportStatusPending, err)
	}
	metrics.ReportTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()

	s.audit(ctx, AuditEntry{
		Action:   AuditActionRejectReport,
		ActorID:  reviewerID,
		ReportID: report.ID,
		TargetID: report.ItemID,
		Reason:   reason,
	})

	notes := s.notifyPair(ctx, updated,
		Notification{
			UserID:  updated.ReporterID,
			Kind:    NotifyReportDismissed,
			Message: "Your report was dismissed: " + reason,
		},
		Notification{
			UserID:  accusedID,
			Kind:    NotifyReportCleared,
			Message: "A report concerning your content was dismissed.",
		},
	)

	log.Info().
		Str("report_id", updated.ID).
		Str("reviewer", reviewerID).
		Str("reason", reason).
		Msg("Report dismissed")

	return &TransitionResult{Report: updated, Notifications: notes}, nil
}

// ProcessParams are the moderator's inputs for punishing a reviewed report.
type ProcessParams struct {
	ReportID       string `json:"report_id"`
	ModeratorID    string `json:"moderator_id"`
	ViolationLevel int    `json:"violation_level"`
	ActionNote     string `json:"action_note"`
	ProofURL       string `json:"proof_url,omitempty"`
	BanDays        int    `json:"ban_days,omitempty"`
	BlockedDays    int    `json:"blocked_days,omitempty"`
}

// ProcessResult describes the punishment applied by ProcessReport.
type ProcessResult struct {
	Report         *Report           `json:"report"`
	AccusedUserID  string            `json:"accused_user_id"`
	AppliedAction  AppliedAction     `json:"applied_action"`
	ViolatedPoints int               `json:"violated_points"`
	Punishment     *PunishmentRecord `json:"punishment"`
	Account        *Account          `json:"account"`
	Notifications  []Notification    `json:"notifications"`
}

// ProcessReport punishes the accused of a reviewed report. The report status,
// the punishment record and the account restriction are committed together.
func (s *Service) ProcessReport(ctx context.Context, p ProcessParams) (result *ProcessResult, err error) {
	const op = "process_report"
	ctx, span := tracing.ReportSpan(ctx, op, p.ReportID)
	defer func() { tracing.EndWithError(span, err); span.End() }()

	p.ActionNote = strings.TrimSpace(p.ActionNote)
	switch {
	case p.ModeratorID == "":
		return nil, apperr.Validation(op, "moderator id is required")
	case !ValidLevel(p.ViolationLevel):
		return nil, apperr.Validation(op, "violation level must be 1, 2 or 3, got %d", p.ViolationLevel)
	case p.BanDays < 0 || p.BlockedDays < 0:
		return nil, apperr.Validation(op, "durations must not be negative")
	}
	if err := s.requirePermission(op, p.ModeratorID, PermissionProcessReport); err != nil {
		return nil, err
	}

	report, err := s.getReport(ctx, op, p.ReportID)
	if err != nil {
		return nil, err
	}
	if report.Status != ReportStatusReviewed {
		metrics.ReportConflictsTotal.WithLabelValues(op).Inc()
		return nil, conflictError(op, report.ID, ReportStatusReviewed, report.Status)
	}

	accusedID, roomID, err := s.resolveAccused(ctx, op, report)
	if err != nil {
		return nil, err
	}

	if s.roles != nil && s.roles.IsModerator(accusedID) && !s.roles.IsAdmin(p.ModeratorID) {
		return nil, apperr.Permission(op, "only an admin may process a report against a moderator or admin")
	}

	role, err := s.roomRole(ctx, roomID, accusedID)
	if err != nil {
		return nil, err
	}
	points, err := Points(p.ViolationLevel, role)
	if err != nil {
		return nil, err
	}

	banDays, blockDays := p.BanDays, p.BlockedDays
	if banDays == 0 {
		banDays = s.banDays
	}
	if blockDays == 0 {
		blockDays = s.blockDays
	}

	now := s.now()
	note := p.ActionNote
	if note == "" {
		note = fmt.Sprintf("violation level %d", p.ViolationLevel)
	}
	restriction, err := BuildRestriction(p.ViolationLevel, now, banDays, blockDays, note)
	if err != nil {
		return nil, err
	}

	final := ReportStatusActionTaken
	if p.ViolationLevel == LevelLight {
		final = ReportStatusWarninged
	}

	punishment := PunishmentRecord{
		ID:             newID(),
		ReportID:       report.ID,
		UserID:         accusedID,
		ModeratorID:    p.ModeratorID,
		ViolationLevel: p.ViolationLevel,
		Points:         points,
		Detail:         note,
		ProofURL:       strings.TrimSpace(p.ProofURL),
		CreatedAt:      now,
	}

	updated, account, err := s.store.ApplyPunishment(ctx, PunishmentCommit{
		ReportID: report.ID,
		Transition: Transition{
			To:               final,
			ReviewerID:       p.ModeratorID,
			ProcessingAction: note,
			At:               now,
		},
		Punishment:  punishment,
		Restriction: restriction,
	})
	if err != nil {
		return nil, s.transitionError(op, report.ID, ReportStatusReviewed, err)
	}
	metrics.ReportTransitionsTotal.WithLabelValues(string(updated.Status)).Inc()
	metrics.PunishmentsTotal.WithLabelValues(strconv.Itoa(p.ViolationLevel)).Inc()
	metrics.PunishmentPointsTotal.Add(float64(points))

	if s.reputation != nil {
		if err := s.reputation.PenalizePunishment(ctx, accusedID, points, updated.ID); err != nil {
			log.Error().Err(err).Str("report_id", updated.ID).Str("user", accusedID).
				Msg("Failed to debit reputation for punishment")
		}
	}

	s.audit(ctx, AuditEntry{
		Action:   AuditActionProcessReport,
		ActorID:  p.ModeratorID,
		ReportID: report.ID,
		TargetID: accusedID,
		Reason:   note,
		Details: map[string]string{
			"level":       strconv.Itoa(p.ViolationLevel),
			"points":      strconv.Itoa(points),
			"action":      string(restriction.Action),
			"room_role":   string(role),
			"punishment":  punishment.ID,
			"final_state": string(final),
		},
	})

	notes := s.notifyPair(ctx, updated,
		Notification{
			UserID:  accusedID,
			Kind:    NotifyPunished,
			Message: punishmentMessage(restriction, points),
		},
		Notification{
			UserID:  updated.ReporterID,
			Kind:    NotifyActionTaken,
			Message: "Action has been taken on your report.",
		},
	)

	log.Info().
		Str("report_id", updated.ID).
		Str("moderator", p.ModeratorID).
		Str("accused", accusedID).
		Int("level", p.ViolationLevel).
		Int("points", points).
		Str("action", string(restriction.Action)).
		Msg("Report processed")

	return &ProcessResult{
		Report:         updated,
		AccusedUserID:  accusedID,
		AppliedAction:  restriction.Action,
		ViolatedPoints: points,
		Punishment:     &punishment,
		Account:        account,
		Notifications:  notes,
	}, nil
}

func punishmentMessage(r Restriction, points int) string {
	switch r.Action {
	case ActionBan:
		return fmt.Sprintf("Your account has been banned until %s (%d points).", r.BannedUntil.Format(time.DateOnly), points)
	case ActionFeatureBlock:
		return fmt.Sprintf("Some features are restricted until %s (%d points).", r.Blocks[0].ExpiresAt.Format(time.DateOnly), points)
	}
	return fmt.Sprintf("You have received a warning (%d points).", points)
}

// PageOptions selects one page of a listing. Zero values use the defaults.
type PageOptions struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func (o PageOptions) normalize() PageOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageLimit
	}
	if o.Limit > MaxPageLimit {
		o.Limit = MaxPageLimit
	}
	return o
}

// ReportPage is one page of FindReports results.
type ReportPage struct {
	Items []Report `json:"items"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
	Pages int      `json:"pages"`
}

// FindReports lists reports matching filter, newest first.
func (s *Service) FindReports(ctx context.Context, filter ReportFilter, opts PageOptions) (*ReportPage, error) {
	const op = "find_reports"
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation(op, "invalid status %q", filter.Status)
	}
	if filter.ItemType != "" && !filter.ItemType.Valid() {
		return nil, apperr.Validation(op, "invalid item type %q", filter.ItemType)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperr.Validation(op, "invalid report type %q", filter.Type)
	}

	opts = opts.normalize()
	items, total, err := s.store.ListReports(ctx, filter, (opts.Page-1)*opts.Limit, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	if items == nil {
		items = []Report{}
	}
	return &ReportPage{
		Items: items,
		Total: total,
		Page:  opts.Page,
		Limit: opts.Limit,
		Pages: int(math.Ceil(float64(total) / float64(opts.Limit))),
	}, nil
}

// ReportDetails is a report with its resolved target.
type ReportDetails struct {
	Report *Report       `json:"report"`
	Item   *ReportedItem `json:"reported_item"`
}

// ViewReportDetails returns a report together with the item it points at.
func (s *Service) ViewReportDetails(ctx context.Context, reportID string) (*ReportDetails, error) {
	const op = "view_report"
	report, err := s.getReport(ctx, op, reportID)
	if err != nil {
		return nil, err
	}
	item, err := s.lookupItem(ctx, op, report.ItemType, report.ItemID)
	if err != nil {
		return nil, err
	}
	return &ReportDetails{Report: report, Item: item}, nil
}

// GetReportedUserID returns the user accountable for the reported item: the
// user itself, the message author or the document uploader.
func (s *Service) GetReportedUserID(ctx context.Context, report *Report) (string, error) {
	userID, _, err := s.resolveAccused(ctx, "reported_user", report)
	return userID, err
}

// CheckFeature enforces restrictions for other subsystems. It returns a
// permission error when the user is banned or feature is blocked.
func (s *Service) CheckFeature(ctx context.Context, userID, feature string) error {
	const op = "check_feature"
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil
	}
	now := s.now()
	if account.IsBanned(now) {
		return apperr.Permission(op, "account is banned until %s", account.BannedUntil.Format(time.RFC3339))
	}
	if !account.CanUse(feature, now) {
		return apperr.Permission(op, "feature %s is temporarily blocked", feature)
	}
	return nil
}

// GetAccount returns the moderation state of a user. Users never punished get
// an active account.
func (s *Service) GetAccount(ctx context.Context, userID string) (*Account, error) {
	account, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		account = NewAccount(userID)
	}
	return account, nil
}

// ListPunishments returns a user's punishment history, newest first.
func (s *Service) ListPunishments(ctx context.Context, userID string) ([]PunishmentRecord, error) {
	return s.store.ListPunishments(ctx, userID)
}

// AuditLog returns the most recent moderation actions.
func (s *Service) AuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	return s.store.ListAuditLog(ctx, limit)
}

// PruneExpiredBlocks removes feature blocks that can no longer deny anything.
func (s *Service) PruneExpiredBlocks(ctx context.Context) (int, error) {
	n, err := s.store.PruneExpiredBlocks(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune feature blocks: %w", err)
	}
	if n > 0 {
		metrics.FeatureBlocksPrunedTotal.Add(float64(n))
		s.audit(ctx, AuditEntry{
			Action:  AuditActionPruneBlocks,
			ActorID: SystemReporterID,
			Details: map[string]string{"removed": strconv.Itoa(n)},
			AutoMod: true,
		})
	}
	return n, nil
}

// StartPruner runs PruneExpiredBlocks every interval until ctx is cancelled.
func (s *Service) StartPruner(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PruneExpiredBlocks(ctx)
				if err != nil {
					log.Error().Err(err).Msg("Feature block compaction failed")
					continue
				}
				if n > 0 {
					log.Info().Int("removed", n).Msg("Pruned expired feature blocks")
				}
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Feature block pruner started")
}

func (s *Service) getReport(ctx context.Context, op, reportID string) (*Report, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, apperr.Validation(op, "report id is required")
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if report == nil {
		return nil, apperr.NotFound(op, "report %s not found", reportID)
	}
	return report, nil
}

func (s *Service) lookupItem(ctx context.Context, op string, t ItemType, id string) (*ReportedItem, error) {
	lookup, ok := s.items[t]
	if !ok {
		return nil, apperr.Validation(op, "no lookup configured for item type %q", t)
	}
	item, err := lookup.LookupItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %s: %w", t, id, err)
	}
	if item == nil {
		return nil, apperr.NotFound(op, "%s %s not found", t, id)
	}
	return item, nil
}

// resolveAccused returns the accountable user and, for room content, the room.
func (s *Service) resolveAccused(ctx context.Context, op string, report *Report) (string, string, error) {
	if report.ItemType == ItemUser {
		return report.ItemID, "", nil
	}
	item, err := s.lookupItem(ctx, op, report.ItemType, report.ItemID)
	if err != nil {
		return "", "", err
	}
	if item.OwnerID == "" {
		return "", "", apperr.NotFound(op, "owner of %s %s not found", report.ItemType, report.ItemID)
	}
	return item.OwnerID, item.RoomID, nil
}

// bestEffortAccused resolves the accused for notification purposes only.
func (s *Service) bestEffortAccused(ctx context.Context, report *Report) string {
	userID, _, err := s.resolveAccused(ctx, "notify", report)
	if err != nil {
		log.Warn().Err(err).Str("report_id", report.ID).Msg("Could not resolve accused user, skipping notification")
		return ""
	}
	return userID
}

func (s *Service) roomRole(ctx context.Context, roomID, userID string) (RoomRole, error) {
	if roomID == "" || s.members == nil {
		return RoomRoleMember, nil
	}
	role, ok, err := s.members.RoomRole(ctx, roomID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up room role: %w", err)
	}
	if !ok || role == "" {
		return RoomRoleMember, nil
	}
	return role, nil
}

// requirePermission checks the actor against the roster when one is loaded.
// Without a roster the caller is trusted to have authorized the actor.
func (s *Service) requirePermission(op, actorID string, perm Permission) error {
	if s.roles == nil || !s.roles.IsEnabled() {
		return nil
	}
	if !s.roles.HasPermission(actorID, perm) {
		return apperr.Permission(op, "user %s lacks permission %s", actorID, perm)
	}
	return nil
}

func (s *Service) transitionError(op, reportID string, expected ReportStatus, err error) error {
	var mismatch *StatusMismatchError
	switch {
	case errors.As(err, &mismatch):
		metrics.ReportConflictsTotal.WithLabelValues(op).Inc()
		return conflictError(op, reportID, expected, mismatch.Actual)
	case errors.Is(err, ErrReportNotFound):
		return apperr.NotFound(op, "report %s not found", reportID)
	}
	return fmt.Errorf("failed to update report: %w", err)
}

// conflictError explains why a report in status cannot undergo op, which
// requires expected.
func conflictError(op, reportID string, expected, status ReportStatus) error {
	var msg string
	switch status {
	case ReportStatusPending:
		msg = "report has not been reviewed yet"
	case ReportStatusReviewed:
		msg = "report has already been reviewed"
	case ReportStatusDismissed:
		msg = "report has already been dismissed"
	case ReportStatusActionTaken:
		msg = "report has already been processed"
	case ReportStatusWarninged:
		msg = "report has already been processed with a warning"
	default:
		msg = fmt.Sprintf("report is in unexpected status %q", status)
	}
	return &apperr.Error{
		Kind:    apperr.ErrStateConflict,
		Op:      op,
		Message: msg,
		Err:     &StatusMismatchError{ReportID: reportID, Expected: expected, Actual: status},
	}
}

// notifyPair delivers the notifications of a transition and returns the ones
// that were stored. Recipients that are empty or equal to the system identity
// are skipped, as are duplicates.
func (s *Service) notifyPair(ctx context.Context, report *Report, notes ...Notification) []Notification {
	if s.notifier == nil {
		return nil
	}
	sent := make([]Notification, 0, len(notes))
	seen := make(map[string]bool, len(notes))
	for _, n := range notes {
		if n.UserID == "" || n.UserID == SystemReporterID || seen[n.UserID] {
			continue
		}
		seen[n.UserID] = true
		n.ID = newID()
		n.ReportID = report.ID
		n.CreatedAt = s.now()
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Warn().Err(err).
				Str("report_id", report.ID).
				Str("recipient", n.UserID).
				Str("kind", string(n.Kind)).
				Msg("failed to create report notification")
			continue
		}
		sent = append(sent, n)
	}
	return sent
}

// audit records an action; failures are logged and discarded.
func (s *Service) audit(ctx context.Context, entry AuditEntry) {
	entry.ID = newID()
	entry.Timestamp = s.now()
	if err := s.store.LogAction(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", string(entry.Action)).Str("report_id", entry.ReportID).
			Msg("Failed to log moderation action")
	}
}

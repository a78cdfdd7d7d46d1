package moderation

import "time"

// SystemReporterID is the reporter identity used for reports raised by the
// automatic content classifier.
const SystemReporterID = "system"

// ItemType identifies what kind of thing a report points at.
type ItemType string

const (
	ItemMessage  ItemType = "message"
	ItemDocument ItemType = "document"
	ItemUser     ItemType = "user"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case ItemMessage, ItemDocument, ItemUser:
		return true
	}
	return false
}

// ReportType is the category of an accusation.
type ReportType string

const (
	ReportTypeSpam            ReportType = "spam"
	ReportTypeViolatedContent ReportType = "violated_content"
	ReportTypeInfectedFile    ReportType = "infected_file"
	ReportTypeOffense         ReportType = "offense"
	ReportTypeMisuseAuthority ReportType = "misuse_authority"
	ReportTypeOther           ReportType = "other"
)

// Valid reports whether t is one of the known report types.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeSpam, ReportTypeViolatedContent, ReportTypeInfectedFile,
		ReportTypeOffense, ReportTypeMisuseAuthority, ReportTypeOther:
		return true
	}
	return false
}

// ReportStatus represents the lifecycle state of a report
type ReportStatus string

const (
	ReportStatusPending     ReportStatus = "pending"
	ReportStatusReviewed    ReportStatus = "reviewed"
	ReportStatusDismissed   ReportStatus = "dismissed"
	ReportStatusActionTaken ReportStatus = "action_taken"
	ReportStatusWarninged   ReportStatus = "warninged"
)

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportStatusPending, ReportStatusReviewed, ReportStatusDismissed,
		ReportStatusActionTaken, ReportStatusWarninged:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusDismissed || s == ReportStatusActionTaken || s == ReportStatusWarninged
}

// Report represents an accusation against a message, document or user
type Report struct {
	ID               string       `json:"id"`
	ReporterID       string       `json:"reporter_id"`
	ItemID           string       `json:"item_id"`
	ItemType         ItemType     `json:"item_type"`
	Type             ReportType   `json:"type"`
	Content          string       `json:"content"`
	ProofURL         string       `json:"proof_url,omitempty"`
	Status           ReportStatus `json:"status"`
	ReviewerID       string       `json:"reviewer_id,omitempty"` // empty until a moderator acts
	ProcessingAction string       `json:"processing_action,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Transition describes a status change applied to a report by a moderator.
type Transition struct {
	To               ReportStatus
	ReviewerID       string
	ProcessingAction string
	At               time.Time
}

// Apply writes the transition onto r.
func (t Transition) Apply(r *Report) {
	r.Status = t.To
	r.ReviewerID = t.ReviewerID
	r.ProcessingAction = t.ProcessingAction
	r.UpdatedAt = t.At
}

// PunishmentRecord is the immutable result of processing a report.
type PunishmentRecord struct {
	ID             string    `json:"id"`
	ReportID       string    `json:"report_id"`
	UserID         string    `json:"user_id"` // accused
	ModeratorID    string    `json:"moderator_id"`
	ViolationLevel int       `json:"violation_level"`
	Points         int       `json:"points"`
	Detail         string    `json:"detail"`
	ProofURL       string    `json:"proof_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccountStatus is the moderation status of a user account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountBanned AccountStatus = "banned"
)

// Feature names gated by feature blocks.
const (
	FeatureSendMessage    = "send_message"
	FeatureChatRateLimit  = "chat_rate_limit"
	FeatureUploadDocument = "upload_document"
	FeatureCreateEvent    = "create_event"
	FeatureModerateRoom   = "moderate_room"
	FeatureUpdateRoom     = "update_room"
	FeaturePollAction     = "poll_action"
)

// BasicFeatures is the set of features blocked by a level 2 violation.
var BasicFeatures = []string{
	FeatureSendMessage,
	FeatureChatRateLimit,
	FeatureUploadDocument,
	FeatureCreateEvent,
	FeatureModerateRoom,
	FeatureUpdateRoom,
	FeaturePollAction,
}

// FeatureBlock denies one feature to a user until ExpiresAt.
type FeatureBlock struct {
	Feature   string    `json:"feature"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is the moderation view of a user.
type Account struct {
	UserID        string         `json:"user_id"`
	Status        AccountStatus  `json:"status"`
	BannedUntil   *time.Time     `json:"banned_until,omitempty"`
	FeatureBlocks []FeatureBlock `json:"feature_blocks,omitempty"`
	Score         int            `json:"score"` // mirrors the reputation total
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewAccount returns an active account with no restrictions.
func NewAccount(userID string) *Account {
	return &Account{UserID: userID, Status: AccountActive}
}

// NotificationKind classifies notifications emitted by the report workflow.
type NotificationKind string

const (
	NotifyReportReviewed  NotificationKind = "report_reviewed"
	NotifyReportAgainst   NotificationKind = "report_against_reviewed"
	NotifyReportDismissed NotificationKind = "report_dismissed"
	NotifyReportCleared   NotificationKind = "report_against_dismissed"
	NotifyActionTaken     NotificationKind = "report_action_taken"
	NotifyPunished        NotificationKind = "punishment_applied"
)

// Notification informs a user about the outcome of a report.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"` // recipient
	Kind      NotificationKind `json:"kind"`
	ReportID  string           `json:"report_id"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// AuditAction represents a type of moderation action
type AuditAction string

const (
	AuditActionCreateReport  AuditAction = "create_report"
	AuditActionReviewReport  AuditAction = "review_report"
	AuditActionRejectReport  AuditAction = "reject_report"
	AuditActionProcessReport AuditAction = "process_report"
	AuditActionDeleteMessage AuditAction = "delete_message"
	AuditActionPruneBlocks   AuditAction = "prune_feature_blocks"
)

// AuditEntry represents a logged moderation action
type AuditEntry struct {
	ID        string            `json:"id"`
	Action    AuditAction       `json:"action"`
	ActorID   string            `json:"actor_id"` // moderator id or "system"
	ReportID  string            `json:"report_id,omitempty"`
	TargetID  string            `json:"target_id"` // item or user acted upon
	Reason    string            `json:"reason"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	AutoMod   bool              `json:"auto_mod"`
}

package moderation

import (
	"math"
	"time"

	"tangled.org/studyhub.social/warden/internal/apperr"
)

// RoomRole is a user's role within a study room.
type RoomRole string

const (
	RoomRoleLeader       RoomRole = "leader"
	RoomRoleActingLeader RoomRole = "acting-leader"
	RoomRoleCoHost       RoomRole = "co-host"
	RoomRoleModerator    RoomRole = "moderator"
	RoomRoleMember       RoomRole = "member"
)

// Elevated reports whether the role carries room authority.
func (r RoomRole) Elevated() bool {
	switch r {
	case RoomRoleLeader, RoomRoleActingLeader, RoomRoleCoHost, RoomRoleModerator:
		return true
	}
	return false
}

// Violation levels assigned by a moderator.
const (
	LevelLight    = 1
	LevelModerate = 2
	LevelSevere   = 3
)

var basePoints = map[int]float64{
	LevelLight:    1,
	LevelModerate: 3,
	LevelSevere:   10,
}

// elevatedMultiplier applies to users holding a room role above member.
const elevatedMultiplier = 1.5

// ValidLevel reports whether level is a known violation level.
func ValidLevel(level int) bool {
	_, ok := basePoints[level]
	return ok
}

// Points returns the punishment points for a violation of the given level by
// a user holding role. Unknown roles count as member.
func Points(level int, role RoomRole) (int, error) {
	base, ok := basePoints[level]
	if !ok {
		return 0, apperr.Validation("punishment_points", "invalid violation level %d", level)
	}
	multiplier := 1.0
	if role.Elevated() {
		multiplier = elevatedMultiplier
	}
	return int(math.Ceil(base * multiplier)), nil
}

// Default restriction durations.
const (
	DefaultBanDays   = 90
	DefaultBlockDays = 7
	lightBlockDays   = 1
)

// AppliedAction names the restriction that processing applied.
type AppliedAction string

const (
	ActionBan          AppliedAction = "ban"
	ActionFeatureBlock AppliedAction = "feature_block"
	ActionWarning      AppliedAction = "warning"
)

// Restriction is the set of changes a violation applies to an account.
type Restriction struct {
	Action      AppliedAction
	BannedUntil *time.Time
	Blocks      []FeatureBlock
}

// BuildRestriction returns the restriction for a violation level. banDays and
// blockedDays fall back to the defaults when not positive.
func BuildRestriction(level int, now time.Time, banDays, blockedDays int, reason string) (Restriction, error) {
	if banDays <= 0 {
		banDays = DefaultBanDays
	}
	if blockedDays <= 0 {
		blockedDays = DefaultBlockDays
	}

	switch level {
	case LevelSevere:
		until := now.AddDate(0, 0, banDays)
		return Restriction{Action: ActionBan, BannedUntil: &until}, nil
	case LevelModerate:
		expires := now.AddDate(0, 0, blockedDays)
		blocks := make([]FeatureBlock, 0, len(BasicFeatures))
		for _, feature := range BasicFeatures {
			blocks = append(blocks, FeatureBlock{
				Feature:   feature,
				ExpiresAt: expires,
				Reason:    reason,
				CreatedAt: now,
			})
		}
		return Restriction{Action: ActionFeatureBlock, Blocks: blocks}, nil
	case LevelLight:
		return Restriction{
			Action: ActionWarning,
			Blocks: []FeatureBlock{{
				Feature:   FeatureChatRateLimit,
				ExpiresAt: now.AddDate(0, 0, lightBlockDays),
				Reason:    reason,
				CreatedAt: now,
			}},
		}, nil
	}
	return Restriction{}, apperr.Validation("build_restriction", "invalid violation level %d", level)
}

// ApplyTo mutates the account. Blocks are appended, never merged.
func (r Restriction) ApplyTo(a *Account, now time.Time) {
	if r.BannedUntil != nil {
		until := *r.BannedUntil
		a.Status = AccountBanned
		a.BannedUntil = &until
	}
	a.FeatureBlocks = append(a.FeatureBlocks, r.Blocks...)
	a.UpdatedAt = now
}

// IsBanned reports whether the account is under an unexpired ban.
func (a *Account) IsBanned(now time.Time) bool {
	return a.Status == AccountBanned && a.BannedUntil != nil && now.Before(*a.BannedUntil)
}

// CanUse reports whether the account may use feature at now: it must not be
// banned and no block for feature may still be active.
func (a *Account) CanUse(feature string, now time.Time) bool {
	if a.IsBanned(now) {
		return false
	}
	for _, b := range a.FeatureBlocks {
		if b.Feature == feature && b.ExpiresAt.After(now) {
			return false
		}
	}
	return true
}

// PruneExpired drops blocks that expired at or before now and returns how many
// were removed. Active blocks are kept in order.
func (a *Account) PruneExpired(now time.Time) int {
	kept := a.FeatureBlocks[:0]
	for _, b := range a.FeatureBlocks {
		if b.ExpiresAt.After(now) {
			kept = append(kept, b)
		}
	}
	removed := len(a.FeatureBlocks) - len(kept)
	if len(kept) == 0 {
		kept = nil
	}
	a.FeatureBlocks = kept
	return removed
}

// LiftExpiredBan returns the account to active once its ban has run out.
func (a *Account) LiftExpiredBan(now time.Time) bool {
	if a.Status != AccountBanned || a.BannedUntil == nil || now.Before(*a.BannedUntil) {
		return false
	}
	a.Status = AccountActive
	a.BannedUntil = nil
	return true
}

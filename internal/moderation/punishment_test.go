package moderation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/studyhub.social/warden/internal/apperr"
)

func TestPoints(t *testing.T) {
	roles := []RoomRole{RoomRoleMember, RoomRoleLeader, RoomRoleActingLeader, RoomRoleCoHost, RoomRoleModerator}
	base := map[int]float64{1: 1, 2: 3, 3: 10}

	for level := 1; level <= 3; level++ {
		for _, role := range roles {
			multiplier := 1.5
			if role == RoomRoleMember {
				multiplier = 1
			}
			got, err := Points(level, role)
			require.NoError(t, err)
			assert.Equal(t, int(math.Ceil(base[level]*multiplier)), got, "level %d role %s", level, role)
		}
	}
}

func TestPoints_ByLevelAndRole(t *testing.T) {
	tests := []struct {
		level int
		role  RoomRole
		want  int
	}{
		{1, RoomRoleMember, 1},
		{1, RoomRoleLeader, 2},
		{2, RoomRoleMember, 3},
		{2, RoomRoleLeader, 5},
		{3, RoomRoleMember, 10},
		{3, RoomRoleCoHost, 15},
		{2, RoomRole("visitor"), 3},
	}
	for _, tt := range tests {
		got, err := Points(tt.level, tt.role)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "level %d role %s", tt.level, tt.role)
	}
}

func TestPoints_InvalidLevel(t *testing.T) {
	for _, level := range []int{0, 4, -1} {
		_, err := Points(level, RoomRoleMember)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
}

func TestBuildRestriction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("level 3 bans with default duration", func(t *testing.T) {
		r, err := BuildRestriction(LevelSevere, now, 0, 0, "hate speech")
		require.NoError(t, err)
		assert.Equal(t, ActionBan, r.Action)
		require.NotNil(t, r.BannedUntil)
		assert.Equal(t, now.AddDate(0, 0, 90), *r.BannedUntil)
		assert.Empty(t, r.Blocks)
	})

	t.Run("level 3 honours ban days", func(t *testing.T) {
		r, err := BuildRestriction(LevelSevere, now, 30, 0, "")
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, 30), *r.BannedUntil)
	})

	t.Run("level 2 blocks every basic feature", func(t *testing.T) {
		r, err := BuildRestriction(LevelModerate, now, 0, 3, "spam")
		require.NoError(t, err)
		assert.Equal(t, ActionFeatureBlock, r.Action)
		assert.Nil(t, r.BannedUntil)
		require.Len(t, r.Blocks, len(BasicFeatures))
		for i, b := range r.Blocks {
			assert.Equal(t, BasicFeatures[i], b.Feature)
			assert.Equal(t, now.AddDate(0, 0, 3), b.ExpiresAt)
			assert.Equal(t, "spam", b.Reason)
		}
	})

	t.Run("level 2 default duration", func(t *testing.T) {
		r, err := BuildRestriction(LevelModerate, now, 0, 0, "")
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(0, 0, 7), r.Blocks[0].ExpiresAt)
	})

	t.Run("level 1 rate limits chat for a day", func(t *testing.T) {
		r, err := BuildRestriction(LevelLight, now, 0, 30, "")
		require.NoError(t, err)
		assert.Equal(t, ActionWarning, r.Action)
		require.Len(t, r.Blocks, 1)
		assert.Equal(t, FeatureChatRateLimit, r.Blocks[0].Feature)
		assert.Equal(t, now.Add(24*time.Hour), r.Blocks[0].ExpiresAt)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := BuildRestriction(5, now, 0, 0, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}

func TestAccount_CanUse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fresh account", func(t *testing.T) {
		a := NewAccount("u1")
		for _, f := range BasicFeatures {
			assert.True(t, a.CanUse(f, now))
		}
	})

	t.Run("banned account", func(t *testing.T) {
		a := NewAccount("u1")
		r, _ := BuildRestriction(LevelSevere, now, 0, 0, "")
		r.ApplyTo(a, now)
		assert.Equal(t, AccountBanned, a.Status)
		assert.False(t, a.CanUse(FeatureSendMessage, now.Add(time.Hour)))
		assert.True(t, a.CanUse(FeatureSendMessage, now.AddDate(0, 0, 91)))
	})

	t.Run("blocked feature only", func(t *testing.T) {
		a := NewAccount("u1")
		r, _ := BuildRestriction(LevelLight, now, 0, 0, "")
		r.ApplyTo(a, now)
		assert.False(t, a.CanUse(FeatureChatRateLimit, now.Add(time.Hour)))
		assert.True(t, a.CanUse(FeatureSendMessage, now.Add(time.Hour)))
		assert.True(t, a.CanUse(FeatureChatRateLimit, now.Add(25*time.Hour)))
	})

	t.Run("any active block blocks", func(t *testing.T) {
		a := NewAccount("u1")
		a.FeatureBlocks = []FeatureBlock{
			{Feature: FeatureUploadDocument, ExpiresAt: now.Add(-time.Hour)},
			{Feature: FeatureUploadDocument, ExpiresAt: now.Add(time.Hour)},
		}
		assert.False(t, a.CanUse(FeatureUploadDocument, now))
	})
}

func TestRestriction_ApplyToIsAdditive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAccount("u1")

	first, _ := BuildRestriction(LevelLight, now, 0, 0, "first")
	second, _ := BuildRestriction(LevelLight, now.Add(time.Hour), 0, 0, "second")
	first.ApplyTo(a, now)
	second.ApplyTo(a, now.Add(time.Hour))

	require.Len(t, a.FeatureBlocks, 2)
	assert.Equal(t, "first", a.FeatureBlocks[0].Reason)
	assert.Equal(t, "second", a.FeatureBlocks[1].Reason)
}

func TestAccount_PruneExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAccount("u1")
	a.FeatureBlocks = []FeatureBlock{
		{Feature: "a", ExpiresAt: now.Add(-time.Hour)},
		{Feature: "b", ExpiresAt: now.Add(time.Hour)},
		{Feature: "c", ExpiresAt: now},
	}

	assert.Equal(t, 2, a.PruneExpired(now))
	require.Len(t, a.FeatureBlocks, 1)
	assert.Equal(t, "b", a.FeatureBlocks[0].Feature)

	assert.Equal(t, 1, a.PruneExpired(now.Add(2*time.Hour)))
	assert.Nil(t, a.FeatureBlocks)
}

func TestAccount_LiftExpiredBan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	a := &Account{UserID: "u1", Status: AccountBanned, BannedUntil: &until}

	assert.False(t, a.LiftExpiredBan(now))
	assert.True(t, a.LiftExpiredBan(now.Add(time.Hour)))
	assert.Equal(t, AccountActive, a.Status)
	assert.Nil(t, a.BannedUntil)
}

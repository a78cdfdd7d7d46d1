package boltstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tangled.org/studyhub.social/warden/internal/moderation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func setupTestModerationStore(t *testing.T) *ModerationStore {
	return setupTestStore(t).ModerationStore()
}

func newReport(id string, created time.Time) moderation.Report {
	return moderation.Report{
		ID:         id,
		ReporterID: "reporter-1",
		ItemID:     "msg-" + id,
		ItemType:   moderation.ItemMessage,
		Type:       moderation.ReportTypeOffense,
		Content:    "rude message",
		Status:     moderation.ReportStatusPending,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		r := newReport("r-get", base)
		require.NoError(t, store.CreateReport(ctx, r))

		got, err := store.GetReport(ctx, "r-get")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "reporter-1", got.ReporterID)
		assert.Equal(t, moderation.ReportStatusPending, got.Status)
		assert.True(t, base.Equal(got.CreatedAt))
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		assert.Error(t, store.CreateReport(ctx, newReport("r-get", base)))
	})

	t.Run("missing report", func(t *testing.T) {
		got, err := store.GetReport(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListReports(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		r := newReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			r.ItemType = moderation.ItemDocument
		}
		require.NoError(t, store.CreateReport(ctx, r))
	}

	t.Run("newest first with total", func(t *testing.T) {
		reports, total, err := store.ListReports(ctx, moderation.ReportFilter{}, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, reports, 2)
		assert.Equal(t, "r4", reports[0].ID)
		assert.Equal(t, "r3", reports[1].ID)
	})

	t.Run("last partial page", func(t *testing.T) {
		reports, total, err := store.ListReports(ctx, moderation.ReportFilter{}, 4, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, reports, 1)
		assert.Equal(t, "r0", reports[0].ID)
	})

	t.Run("offset past end", func(t *testing.T) {
		reports, total, err := store.ListReports(ctx, moderation.ReportFilter{}, 10, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Empty(t, reports)
	})

	t.Run("filtered", func(t *testing.T) {
		reports, total, err := store.ListReports(ctx, moderation.ReportFilter{ItemType: moderation.ItemDocument}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, reports, 2)
		assert.Equal(t, "r3", reports[0].ID)
		assert.Equal(t, "r1", reports[1].ID)
	})

	t.Run("counts by status", func(t *testing.T) {
		_, err := store.TransitionReport(ctx, "r0", moderation.ReportStatusPending, moderation.Transition{
			To: moderation.ReportStatusDismissed, ReviewerID: "mod", At: base,
		})
		require.NoError(t, err)

		counts, err := store.CountReportsByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, counts[moderation.ReportStatusPending])
		assert.Equal(t, 1, counts[moderation.ReportStatusDismissed])
	})
}

func TestTransitionReport(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateReport(ctx, newReport("r1", base)))

	at := base.Add(time.Hour)
	updated, err := store.TransitionReport(ctx, "r1", moderation.ReportStatusPending, moderation.Transition{
		To:               moderation.ReportStatusReviewed,
		ReviewerID:       "mod-1",
		ProcessingAction: "message deleted",
		At:               at,
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusReviewed, updated.Status)
	assert.Equal(t, "mod-1", updated.ReviewerID)
	assert.True(t, at.Equal(updated.UpdatedAt))

	_, err = store.TransitionReport(ctx, "r1", moderation.ReportStatusPending, moderation.Transition{
		To: moderation.ReportStatusDismissed, ReviewerID: "mod-2", At: at,
	})
	var mismatch *moderation.StatusMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, moderation.ReportStatusReviewed, mismatch.Actual)
	assert.Equal(t, moderation.ReportStatusPending, mismatch.Expected)

	got, err := store.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "mod-1", got.ReviewerID, "failed transition writes nothing")

	_, err = store.TransitionReport(ctx, "missing", moderation.ReportStatusPending, moderation.Transition{})
	assert.ErrorIs(t, err, moderation.ErrReportNotFound)
}

func TestTransitionReport_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	require.NoError(t, store.CreateReport(ctx, newReport("race", time.Now())))

	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		mismatch int
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TransitionReport(ctx, "race", moderation.ReportStatusPending, moderation.Transition{
				To: moderation.ReportStatusReviewed, ReviewerID: fmt.Sprintf("mod-%d", i), At: time.Now(),
			})
			mu.Lock()
			defer mu.Unlock()
			var sm *moderation.StatusMismatchError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &sm):
				mismatch++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, mismatch)
}

func TestApplyPunishment(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	r := newReport("r1", now)
	r.Status = moderation.ReportStatusReviewed
	require.NoError(t, store.CreateReport(ctx, r))

	restriction, err := moderation.BuildRestriction(moderation.LevelSevere, now, 90, 7, "spam")
	require.NoError(t, err)

	commit := moderation.PunishmentCommit{
		ReportID: "r1",
		Transition: moderation.Transition{
			To: moderation.ReportStatusActionTaken, ReviewerID: "mod-1", ProcessingAction: "spam", At: now,
		},
		Punishment: moderation.PunishmentRecord{
			ID: "p1", ReportID: "r1", UserID: "accused", ModeratorID: "mod-1",
			ViolationLevel: 3, Points: 10, Detail: "spam", CreatedAt: now,
		},
		Restriction: restriction,
	}

	report, account, err := store.ApplyPunishment(ctx, commit)
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusActionTaken, report.Status)
	assert.Equal(t, moderation.AccountBanned, account.Status)
	require.NotNil(t, account.BannedUntil)
	assert.True(t, now.AddDate(0, 0, 90).Equal(*account.BannedUntil))

	stored, err := store.GetAccount(ctx, "accused")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.CanUse(moderation.FeatureSendMessage, now.Add(time.Hour)))

	records, err := store.ListPunishments(ctx, "accused")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 10, records[0].Points)

	t.Run("second commit conflicts and writes nothing", func(t *testing.T) {
		commit.Punishment.ID = "p2"
		_, _, err := store.ApplyPunishment(ctx, commit)
		var mismatch *moderation.StatusMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, moderation.ReportStatusActionTaken, mismatch.Actual)

		records, err := store.ListPunishments(ctx, "accused")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestPruneExpiredBlocks(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i, level := range []int{moderation.LevelLight, moderation.LevelModerate} {
		id := fmt.Sprintf("r%d", i)
		r := newReport(id, now)
		r.Status = moderation.ReportStatusReviewed
		require.NoError(t, store.CreateReport(ctx, r))

		restriction, err := moderation.BuildRestriction(level, now, 90, 7, "x")
		require.NoError(t, err)
		_, _, err = store.ApplyPunishment(ctx, moderation.PunishmentCommit{
			ReportID:    id,
			Transition:  moderation.Transition{To: moderation.ReportStatusActionTaken, At: now},
			Punishment:  moderation.PunishmentRecord{ID: "p" + id, UserID: "u1", CreatedAt: now},
			Restriction: restriction,
		})
		require.NoError(t, err)
	}

	removed, err := store.PruneExpiredBlocks(ctx, now.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the one-day chat limit expired")

	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, account.FeatureBlocks, len(moderation.BasicFeatures))

	removed, err = store.PruneExpiredBlocks(ctx, now.Add(8*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, len(moderation.BasicFeatures), removed)

	account, err = store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, account.FeatureBlocks)
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, store.LogAction(ctx, moderation.AuditEntry{
			ID:        uuid.NewString(),
			Action:    moderation.AuditActionReviewReport,
			ActorID:   "mod-1",
			ReportID:  fmt.Sprintf("r%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := store.ListAuditLog(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "r4", entries[0].ReportID)
	assert.Equal(t, "r2", entries[2].ReportID)

	all, err := store.ListAuditLog(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestNonExistentRecords(t *testing.T) {
	ctx := context.Background()
	store := setupTestModerationStore(t)

	account, err := store.GetAccount(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, account)

	records, err := store.ListPunishments(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, records)

	entries, err := store.ListAuditLog(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/studyhub.social/warden/internal/moderation"
	"tangled.org/studyhub.social/warden/internal/reputation"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "warden.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReport(id string, created time.Time) moderation.Report {
	return moderation.Report{
		ID:         id,
		ReporterID: "reporter-1",
		ItemID:     "doc-" + id,
		ItemType:   moderation.ItemDocument,
		Type:       moderation.ReportTypeInfectedFile,
		Content:    "contains malware",
		ProofURL:   "https://files.example/proof.png",
		Status:     moderation.ReportStatusPending,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestModerationStore_Reports(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := range 4 {
		r := testReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 0 {
			r.ReporterID = moderation.SystemReporterID
		}
		require.NoError(t, store.CreateReport(ctx, r))
	}

	got, err := store.GetReport(ctx, "r2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, moderation.ItemDocument, got.ItemType)
	assert.Equal(t, "https://files.example/proof.png", got.ProofURL)
	assert.True(t, base.Add(2*time.Minute).Equal(got.CreatedAt))

	missing, err := store.GetReport(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	page, total, err := store.ListReports(ctx, moderation.ReportFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, page, 2)
	assert.Equal(t, "r2", page[0].ID)
	assert.Equal(t, "r1", page[1].ID)

	system, total, err := store.ListReports(ctx, moderation.ReportFilter{ReporterID: moderation.SystemReporterID}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, system, 1)
	assert.Equal(t, "r0", system[0].ID)

	counts, err := store.CountReportsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[moderation.ReportStatusPending])
}

func TestModerationStore_TransitionReport(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateReport(ctx, testReport("r1", now)))

	updated, err := store.TransitionReport(ctx, "r1", moderation.ReportStatusPending, moderation.Transition{
		To: moderation.ReportStatusDismissed, ReviewerID: "mod-1", ProcessingAction: "not a violation", At: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusDismissed, updated.Status)
	assert.Equal(t, "not a violation", updated.ProcessingAction)

	_, err = store.TransitionReport(ctx, "r1", moderation.ReportStatusPending, moderation.Transition{To: moderation.ReportStatusReviewed})
	var mismatch *moderation.StatusMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, moderation.ReportStatusDismissed, mismatch.Actual)

	_, err = store.TransitionReport(ctx, "ghost", moderation.ReportStatusPending, moderation.Transition{To: moderation.ReportStatusReviewed})
	assert.ErrorIs(t, err, moderation.ErrReportNotFound)
}

func TestModerationStore_ConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	require.NoError(t, store.CreateReport(ctx, testReport("race", time.Now())))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TransitionReport(ctx, "race", moderation.ReportStatusPending, moderation.Transition{
				To: moderation.ReportStatusReviewed, ReviewerID: fmt.Sprintf("mod-%d", i), At: time.Now(),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			var mismatch *moderation.StatusMismatchError
			assert.True(t, errors.As(err, &mismatch), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestModerationStore_ApplyPunishmentAndPrune(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	r := testReport("r1", now)
	r.Status = moderation.ReportStatusReviewed
	require.NoError(t, store.CreateReport(ctx, r))

	restriction, err := moderation.BuildRestriction(moderation.LevelModerate, now, 90, 7, "malware upload")
	require.NoError(t, err)
	report, account, err := store.ApplyPunishment(ctx, moderation.PunishmentCommit{
		ReportID:   "r1",
		Transition: moderation.Transition{To: moderation.ReportStatusActionTaken, ReviewerID: "mod-1", At: now},
		Punishment: moderation.PunishmentRecord{
			ID: "p1", ReportID: "r1", UserID: "accused", ModeratorID: "mod-1",
			ViolationLevel: moderation.LevelModerate, Points: 3, Detail: "malware upload", CreatedAt: now,
		},
		Restriction: restriction,
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.ReportStatusActionTaken, report.Status)
	assert.Len(t, account.FeatureBlocks, len(moderation.BasicFeatures))

	stored, err := store.GetAccount(ctx, "accused")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, moderation.AccountActive, stored.Status)
	assert.False(t, stored.CanUse(moderation.FeatureUploadDocument, now.Add(time.Hour)))
	assert.True(t, stored.CanUse(moderation.FeatureUploadDocument, now.AddDate(0, 0, 8)))

	records, err := store.ListPunishments(ctx, "accused")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Points)

	_, _, err = store.ApplyPunishment(ctx, moderation.PunishmentCommit{
		ReportID:   "r1",
		Transition: moderation.Transition{To: moderation.ReportStatusActionTaken, At: now},
		Punishment: moderation.PunishmentRecord{ID: "p2", UserID: "accused", CreatedAt: now},
	})
	var mismatch *moderation.StatusMismatchError
	require.ErrorAs(t, err, &mismatch)

	records, err = store.ListPunishments(ctx, "accused")
	require.NoError(t, err)
	assert.Len(t, records, 1, "rolled back commit leaves no record")

	removed, err := store.PruneExpiredBlocks(ctx, now.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, len(moderation.BasicFeatures), removed)

	stored, err = store.GetAccount(ctx, "accused")
	require.NoError(t, err)
	assert.Empty(t, stored.FeatureBlocks)
}

func TestModerationStore_PruneLiftsBan(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	r := testReport("r1", now)
	r.Status = moderation.ReportStatusReviewed
	require.NoError(t, store.CreateReport(ctx, r))
	restriction, err := moderation.BuildRestriction(moderation.LevelSevere, now, 30, 7, "x")
	require.NoError(t, err)
	_, _, err = store.ApplyPunishment(ctx, moderation.PunishmentCommit{
		ReportID:    "r1",
		Transition:  moderation.Transition{To: moderation.ReportStatusActionTaken, At: now},
		Punishment:  moderation.PunishmentRecord{ID: "p1", UserID: "u1", CreatedAt: now},
		Restriction: restriction,
	})
	require.NoError(t, err)

	_, err = store.PruneExpiredBlocks(ctx, now.AddDate(0, 0, 10))
	require.NoError(t, err)
	account, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, moderation.AccountBanned, account.Status)

	_, err = store.PruneExpiredBlocks(ctx, now.AddDate(0, 0, 31))
	require.NoError(t, err)
	account, err = store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, moderation.AccountActive, account.Status)
	assert.Nil(t, account.BannedUntil)
}

func TestModerationStore_AuditLog(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).ModerationStore()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, store.LogAction(ctx, moderation.AuditEntry{
			ID:        fmt.Sprintf("a%d", i),
			Action:    moderation.AuditActionCreateReport,
			ActorID:   moderation.SystemReporterID,
			TargetID:  "msg-1",
			Details:   map[string]string{"source": "classifier"},
			Timestamp: base.Add(time.Duration(i) * time.Second),
			AutoMod:   true,
		}))
	}

	entries, err := store.ListAuditLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a2", entries[0].ID)
	assert.True(t, entries[0].AutoMod)
	assert.Equal(t, "classifier", entries[0].Details["source"])
}

func TestReputationStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ledger := reputation.NewLedger(db.ReputationStore())

	require.NoError(t, ledger.RewardUpload(ctx, "u1", "d1"))
	require.NoError(t, ledger.PenalizePunishment(ctx, "u1", 10, "r1"))

	score, err := ledger.Score(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, score.Document)
	assert.Equal(t, -10, score.Report)
	assert.Equal(t, -8, score.Total)

	account, err := db.ModerationStore().GetAccount(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, -8, account.Score)
	assert.Equal(t, moderation.AccountActive, account.Status)

	history, err := ledger.History(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -10, history[0].Delta)

	missing, err := db.ReputationStore().GetScore(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTermStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).TermStore()

	require.NoError(t, store.AddTerm(ctx, "ngu"))
	require.NoError(t, store.AddTerm(ctx, "ngu"))
	require.NoError(t, store.AddTerm(ctx, "khùng"))

	terms, err := store.ListTerms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"khùng", "ngu"}, terms)
}

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t).NotificationStore()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, store.Notify(ctx, moderation.Notification{
		ID: "n1", UserID: "u1", Kind: moderation.NotifyReportDismissed, ReportID: "r1", CreatedAt: base,
	}))
	require.NoError(t, store.Notify(ctx, moderation.Notification{
		ID: "n2", UserID: "u1", Kind: moderation.NotifyPunished, ReportID: "r2", CreatedAt: base.Add(time.Minute),
	}))

	got, err := store.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, moderation.NotifyPunished, got[0].Kind)
}

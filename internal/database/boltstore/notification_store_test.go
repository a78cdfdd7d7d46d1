package boltstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tangled.org/studyhub.social/warden/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t).NotificationStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, store.Notify(ctx, moderation.Notification{
			ID:        fmt.Sprintf("n%d", i),
			UserID:    "reporter",
			Kind:      moderation.NotifyReportReviewed,
			ReportID:  "r1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Notify(ctx, moderation.Notification{
		ID: "other", UserID: "accused", Kind: moderation.NotifyReportAgainst, CreatedAt: base,
	}))

	got, err := store.ListNotifications(ctx, "reporter", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "n2", got[0].ID)
	assert.Equal(t, "n1", got[1].ID)

	got, err = store.ListNotifications(ctx, "accused", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, moderation.NotifyReportAgainst, got[0].Kind)

	got, err = store.ListNotifications(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridbasehq/gridbase/internal/models"
)

func TestAuditLogAndList(t *testing.T) {
	f := newServiceFixture(t)
	audit := f.auditService(t)
	ctx := context.Background()

	actor := memberID
	require.NoError(t, audit.Log(ctx, AuditEntry{
		UserID:   &actor,
		Action:   "grant.table.set",
		Resource: "table:1",
		Metadata: map[string]any{"level": "read_only"},
	}))
	require.NoError(t, audit.Log(ctx, AuditEntry{
		Action:   "grant.table.delete",
		Resource: "table:1",
		Result:   "failure",
	}))

	page, err := audit.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)
	require.Len(t, page.Logs, 2)

	filtered, err := audit.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: "grant.table.set"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), filtered.Total)
	require.Equal(t, "success", filtered.Logs[0].Result)
	require.Contains(t, filtered.Logs[0].Metadata, "read_only")
}

func TestAuditLogRequiresAction(t *testing.T) {
	f := newServiceFixture(t)
	audit := f.auditService(t)

	require.Error(t, audit.Log(context.Background(), AuditEntry{Resource: "table:1"}))
}

func TestAuditListFiltersByUser(t *testing.T) {
	f := newServiceFixture(t)
	audit := f.auditService(t)
	ctx := context.Background()

	actor := memberID
	other := adminID
	require.NoError(t, audit.Log(ctx, AuditEntry{UserID: &actor, Action: "grant.row.set"}))
	require.NoError(t, audit.Log(ctx, AuditEntry{UserID: &other, Action: "grant.row.set"}))

	page, err := audit.List(ctx, AuditListOptions{Filters: AuditFilters{UserID: &actor}})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	require.Equal(t, &actor, page.Logs[0].UserID)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	f := newServiceFixture(t)
	audit := f.auditService(t)
	ctx := context.Background()

	require.NoError(t, audit.Log(ctx, AuditEntry{Action: "grant.table.set"}))

	old := models.AuditLog{Action: "grant.table.set", Result: "success"}
	require.NoError(t, f.db.Create(&old).Error)
	require.NoError(t, f.db.Model(&old).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -120)).Error)

	removed, err := audit.CleanupOlderThan(ctx, 90)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var remaining int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)

	// Non-positive retention is a no-op.
	removed, err = audit.CleanupOlderThan(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, removed)
}

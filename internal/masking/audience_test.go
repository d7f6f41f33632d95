package masking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridbasehq/gridbase/internal/cache"
	"github.com/gridbasehq/gridbase/internal/models"
)

func TestAudienceGroupsGrantsPerUser(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.RowPermission{
		TableID: f.table.ID, RowID: f.rowOne.ID, UserID: memberID, Level: "invisible",
	}).Error)
	require.NoError(t, f.db.Create(&models.FieldPermission{
		TableID: f.table.ID, FieldID: f.fieldTwo.ID, UserID: memberID, Level: "hidden",
	}).Error)
	// Levels above the masking threshold never enter the audience.
	require.NoError(t, f.db.Create(&models.RowPermission{
		TableID: f.table.ID, RowID: f.rowTwo.ID, UserID: 77, Level: "read_only",
	}).Error)

	audience, err := f.resolver(t).Audience(context.Background(), f.table.ID)
	require.NoError(t, err)

	require.Len(t, audience, 1)
	entry := audience[memberID]
	require.Equal(t, []int64{f.rowOne.ID}, entry.InvisibleRowIDs)
	require.Equal(t, []int64{f.fieldTwo.ID}, entry.HiddenFieldIDs)
	require.True(t, entry.RowInvisible(f.rowOne.ID))
	require.False(t, entry.RowInvisible(f.rowTwo.ID))
}

func TestAudienceEmptyWithoutGrants(t *testing.T) {
	f := newMaskFixture(t)

	audience, err := f.resolver(t).Audience(context.Background(), f.table.ID)
	require.NoError(t, err)
	require.Empty(t, audience)
}

func TestAudienceCacheInvalidationNeverServesStale(t *testing.T) {
	f := newMaskFixture(t)

	store := cache.NewDatabaseStore(f.db)
	resolver, err := NewAudienceResolver(f.db, store)
	require.NoError(t, err)

	ctx := context.Background()

	// Prime the cache with an empty audience.
	audience, err := resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Empty(t, audience)

	// Grant write plus synchronous invalidation, as GrantService does.
	require.NoError(t, f.db.Create(&models.RowPermission{
		TableID: f.table.ID, RowID: f.rowOne.ID, UserID: memberID, Level: "invisible",
	}).Error)
	require.NoError(t, resolver.Invalidate(ctx, f.table.ID))

	// The very next lookup in the same causal chain sees the new grant.
	audience, err = resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.True(t, audience[memberID].RowInvisible(f.rowOne.ID))
}

func TestAudienceCacheServesRepeatLookups(t *testing.T) {
	f := newMaskFixture(t)

	require.NoError(t, f.db.Create(&models.FieldPermission{
		TableID: f.table.ID, FieldID: f.fieldOne.ID, UserID: memberID, Level: "hidden",
	}).Error)

	store := cache.NewDatabaseStore(f.db)
	resolver, err := NewAudienceResolver(f.db, store)
	require.NoError(t, err)

	ctx := context.Background()

	first, err := resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)

	// Without invalidation the cached audience keeps serving, even though
	// the underlying records changed.
	require.NoError(t, f.db.Delete(&models.FieldPermission{}, "table_id = ?", f.table.ID).Error)

	second, err := resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

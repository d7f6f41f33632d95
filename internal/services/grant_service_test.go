package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridbasehq/gridbase/internal/models"
	apperrors "github.com/gridbasehq/gridbase/pkg/errors"
)

func (f *serviceFixture) grantService(t *testing.T, notifier ChangeNotifier) *GrantService {
	t.Helper()
	service, err := NewGrantService(f.db, f.resolver(t), notifier, f.auditService(t))
	require.NoError(t, err)
	return service
}

func TestSetTablePermissionUpserts(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)
	ctx := context.Background()

	first, err := service.SetTablePermission(ctx, TablePermissionInput{
		TableID: f.table.ID, UserID: memberID, Level: "read_only",
	})
	require.NoError(t, err)

	second, err := service.SetTablePermission(ctx, TablePermissionInput{
		TableID: f.table.ID, UserID: memberID, Level: "editable", CanCreateField: true,
	})
	require.NoError(t, err)
	_ = second

	var records []models.TablePermission
	require.NoError(t, f.db.Where("table_id = ? AND user_id = ?", f.table.ID, memberID).Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, "editable", records[0].Level)
	require.True(t, records[0].CanCreateField)
	require.Equal(t, first.TableID, records[0].TableID)
}

func TestSetTablePermissionRejectsUnknownLevel(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)

	_, err := service.SetTablePermission(context.Background(), TablePermissionInput{
		TableID: f.table.ID, UserID: memberID, Level: "superuser",
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	// hidden is a field/row concept; the table scope stops at read_only.
	_, err = service.SetTablePermission(context.Background(), TablePermissionInput{
		TableID: f.table.ID, UserID: memberID, Level: "hidden",
	})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestSetCollaborationEncodesScope(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)

	record, err := service.SetCollaboration(context.Background(), CollaborationInput{
		DatabaseID:       f.database.ID,
		UserID:           memberID,
		AccessibleTables: []int64{f.table.ID, f.table.ID, 0},
		TableLevels:      map[int64]string{f.table.ID: "read_only"},
	})
	require.NoError(t, err)

	require.Equal(t, []int64{f.table.ID}, record.AccessibleTableIDs())
	require.True(t, record.TableAccessible(f.table.ID))

	level, ok := record.TableLevel(f.table.ID)
	require.True(t, ok)
	require.Equal(t, "read_only", level)
}

func TestSetCollaborationRejectsBadOverride(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)

	_, err := service.SetCollaboration(context.Background(), CollaborationInput{
		DatabaseID:  f.database.ID,
		UserID:      memberID,
		TableLevels: map[int64]string{f.table.ID: "writable"},
	})
	require.Error(t, err)
}

func TestSetFieldPermissionInvalidatesAudience(t *testing.T) {
	f := newServiceFixture(t)

	resolver := f.resolver(t)
	service, err := NewGrantService(f.db, resolver, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	// Prime the audience, then grant: the next lookup must see the change.
	audience, err := resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Empty(t, audience)

	_, err = service.SetFieldPermission(ctx, FieldPermissionInput{
		FieldID: f.field.ID, UserID: memberID, Level: "hidden",
	})
	require.NoError(t, err)

	audience, err = resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Contains(t, audience, memberID)
	require.Equal(t, []int64{f.field.ID}, audience[memberID].HiddenFieldIDs)
}

func TestSetFieldPermissionUnknownField(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)

	_, err := service.SetFieldPermission(context.Background(), FieldPermissionInput{
		FieldID: 424242, UserID: memberID, Level: "hidden",
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSetRowPermissionNotifiesUser(t *testing.T) {
	f := newServiceFixture(t)
	notifier := &fakeNotifier{}
	service := f.grantService(t, notifier)

	_, err := service.SetRowPermission(context.Background(), RowPermissionInput{
		RowID: f.row.ID, UserID: memberID, Level: "invisible",
	})
	require.NoError(t, err)

	require.Len(t, notifier.notifications, 1)
	require.Equal(t, memberID, notifier.notifications[0].userID)
	require.Equal(t, "row", notifier.notifications[0].scope)
}

func TestDeleteRowPermissionRestoresAudience(t *testing.T) {
	f := newServiceFixture(t)

	resolver := f.resolver(t)
	service, err := NewGrantService(f.db, resolver, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = service.SetRowPermission(ctx, RowPermissionInput{
		RowID: f.row.ID, UserID: memberID, Level: "invisible",
	})
	require.NoError(t, err)

	audience, err := resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Contains(t, audience, memberID)

	require.NoError(t, service.DeleteRowPermission(ctx, f.row.ID, memberID))

	audience, err = resolver.Audience(ctx, f.table.ID)
	require.NoError(t, err)
	require.Empty(t, audience)
}

func TestDeleteGrantMissingRecord(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, service.DeleteTablePermission(ctx, f.table.ID, memberID), apperrors.ErrNotFound)
	require.ErrorIs(t, service.DeleteCollaboration(ctx, f.database.ID, memberID), apperrors.ErrNotFound)
	require.ErrorIs(t, service.DeleteFieldPermission(ctx, f.field.ID, memberID), apperrors.ErrNotFound)
	require.ErrorIs(t, service.DeleteRowPermission(ctx, f.row.ID, memberID), apperrors.ErrNotFound)
}

func TestSaveConditionRuleCreateAndUpdate(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)
	ctx := context.Background()

	created, err := service.SaveConditionRule(ctx, ConditionRuleInput{
		TableID:       f.table.ID,
		Name:          "own rows only",
		ConditionType: models.ConditionTypeCreator,
		Level:         "read_only",
		Priority:      5,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.True(t, created.IsActive)
	require.Equal(t, "OR", created.LogicOperator)

	inactive := false
	updated, err := service.SaveConditionRule(ctx, ConditionRuleInput{
		ID:            created.ID,
		TableID:       f.table.ID,
		Name:          "own rows only",
		IsActive:      &inactive,
		ConditionType: models.ConditionTypeCreator,
		Level:         "invisible",
		Priority:      5,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID)

	var stored models.ConditionRule
	require.NoError(t, f.db.First(&stored, created.ID).Error)
	require.False(t, stored.IsActive)
	require.Equal(t, "invisible", stored.Level)
}

func TestSaveConditionRuleRejectsUnknownType(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)

	_, err := service.SaveConditionRule(context.Background(), ConditionRuleInput{
		TableID:       f.table.ID,
		ConditionType: "moon_phase",
		Level:         "read_only",
	})
	require.Error(t, err)
}

func TestGrantWritesAuditTrail(t *testing.T) {
	f := newServiceFixture(t)
	service := f.grantService(t, nil)
	ctx := context.Background()

	_, err := service.SetTablePermission(ctx, TablePermissionInput{
		TableID: f.table.ID, UserID: memberID, Level: "read_only",
	})
	require.NoError(t, err)

	var logs []models.AuditLog
	require.NoError(t, f.db.Where("action = ?", "grant.table.set").Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, "success", logs[0].Result)
	require.Contains(t, logs[0].Metadata, "target_user_id")
}
